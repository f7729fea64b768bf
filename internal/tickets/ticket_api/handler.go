package ticket_api

import (
	"net/http"

	"paintball-ticketing/internal/auth"
	"paintball-ticketing/internal/logger"
	tickets "paintball-ticketing/internal/tickets/service"
	"paintball-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	TicketService *tickets.TicketService
	Logger        *logger.Logger
	// Feed serves the live scan stream when set.
	Feed http.Handler
}

func NewHandler(ticketService *tickets.TicketService, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tickets", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(h.Logger, auth.RoleStaff))
			r.Post("/scan", h.ScanTicket)
			r.Post("/scan-qr", h.ScanQR)
			if h.Feed != nil {
				r.Method(http.MethodGet, "/scans/stream", h.Feed)
			}
			r.Get("/{code}", h.GetTicket)
			r.Get("/{code}/validate", h.ValidateTicket)
			r.Get("/{code}/scans", h.ScanHistory)
			r.Get("/{code}/qr", h.RenderQR)
		})
		r.With(auth.RequireRole(h.Logger, auth.RoleAdmin)).Post("/{code}/cancel", h.CancelTicket)
	})
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Ticket retrieved", ticket)
}

func (h *Handler) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	verdict, err := h.TicketService.ValidateTicket(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, verdict.Reason, verdict)
}

// ScanTicket records a gate attempt for a typed code.
// Expected body: {"code": "PB-7KQ2-M9XD", "location": "Gate A"}
func (h *Handler) ScanTicket(w http.ResponseWriter, r *http.Request) {
	var req tickets.ScanRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	req.ScannerID = auth.UserID(r.Context())

	result, err := h.TicketService.ScanTicket(r.Context(), req)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, result.Reason, result)
}

// ScanQR records a gate attempt for a scanned QR image.
// Expected body: {"payload": "<iv>:<tag>:<ciphertext>", "location": "Gate A"}
func (h *Handler) ScanQR(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Payload  string `json:"payload"`
		Location string `json:"location,omitempty"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}

	result, err := h.TicketService.ScanQR(r.Context(), body.Payload, auth.UserID(r.Context()), body.Location)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, result.Reason, result)
}

func (h *Handler) ScanHistory(w http.ResponseWriter, r *http.Request) {
	scans, err := h.TicketService.ScanHistory(r.Context(), chi.URLParam(r, "code"), utils.QueryInt(r, "limit", 100))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Scan history retrieved", scans)
}

func (h *Handler) RenderQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.TicketService.RenderQR(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.CancelTicket(r.Context(), chi.URLParam(r, "code"), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Ticket cancelled", ticket)
}
