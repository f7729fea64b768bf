package order_api

import (
	"fmt"
	"io"
	"net/http"

	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/auth"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/order"
	"paintball-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	OrderService *order.OrderService
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService, log *logger.Logger) *Handler {
	return &Handler{OrderService: orderService, Logger: log}
}

// RegisterRoutes mounts the authenticated order and payment endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(h.Logger, auth.RoleStaff))
			r.Post("/", h.CreateOrder)
			r.Get("/", h.ListOrders)
			r.Get("/{orderId}", h.GetOrder)
			r.Get("/{orderId}/tickets", h.GetOrderTickets)
			r.Post("/{orderId}/payments/initialize", h.InitializePayment)
			r.Post("/{orderId}/confirm-payment", h.ConfirmPayment)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(h.Logger, auth.RoleAdmin))
			r.Post("/{orderId}/cancel", h.CancelOrder)
			r.Post("/{orderId}/refund", h.RefundOrder)
		})
	})
	r.With(auth.RequireRole(h.Logger, auth.RoleStaff)).Get("/payments/verify/{reference}", h.VerifyPayment)
}

// RegisterPublicRoutes mounts the gateway webhook, which authenticates by signature.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/payments/webhook", h.Webhook)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateOrderRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}

	created, err := h.OrderService.CreateOrder(r.Context(), req, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Order created", created)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.OrderService.ListOrders(r.Context(), order.ListRequest{
		Status:     r.URL.Query().Get("status"),
		CustomerID: r.URL.Query().Get("customerId"),
		Limit:      utils.QueryInt(r, "limit", 0),
		Offset:     utils.QueryInt(r, "offset", 0),
	})
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Orders retrieved", page)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.OrderService.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Order retrieved", o)
}

func (h *Handler) GetOrderTickets(w http.ResponseWriter, r *http.Request) {
	o, err := h.OrderService.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, fmt.Sprintf("%d ticket(s)", len(o.Tickets)), o.Tickets)
}

// ConfirmPayment records an offline payment.
// Expected body: {"paymentReference": "bank-42", "paidAmount": "75.00", "paymentMethod": "cash"}
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req order.ConfirmRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	req.OrderID = chi.URLParam(r, "orderId")

	o, err := h.OrderService.ConfirmPayment(r.Context(), req, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Payment confirmed", o)
}

func (h *Handler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	init, err := h.OrderService.InitializePayment(r.Context(), chi.URLParam(r, "orderId"), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Payment initialized", init)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	o, err := h.OrderService.VerifyPayment(r.Context(), chi.URLParam(r, "reference"), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Payment verified", o)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.OrderService.CancelOrder(r.Context(), chi.URLParam(r, "orderId"), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Order cancelled", o)
}

// RefundOrder expects {"reason": "..."}.
func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	if body.Reason == "" {
		utils.WriteError(w, h.Logger, apperr.Validation("reason is required"))
		return
	}

	o, err := h.OrderService.RefundOrder(r.Context(), chi.URLParam(r, "orderId"), body.Reason, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Order refunded", o)
}

// Webhook needs the raw body; the signature covers the exact bytes sent.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		utils.WriteError(w, h.Logger, apperr.ValidationWrap("could not read webhook body", err))
		return
	}

	if err := h.OrderService.HandleWebhook(r.Context(), payload, r.Header); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Webhook processed", nil)
}
