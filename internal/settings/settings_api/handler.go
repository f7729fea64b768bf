package settings_api

import (
	"net/http"

	"paintball-ticketing/internal/auth"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/settings"
	"paintball-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Settings *settings.Service
	Logger   *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settings/tickets", func(r chi.Router) {
		r.Get("/", h.GetTicketSettings)
		r.With(auth.RequireRole(h.Logger, auth.RoleAdmin)).Put("/", h.UpdateTicketSettings)
	})
}

func (h *Handler) GetTicketSettings(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccess(w, http.StatusOK, "Ticket settings", h.Settings.Current())
}

func (h *Handler) UpdateTicketSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := utils.DecodeJSON(r, &patch); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}

	updated, err := h.Settings.Update(r.Context(), patch, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Ticket settings updated", updated)
}
