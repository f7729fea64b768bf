package analytics_api

import (
	"net/http"

	"paintball-ticketing/internal/analytics"
	"paintball-ticketing/internal/auth"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes registers the analytics routes; staff and admins may read them.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Use(auth.RequireRole(h.Logger, auth.RoleStaff))
		r.Get("/dashboard", h.GetDashboard)
		r.Get("/sales", h.GetDailySales)
	})
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.Dashboard(r.Context())
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Dashboard retrieved", d)
}

// GetDailySales accepts ?days=N (default 30).
func (h *Handler) GetDailySales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.Service.DailySales(r.Context(), utils.QueryInt(r, "days", analytics.DefaultSalesDays))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Daily sales retrieved", sales)
}
