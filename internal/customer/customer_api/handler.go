package customer_api

import (
	"net/http"

	"paintball-ticketing/internal/auth"
	"paintball-ticketing/internal/customer"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Customers *customer.Service
	Logger    *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Use(auth.RequireRole(h.Logger, auth.RoleStaff))
		r.Post("/", h.CreateCustomer)
		r.Get("/", h.ListCustomers)
		r.Get("/{id}", h.GetCustomer)
	})
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customer.CreateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	c, err := h.Customers.Create(r.Context(), req, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Customer created", c)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.Customers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Customer retrieved", c)
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	page, err := h.Customers.List(r.Context(),
		r.URL.Query().Get("search"),
		utils.QueryInt(r, "limit", 0),
		utils.QueryInt(r, "offset", 0))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Customers retrieved", page)
}
