package analytics_api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"paintball-ticketing/internal/analytics"
	analytics_api "paintball-ticketing/internal/analytics/api"
	"paintball-ticketing/internal/auth"
	"paintball-ticketing/internal/database/dbtest"
	"paintball-ticketing/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestAnalyticsRoutes(t *testing.T) {
	svc := analytics.NewService(&analytics.DB{Bun: dbtest.New(t)}, nil, logger.NewNop())
	r := chi.NewRouter()
	analytics_api.NewHandler(svc, logger.NewNop()).RegisterRoutes(r)

	get := func(role, path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if role != "" {
			req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "u-1", Role: role}))
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get(auth.RoleStaff, "/analytics/dashboard"))
	assert.Equal(t, http.StatusOK, get(auth.RoleAdmin, "/analytics/sales?days=7"))
	assert.Equal(t, http.StatusBadRequest, get(auth.RoleStaff, "/analytics/sales?days=9999"))
	assert.Equal(t, http.StatusForbidden, get("", "/analytics/dashboard"))
}
