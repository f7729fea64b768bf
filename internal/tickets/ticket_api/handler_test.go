package ticket_api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paintball-ticketing/internal/auth"
	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/database/dbtest"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/models"
	"paintball-ticketing/internal/storage"
	"paintball-ticketing/internal/tickets/db"
	"paintball-ticketing/internal/tickets/qr"
	tickets "paintball-ticketing/internal/tickets/service"
	"paintball-ticketing/internal/tickets/ticket_api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (http.Handler, *tickets.TicketService, string) {
	t.Helper()
	bunDB := dbtest.New(t)
	gen, err := qr.NewQRGenerator("k9T#mQ2v!Lx7Wz4pR8sY1nB6cF3hJ0dG")
	require.NoError(t, err)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	svc := tickets.NewTicketService(tickets.Dependencies{
		DB:     &db.DB{Bun: bunDB},
		Tx:     database.NewTxManager(bunDB),
		QR:     gen,
		Store:  store,
		Logger: logger.NewNop(),
	})

	ctx := context.Background()
	order := &models.Order{ID: uuid.NewString(), Quantity: 1}
	_, err = svc.CreateForOrder(ctx, order, models.TicketSettings{MaxScanCount: 1, ScanWindowDays: 14, ValidityDays: 30})
	require.NoError(t, err)
	active, err := svc.ActivateForOrder(ctx, order)
	require.NoError(t, err)

	r := chi.NewRouter()
	ticket_api.NewHandler(svc, logger.NewNop()).RegisterRoutes(r)
	return r, svc, active[0].Code
}

func do(h http.Handler, role, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if role != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: role + "-1", Role: role}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestScanFlow(t *testing.T) {
	h, svc, code := setup(t)

	rec := do(h, auth.RoleStaff, http.MethodPost, "/tickets/scan", `{"code":"`+code+`","location":"Gate A"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, tickets.ReasonFirstScan, env.Message)

	rec = do(h, auth.RoleStaff, http.MethodPost, "/tickets/scan", `{"code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result tickets.ScanResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &result))
	assert.False(t, result.Valid)
	assert.Equal(t, "staff-1", result.Scan.ScannedBy)

	scans, err := svc.ScanHistory(context.Background(), code, 0)
	require.NoError(t, err)
	assert.Len(t, scans, 2)

	rec = do(h, auth.RoleStaff, http.MethodGet, "/tickets/"+code+"/scans", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestScanRequiresStaff(t *testing.T) {
	h, _, code := setup(t)
	rec := do(h, "", http.MethodPost, "/tickets/scan", `{"code":"`+code+`"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestScanQRRejectsGarbage(t *testing.T) {
	h, _, _ := setup(t)
	rec := do(h, auth.RoleStaff, http.MethodPost, "/tickets/scan-qr", `{"payload":"aa:bb:cc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid or tampered code", decode(t, rec).Error)
}

func TestValidateAndGet(t *testing.T) {
	h, _, code := setup(t)

	rec := do(h, auth.RoleStaff, http.MethodGet, "/tickets/"+code+"/validate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v tickets.Verdict
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &v))
	assert.True(t, v.Valid)

	rec = do(h, auth.RoleStaff, http.MethodGet, "/tickets/PB-NOPE-NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenderQRAndCancel(t *testing.T) {
	h, _, code := setup(t)

	rec := do(h, auth.RoleStaff, http.MethodGet, "/tickets/"+code+"/qr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = do(h, auth.RoleStaff, http.MethodPost, "/tickets/"+code+"/cancel", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, auth.RoleAdmin, http.MethodPost, "/tickets/"+code+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, auth.RoleStaff, http.MethodGet, "/tickets/"+code+"/qr", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
