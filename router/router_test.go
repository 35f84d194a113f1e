package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docuchain/config"
	"docuchain/internal/chain"
	"docuchain/internal/contentstore"
	"docuchain/internal/ratelimit"
	"docuchain/socket"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noLedger struct{}

func (noLedger) GetTransaction(context.Context, string) (*chain.LedgerTransaction, error) {
	return nil, chain.ErrNotFound
}

func setup(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Config{
		JWTSecret:       "secret",
		AllowedOrigins:  []string{"http://localhost:3000"},
		ContractAddress: "0x1203dc6f5d10556449e194c0c14f167bb3d72208",
		ClaimRateLimit:  5,
		ClaimRateWindow: time.Minute,
	}
	content := contentstore.NewPinata(contentstore.PinataConfig{GatewayURL: "https://gw"})
	h := Setup(cfg, db, socket.NewHub(), noLedger{}, ratelimit.NewMemoryLimiter(nil, 0), content)
	return h, mock
}

func TestHealth(t *testing.T) {
	h, mock := setup(t)

	mock.ExpectPing()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h, _ := setup(t)
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/documents/claim"},
		{http.MethodGet, "/api/documents"},
		{http.MethodGet, "/api/documents/shared"},
		{http.MethodPost, "/api/documents/share"},
		{http.MethodPost, "/api/documents/reassign"},
		{http.MethodDelete, "/api/documents/delete?docId=0x1"},
		{http.MethodGet, "/api/wallets"},
		{http.MethodPost, "/api/wallets/add"},
		{http.MethodPost, "/api/content/upload"},
		{http.MethodGet, "/ws?address=0x1"},
	}
	for _, rt := range routes {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, rt.path)
	}
}

func TestPreflight(t *testing.T) {
	h, _ := setup(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/documents/claim", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}
