package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgellow/b2c-front/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct {
	storage.IdentityStore
}

func (brokenStore) GetIdentity(context.Context, string) (*storage.IdentityRecord, error) {
	return nil, errors.New("connection refused")
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name        string
		store       storage.IdentityStore
		wantStatus  int
		wantHealth  string
		wantStorage string
	}{
		{name: "no store", wantStatus: http.StatusOK, wantHealth: "ok"},
		{name: "memory store", store: storage.NewMemoryStore(time.Hour), wantStatus: http.StatusOK, wantHealth: "ok", wantStorage: "ok"},
		{name: "store unavailable", store: brokenStore{}, wantStatus: http.StatusServiceUnavailable, wantHealth: "degraded", wantStorage: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.store)

			req := httptest.NewRequest("GET", "/health", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantHealth, response["status"])
			assert.Equal(t, tt.wantStorage, response["storage"])
		})
	}
}

func TestFragmentEndpointCORS(t *testing.T) {
	h := newTestHandlers(t, nil)
	handler := NewCORSMiddleware([]string{"http://localhost:3000"})(http.HandlerFunc(h.FragmentHandler))

	req := httptest.NewRequest(http.MethodOptions, DefaultFragmentPath, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "x-csrf-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-CSRF-Token")
}
