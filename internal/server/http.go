package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	jsonwriter "github.com/dgellow/b2c-front/internal/json"
	"github.com/dgellow/b2c-front/internal/log"
	"github.com/dgellow/b2c-front/internal/storage"
)

// HTTPServer manages the HTTP server lifecycle
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates a new HTTP server with the given handler and address
func NewHTTPServer(handler http.Handler, addr string) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Start serves until Stop is called. A clean shutdown returns nil.
func (h *HTTPServer) Start() error {
	log.LogInfoWithFields("http", "HTTP server starting", map[string]any{
		"addr": h.server.Addr,
	})

	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop waits for in-flight requests until ctx expires
func (h *HTTPServer) Stop(ctx context.Context) error {
	if err := h.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.LogInfoWithFields("http", "HTTP server stopped", map[string]any{
		"addr": h.server.Addr,
	})
	return nil
}

const (
	healthProbeKey     = "health-probe"
	healthProbeTimeout = 2 * time.Second
)

type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
}

// HealthHandler reports liveness and whether the identity store answers.
// A missing record is a healthy answer.
type HealthHandler struct {
	store storage.IdentityStore
}

// NewHealthHandler creates a health handler. store may be nil.
func NewHealthHandler(store storage.IdentityStore) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		_ = jsonwriter.Write(w, healthResponse{Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	_, err := h.store.GetIdentity(ctx, healthProbeKey)
	if err != nil && !errors.Is(err, storage.ErrIdentityNotFound) {
		log.LogWarnWithFields("http", "Health check: identity store unavailable", map[string]any{
			"error": err.Error(),
		})
		_ = jsonwriter.WriteResponse(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Storage: "unavailable"})
		return
	}

	_ = jsonwriter.Write(w, healthResponse{Status: "ok", Storage: "ok"})
}
