package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/b2c-front/internal/backend"
	"github.com/dgellow/b2c-front/internal/config"
	"github.com/dgellow/b2c-front/internal/idp"
	"github.com/dgellow/b2c-front/internal/log"
	"github.com/dgellow/b2c-front/internal/server"
	"github.com/dgellow/b2c-front/internal/storage"
)

// CallbackPath is where the reference backend callback is mounted
const CallbackPath = "/api/auth/callback/" + idp.ProviderTypeB2C

// B2CFront represents the complete login frontend application
type B2CFront struct {
	config     config.Config
	httpServer *server.HTTPServer
	storage    storage.IdentityStore
	cleanup    *storage.CleanupManager
}

// NewB2CFront creates the application with all dependencies built
func NewB2CFront(ctx context.Context, cfg config.Config) (*B2CFront, error) {
	log.LogInfoWithFields("b2cfront", "Building login frontend", map[string]any{
		"baseURL": cfg.Server.BaseURL,
		"storage": string(cfg.Storage.Kind),
	})

	if landing, err := cfg.LandingURL(); err == nil && landing != cfg.B2C.RedirectURI {
		log.LogWarnWithFields("b2cfront", "b2c.redirectUri does not point at the landing page", map[string]any{
			"redirectUri": cfg.B2C.RedirectURI,
			"landingURL":  landing,
		})
	}

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	provider, err := idp.NewProvider(cfg.B2C)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	handler, err := buildHTTPHandler(cfg, store, provider)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &B2CFront{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		storage:    store,
		cleanup:    storage.NewCleanupManager(store, cfg.Storage.CleanupInterval),
	}, nil
}

// Run starts the application and blocks until a signal or a server error
func (b *B2CFront) Run() error {
	log.LogInfoWithFields("b2cfront", "Starting login frontend", map[string]any{
		"addr": b.config.Server.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		if err := b.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	b.cleanup.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("b2cfront", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("b2cfront", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("b2cfront", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	b.cleanup.Stop()

	if err := b.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("b2cfront", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	if err := b.storage.Close(); err != nil {
		log.LogWarnWithFields("b2cfront", "Failed to close storage", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("b2cfront", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// setupStorage creates the identity store selected by configuration
func setupStorage(ctx context.Context, cfg config.Config) (storage.IdentityStore, error) {
	s := cfg.Storage
	switch s.Kind {
	case config.StorageFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    s.GCPProject,
			"database":   s.FirestoreDatabase,
			"collection": s.FirestoreCollection,
		})
		store, err := storage.NewFirestoreStore(ctx, s.GCPProject, s.FirestoreDatabase, s.FirestoreCollection, s.IdentityTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return store, nil
	case config.StorageRedis:
		log.LogInfoWithFields("storage", "Using Redis storage", map[string]any{
			"addr": s.RedisAddr,
			"db":   s.RedisDB,
		})
		store, err := storage.NewRedisStore(ctx, storage.RedisConfig{
			Addr:     s.RedisAddr,
			Password: string(s.RedisPassword),
			DB:       s.RedisDB,
			TTL:      s.IdentityTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis storage: %w", err)
		}
		return store, nil
	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
		return storage.NewMemoryStore(s.IdentityTTL), nil
	}
}

// buildHTTPHandler creates the complete HTTP handler with all routing and middleware
func buildHTTPHandler(cfg config.Config, store storage.IdentityStore, provider idp.Provider) (http.Handler, error) {
	mux := http.NewServeMux()

	loginHandlers, err := server.NewLoginHandlers(server.LoginHandlersConfig{
		Name:          cfg.Server.Name,
		Provider:      provider,
		Store:         store,
		Confirmer:     backend.NewClient(cfg.Backend.CallbackURL, cfg.Backend.Timeout),
		SessionSecret: []byte(cfg.SessionSecret),
		SessionTTL:    cfg.Storage.IdentityTTL,
	})
	if err != nil {
		return nil, err
	}

	corsMiddleware := server.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	loginLogger := server.NewLoggerMiddleware("login")
	loginRecover := server.NewRecoverMiddleware("login")
	get := server.NewMethodMiddleware(http.MethodGet, http.MethodHead)
	post := server.NewMethodMiddleware(http.MethodPost)

	mux.Handle("/health", server.NewHealthHandler(store))

	route := func(path string, h http.HandlerFunc, method server.MiddlewareFunc) {
		mux.Handle(path, server.ChainMiddleware(h, method, corsMiddleware, loginLogger, loginRecover))
	}

	route("/login", loginHandlers.LoginHandler, get)
	route(cfg.Server.RedirectPath, loginHandlers.LandingHandler, get)
	route(server.DefaultFragmentPath, loginHandlers.FragmentHandler, post)
	route(server.DefaultHomeURL, loginHandlers.MeHandler, get)
	route("/logout", loginHandlers.LogoutHandler, post)

	if cfg.Backend.ServeCallback {
		callbackLogger := server.NewLoggerMiddleware("callback")
		callbackRecover := server.NewRecoverMiddleware("callback")
		mux.Handle(CallbackPath, server.ChainMiddleware(
			server.NewCallbackHandler(provider, cfg.Backend.RedirectURL),
			get, callbackLogger, callbackRecover,
		))
		log.LogInfoWithFields("b2cfront", "Serving reference backend callback", map[string]any{
			"path": CallbackPath,
		})
	}

	log.LogInfoWithFields("b2cfront", "Routes registered", map[string]any{
		"redirectPath": cfg.Server.RedirectPath,
		"provider":     provider.Type(),
	})
	return mux, nil
}
