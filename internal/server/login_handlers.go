package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dgellow/b2c-front/internal/backend"
	"github.com/dgellow/b2c-front/internal/cookie"
	"github.com/dgellow/b2c-front/internal/crypto"
	"github.com/dgellow/b2c-front/internal/fragment"
	"github.com/dgellow/b2c-front/internal/idp"
	jsonwriter "github.com/dgellow/b2c-front/internal/json"
	"github.com/dgellow/b2c-front/internal/log"
	"github.com/dgellow/b2c-front/internal/login"
	"github.com/dgellow/b2c-front/internal/storage"
)

const (
	csrfHeader = "X-CSRF-Token"
	// DefaultFragmentPath receives the redirect URL posted by the landing page
	DefaultFragmentPath = "/auth/fragment"
	// DefaultHomeURL is where a logged in browser is sent
	DefaultHomeURL = "/me"

	maxFragmentBody = 64 << 10
	csrfTTL         = 15 * time.Minute
)

// pendingLogin is signed into the login cookie between /login and the redirect
type pendingLogin struct {
	State     string `json:"state"`
	SessionID string `json:"sid"`
}

type fragmentRequest struct {
	URL string `json:"url"`
}

type logoutResponse struct {
	LogoutURL string `json:"logoutUrl,omitempty"`
}

// LoginHandlers serves the browser side of the redirect login. Each request
// rebuilds a login.Flow for the caller's session.
type LoginHandlers struct {
	name         string
	provider     idp.Provider
	store        storage.IdentityStore
	confirmer    login.Confirmer
	loginToken   crypto.TokenSigner
	csrf         crypto.CSRFProtection
	sessionTTL   time.Duration
	homeURL      string
	fragmentPath string
}

// LoginHandlersConfig configures NewLoginHandlers
type LoginHandlersConfig struct {
	Name     string
	Provider idp.Provider
	Store    storage.IdentityStore
	// Confirmer may be nil when no backend callback is configured
	Confirmer     login.Confirmer
	SessionSecret []byte
	SessionTTL    time.Duration
	HomeURL       string
	FragmentPath  string
}

// NewLoginHandlers creates the login handlers
func NewLoginHandlers(cfg LoginHandlersConfig) (*LoginHandlers, error) {
	loginKey, err := crypto.DeriveKey(cfg.SessionSecret, "login-state")
	if err != nil {
		return nil, err
	}
	csrfKey, err := crypto.DeriveKey(cfg.SessionSecret, "csrf")
	if err != nil {
		return nil, err
	}

	h := &LoginHandlers{
		name:         cfg.Name,
		provider:     cfg.Provider,
		store:        cfg.Store,
		confirmer:    cfg.Confirmer,
		loginToken:   crypto.NewTokenSigner(loginKey, cookie.LoginMaxAge),
		csrf:         crypto.NewCSRFProtection(csrfKey, csrfTTL),
		sessionTTL:   cfg.SessionTTL,
		homeURL:      cfg.HomeURL,
		fragmentPath: cfg.FragmentPath,
	}
	if h.homeURL == "" {
		h.homeURL = DefaultHomeURL
	}
	if h.fragmentPath == "" {
		h.fragmentPath = DefaultFragmentPath
	}
	if h.sessionTTL <= 0 {
		h.sessionTTL = storage.DefaultIdentityTTL
	}
	return h, nil
}

func (h *LoginHandlers) flowConfig(sessionID string, nav login.Navigator) login.Config {
	return login.Config{
		Store:     storage.ForSession(h.store, sessionID),
		Navigator: nav,
		Confirmer: h.confirmer,
		AuthURL:   h.provider.AuthURL,
		LogoutURL: h.provider.EndSessionURL(),
	}
}

// ensureSession returns the session id, issuing a new session cookie if needed
func (h *LoginHandlers) ensureSession(w http.ResponseWriter, r *http.Request) (string, error) {
	if sid, err := cookie.GetSession(r); err == nil && sid != "" {
		return sid, nil
	}
	sid, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", err
	}
	cookie.SetSession(w, sid, h.sessionTTL)
	return sid, nil
}

// LoginHandler starts a login. An already logged in session goes home; a
// login the backend never confirmed starts over.
func (h *LoginHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	sid, err := h.ensureSession(w, r)
	if err != nil {
		log.LogErrorWithFields("login", "Failed to create session", map[string]any{"error": err.Error()})
		jsonwriter.WriteInternalServerError(w, "Failed to create session")
		return
	}

	rec := &login.Recorder{}
	flow := login.New(h.flowConfig(sid, rec))

	id, err := flow.Restore(r.Context())
	if err != nil {
		log.LogErrorWithFields("login", "Failed to restore identity", map[string]any{"error": err.Error()})
		jsonwriter.WriteInternalServerError(w, "Failed to load session")
		return
	}
	if id != nil {
		if flow.State() == login.LoggedIn {
			http.Redirect(w, r, h.homeURL, http.StatusFound)
			return
		}
		log.LogInfoWithFields("login", "Restarting unconfirmed login", map[string]any{
			"state": flow.State().String(),
		})
		flow = login.New(h.flowConfig(sid, rec))
	}

	state, err := flow.BeginLogin()
	if err != nil {
		log.LogErrorWithFields("login", "Failed to begin login", map[string]any{"error": err.Error()})
		jsonwriter.WriteInternalServerError(w, "Failed to begin login")
		return
	}

	token, err := h.loginToken.Sign(pendingLogin{State: state, SessionID: sid})
	if err != nil {
		log.LogErrorWithFields("login", "Failed to sign login state", map[string]any{"error": err.Error()})
		jsonwriter.WriteInternalServerError(w, "Failed to begin login")
		return
	}
	cookie.SetLogin(w, token)

	log.LogInfoWithFields("login", "Redirecting to provider", map[string]any{
		"provider": h.provider.Type(),
	})
	http.Redirect(w, r, rec.URL(), http.StatusFound)
}

// LandingHandler serves the page the provider redirects to. The fragment
// never reaches the server, so the page posts its own URL back.
func (h *LoginHandlers) LandingHandler(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.Generate()
	if err != nil {
		log.LogErrorWithFields("login", "Failed to generate CSRF token", map[string]any{"error": err.Error()})
		jsonwriter.WriteInternalServerError(w, "Failed to render page")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err = landingPageTemplate.Execute(w, LandingPageData{
		Name:         h.name,
		CSRFToken:    token,
		CSRFHeader:   csrfHeader,
		FragmentPath: h.fragmentPath,
		HomeURL:      h.homeURL,
	})
	if err != nil {
		log.LogErrorWithFields("login", "Failed to render landing page", map[string]any{"error": err.Error()})
	}
}

// FragmentHandler completes a login from the redirect URL the landing page
// posts. It answers with the login result.
func (h *LoginHandlers) FragmentHandler(w http.ResponseWriter, r *http.Request) {
	if !h.csrf.Validate(r.Header.Get(csrfHeader)) {
		jsonwriter.WriteForbidden(w, "Invalid CSRF token")
		return
	}

	var req fragmentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFragmentBody)).Decode(&req); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid request body")
		return
	}

	sid, err := cookie.GetSession(r)
	if err != nil || sid == "" {
		jsonwriter.WriteConflict(w, "no login in progress")
		return
	}
	raw, err := cookie.GetLogin(r)
	if err != nil || raw == "" {
		jsonwriter.WriteConflict(w, "no login in progress")
		return
	}

	var pending pendingLogin
	if err := h.loginToken.Verify(raw, &pending); err != nil || pending.SessionID != sid {
		cookie.ClearLogin(w)
		jsonwriter.WriteConflict(w, "no login in progress")
		return
	}

	// The state value is single use.
	cookie.ClearLogin(w)

	flow := login.Resume(h.flowConfig(sid, &login.Recorder{}), pending.State)
	result, err := flow.HandleRedirect(r.Context(), req.URL)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	_ = jsonwriter.Write(w, result)
}

func writeFlowError(w http.ResponseWriter, err error) {
	var perr *fragment.ProviderError
	switch {
	case errors.Is(err, fragment.ErrMissing):
		jsonwriter.WriteError(w, http.StatusBadRequest, "fragment_missing", err.Error())
	case errors.As(err, &perr):
		jsonwriter.WriteError(w, http.StatusBadRequest, perr.Code(), perr.Description())
	case errors.Is(err, login.ErrStateMismatch):
		jsonwriter.WriteError(w, http.StatusBadRequest, "state_mismatch", err.Error())
	case errors.Is(err, backend.ErrCallFailed):
		log.LogErrorWithFields("login", "Backend confirmation failed", map[string]any{"error": err.Error()})
		jsonwriter.WriteBadGateway(w, "backend_call_failed", "Backend confirmation failed")
	case errors.Is(err, login.ErrInvalidTransition):
		jsonwriter.WriteConflict(w, err.Error())
	default:
		log.LogErrorWithFields("login", "Login failed", map[string]any{"error": err.Error()})
		jsonwriter.WriteInternalServerError(w, "Login failed")
	}
}

// MeHandler returns the session's identity once the login is confirmed
func (h *LoginHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	sid, err := cookie.GetSession(r)
	if err != nil || sid == "" {
		jsonwriter.WriteUnauthorized(w, "Not logged in")
		return
	}

	flow := login.New(h.flowConfig(sid, nil))
	id, err := flow.Restore(r.Context())
	if err != nil {
		log.LogErrorWithFields("login", "Failed to load identity", map[string]any{"error": err.Error()})
		jsonwriter.WriteInternalServerError(w, "Failed to load identity")
		return
	}
	if id == nil {
		jsonwriter.WriteUnauthorized(w, "Not logged in")
		return
	}
	if flow.State() != login.LoggedIn {
		jsonwriter.WriteError(w, http.StatusUnauthorized, "login_pending", "Login is "+flow.State().String()+" and awaits backend confirmation")
		return
	}

	_ = jsonwriter.Write(w, id)
}

// LogoutHandler clears the session and returns the provider's sign out URL
func (h *LoginHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	rec := &login.Recorder{}
	rec.Navigate(h.provider.EndSessionURL())

	if sid, err := cookie.GetSession(r); err == nil && sid != "" {
		flow := login.New(h.flowConfig(sid, rec))
		if err := flow.Logout(r.Context()); err != nil {
			log.LogErrorWithFields("login", "Failed to clear identity", map[string]any{"error": err.Error()})
			jsonwriter.WriteInternalServerError(w, "Failed to log out")
			return
		}
	}

	cookie.ClearSession(w)
	cookie.ClearLogin(w)
	_ = jsonwriter.Write(w, logoutResponse{LogoutURL: rec.URL()})
}
