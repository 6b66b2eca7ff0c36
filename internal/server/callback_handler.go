package server

import (
	"encoding/json"
	"net/http"

	"github.com/dgellow/b2c-front/internal/backend"
	"github.com/dgellow/b2c-front/internal/fragment"
	"github.com/dgellow/b2c-front/internal/identity"
	"github.com/dgellow/b2c-front/internal/idp"
	jsonwriter "github.com/dgellow/b2c-front/internal/json"
	"github.com/dgellow/b2c-front/internal/log"
)

// CallbackHandler is a reference implementation of the backend callback the
// login flow confirms identities with. When the frontend could not read the
// identity it exchanges the authorization code and answers with the ID
// token's claims.
type CallbackHandler struct {
	provider    idp.Provider
	redirectURL string
}

// NewCallbackHandler creates a callback handler. redirectURL is returned to
// the frontend after every successful call and may be empty.
func NewCallbackHandler(provider idp.Provider, redirectURL string) *CallbackHandler {
	return &CallbackHandler{provider: provider, redirectURL: redirectURL}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	f := make(fragment.Fragment, len(query))
	for k := range query {
		f[k] = query.Get(k)
	}

	if perr := f.ProviderError(); perr != nil {
		jsonwriter.WriteError(w, http.StatusBadRequest, perr.Code(), perr.Description())
		return
	}

	var reported identity.Identity
	if raw := f.Get(backend.ParamUserInfo); raw != "" {
		if err := json.Unmarshal([]byte(raw), &reported); err != nil {
			log.LogWarnWithFields("callback", "Ignoring malformed userInfo", map[string]any{"error": err.Error()})
		}
	}

	log.LogInfoWithFields("callback", "Frontend confirmation received", map[string]any{
		"source":             string(reported.Source),
		"needsTokenExchange": f.Get(backend.ParamNeedsTokenExchange),
		"note":               f.Get(backend.ParamFrontendNote),
	})

	if f.Get(backend.ParamNeedsTokenExchange) != "true" {
		_ = jsonwriter.Write(w, backend.Response{RedirectURL: h.redirectURL})
		return
	}

	code := f.Get(fragment.KeyCode)
	if code == "" {
		jsonwriter.WriteError(w, http.StatusBadRequest, "invalid_request", "code is required for token exchange")
		return
	}

	token, err := h.provider.ExchangeCode(r.Context(), code)
	if err != nil {
		jsonwriter.WriteBadGateway(w, "token_exchange_failed", "Failed to exchange authorization code")
		return
	}

	id, err := h.provider.UserInfo(r.Context(), token)
	if err != nil {
		log.LogErrorWithFields("callback", "Failed to read identity from token", map[string]any{"error": err.Error()})
		jsonwriter.WriteBadGateway(w, "token_exchange_failed", "Token response carried no usable identity")
		return
	}

	log.LogInfoWithFields("callback", "Identity extracted from token exchange", map[string]any{
		"hasEmail": id.Email != "",
	})
	_ = jsonwriter.Write(w, backend.Response{UserInfo: id, RedirectURL: h.redirectURL})
}
