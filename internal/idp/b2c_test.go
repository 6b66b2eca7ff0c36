package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/dgellow/b2c-front/internal/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func signedIDToken(t *testing.T, c jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}

func TestB2CConfig_AuthorityURL(t *testing.T) {
	cfg := B2CConfig{Tenant: "contoso", Policy: "B2C_1_susi"}
	assert.Equal(t, "https://contoso.b2clogin.com/contoso.onmicrosoft.com/B2C_1_susi", cfg.AuthorityURL())

	cfg.Domain = "login.contoso.com"
	assert.Equal(t, "https://login.contoso.com/contoso.onmicrosoft.com/B2C_1_susi", cfg.AuthorityURL())

	cfg.Authority = "http://127.0.0.1:9999/tenant/policy/"
	assert.Equal(t, "http://127.0.0.1:9999/tenant/policy", cfg.AuthorityURL())
}

func TestB2CProvider_AuthURL(t *testing.T) {
	p, err := NewB2CProvider(B2CConfig{
		Tenant:      "contoso",
		Policy:      "B2C_1_susi",
		ClientID:    "client-123",
		RedirectURI: "https://app.example.com/auth-callback",
	})
	require.NoError(t, err)

	u, err := url.Parse(p.AuthURL("state-xyz"))
	require.NoError(t, err)

	assert.Equal(t, "contoso.b2clogin.com", u.Host)
	assert.Equal(t, "/contoso.onmicrosoft.com/B2C_1_susi/oauth2/v2.0/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "fragment", q.Get("response_mode"))
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "https://app.example.com/auth-callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile offline_access", q.Get("scope"))
}

func TestB2CProvider_EndSessionURL(t *testing.T) {
	p, err := NewB2CProvider(B2CConfig{
		Tenant:                "contoso",
		Policy:                "B2C_1_susi",
		ClientID:              "client-123",
		PostLogoutRedirectURI: "https://app.example.com/",
	})
	require.NoError(t, err)

	assert.Equal(t,
		"https://contoso.b2clogin.com/contoso.onmicrosoft.com/B2C_1_susi/oauth2/v2.0/logout?post_logout_redirect_uri=https%3A%2F%2Fapp.example.com%2F",
		p.EndSessionURL())
}

func TestB2CProvider_ExchangeAndUserInfo(t *testing.T) {
	idToken := signedIDToken(t, jwt.MapClaims{
		"oid":         "oid-42",
		"tid":         "tenant-1",
		"name":        "Jane Doe",
		"given_name":  "Jane",
		"family_name": "Doe",
		"emails":      []any{"jane@contoso.com"},
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/v2.0/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "client-123", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	defer srv.Close()

	p, err := NewB2CProvider(B2CConfig{
		Authority:    srv.URL,
		ClientID:     "client-123",
		ClientSecret: "secret",
	})
	require.NoError(t, err)

	token, err := p.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)

	id, err := p.UserInfo(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, identity.SourceAccount, id.Source)
	assert.Equal(t, "jane@contoso.com", id.Email)
	assert.Equal(t, "Jane Doe", id.Name)
	assert.Equal(t, "Jane", id.GivenName)
	assert.Equal(t, "Doe", id.Surname)
	assert.Equal(t, "oid-42", id.UserID)
	assert.Equal(t, "tenant-1", id.TenantID)
}

func TestB2CProvider_ExchangeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"AADB2C90080: The provided grant has expired."}`))
	}))
	defer srv.Close()

	p, err := NewB2CProvider(B2CConfig{Authority: srv.URL, ClientID: "c"})
	require.NoError(t, err)

	_, err = p.ExchangeCode(context.Background(), "expired")
	require.Error(t, err)

	var retrieveErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, "invalid_grant", retrieveErr.ErrorCode)
}

func TestB2CProvider_UserInfoWithoutIDToken(t *testing.T) {
	p, err := NewB2CProvider(B2CConfig{Authority: "https://example.com", ClientID: "c"})
	require.NoError(t, err)

	_, err = p.UserInfo(context.Background(), &oauth2.Token{AccessToken: "at"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id_token")
}

func TestIdentityFromIDToken(t *testing.T) {
	t.Run("preferred_username with email shape wins", func(t *testing.T) {
		id, err := IdentityFromIDToken(signedIDToken(t, jwt.MapClaims{
			"preferred_username": "pref@contoso.com",
			"email":              "other@contoso.com",
			"sub":                "sub-1",
		}))
		require.NoError(t, err)
		assert.Equal(t, "pref@contoso.com", id.Email)
		assert.Equal(t, "sub-1", id.UserID)
	})

	t.Run("username without email shape is skipped", func(t *testing.T) {
		id, err := IdentityFromIDToken(signedIDToken(t, jwt.MapClaims{
			"preferred_username":       "jdoe",
			"signInNames.emailAddress": "jdoe@contoso.com",
		}))
		require.NoError(t, err)
		assert.Equal(t, "jdoe@contoso.com", id.Email)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := IdentityFromIDToken("not-a-jwt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse id_token")
	})
}
