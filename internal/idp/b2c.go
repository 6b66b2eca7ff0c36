package idp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dgellow/b2c-front/internal/claims"
	"github.com/dgellow/b2c-front/internal/identity"
	"github.com/dgellow/b2c-front/internal/log"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ProviderTypeB2C identifies the Azure AD B2C provider
const ProviderTypeB2C = "azure-ad-b2c"

// B2CConfig configures an Azure AD B2C user flow.
type B2CConfig struct {
	// Tenant is the short tenant name, e.g. "contoso" for contoso.onmicrosoft.com
	Tenant string
	// Policy is the user flow, e.g. "B2C_1_signupsignin"
	Policy string
	// Domain overrides the login host, default "<tenant>.b2clogin.com"
	Domain string
	// Authority overrides the full authority base URL
	Authority string

	ClientID              string
	ClientSecret          string
	RedirectURI           string
	PostLogoutRedirectURI string
	Scopes                []string
}

// AuthorityURL returns the user flow's authority base URL
func (c B2CConfig) AuthorityURL() string {
	if c.Authority != "" {
		return strings.TrimSuffix(c.Authority, "/")
	}
	domain := c.Domain
	if domain == "" {
		domain = c.Tenant + ".b2clogin.com"
	}
	return fmt.Sprintf("https://%s/%s.onmicrosoft.com/%s", domain, c.Tenant, c.Policy)
}

// B2CProvider implements Provider for Azure AD B2C. The authorization
// response is delivered in the URL fragment.
type B2CProvider struct {
	config        oauth2.Config
	authority     string
	postLogoutURI string
}

// NewB2CProvider creates a B2C provider
func NewB2CProvider(cfg B2CConfig) (*B2CProvider, error) {
	if cfg.Authority == "" && (cfg.Tenant == "" || cfg.Policy == "") {
		return nil, fmt.Errorf("tenant and policy are required for Azure AD B2C")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("clientId is required for Azure AD B2C")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "offline_access"}
	}

	authority := cfg.AuthorityURL()
	return &B2CProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authority + "/oauth2/v2.0/authorize",
				TokenURL:  authority + "/oauth2/v2.0/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		authority:     authority,
		postLogoutURI: cfg.PostLogoutRedirectURI,
	}, nil
}

// Type returns the provider type.
func (p *B2CProvider) Type() string {
	return ProviderTypeB2C
}

// AuthURL generates the authorization URL with response_mode=fragment.
func (p *B2CProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_mode", "fragment"),
		oauth2.SetAuthURLParam("nonce", state),
	)
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *B2CProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		log.LogErrorWithFields("idp", "Code exchange failed", map[string]any{
			"code":  log.Truncate(code, 8),
			"error": err.Error(),
		})
		return nil, err
	}
	return token, nil
}

// UserInfo reads the ID token of a token endpoint response. The token came
// straight from the token endpoint over TLS, so its signature is not checked
// again.
func (p *B2CProvider) UserInfo(_ context.Context, token *oauth2.Token) (*identity.Identity, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil, fmt.Errorf("token response has no id_token")
	}
	id, err := IdentityFromIDToken(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// EndSessionURL returns the user flow's logout endpoint
func (p *B2CProvider) EndSessionURL() string {
	u := p.authority + "/oauth2/v2.0/logout"
	if p.postLogoutURI != "" {
		u += "?" + url.Values{"post_logout_redirect_uri": {p.postLogoutURI}}.Encode()
	}
	return u
}

// IdentityFromIDToken maps ID token claims to an identity through the
// account claims extractor
func IdentityFromIDToken(raw string) (identity.Identity, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return identity.Identity{}, fmt.Errorf("failed to parse id_token: %w", err)
	}

	c := claims.Claims(mc)
	return identity.FromAccount(identity.Account{
		Username:      claims.First(c, claims.Field("preferred_username"), claims.Field("upn")),
		Name:          c.String("name"),
		HomeAccountID: claims.First(c, claims.Field("oid"), claims.Field("sub")),
		TenantID:      c.String("tid"),
		Claims:        c,
	}), nil
}
