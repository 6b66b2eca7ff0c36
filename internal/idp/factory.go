package idp

import (
	"fmt"

	"github.com/dgellow/b2c-front/internal/config"
)

// NewProvider creates a Provider from the b2c configuration section.
func NewProvider(cfg config.B2CConfig) (Provider, error) {
	p, err := NewB2CProvider(B2CConfig{
		Tenant:                cfg.Tenant,
		Policy:                cfg.Policy,
		Domain:                cfg.Domain,
		Authority:             cfg.Authority,
		ClientID:              cfg.ClientID,
		ClientSecret:          string(cfg.ClientSecret),
		RedirectURI:           cfg.RedirectURI,
		PostLogoutRedirectURI: cfg.PostLogoutRedirectURI,
		Scopes:                cfg.Scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid b2c configuration: %w", err)
	}
	return p, nil
}
