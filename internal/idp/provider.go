package idp

import (
	"context"

	"github.com/dgellow/b2c-front/internal/identity"
	"golang.org/x/oauth2"
)

// Provider abstracts identity provider operations.
type Provider interface {
	// Type returns the provider type identifier
	Type() string

	// AuthURL generates the authorization URL for the redirect flow.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// UserInfo extracts the user's identity from a token response.
	UserInfo(ctx context.Context, token *oauth2.Token) (*identity.Identity, error)

	// EndSessionURL is where the browser goes to sign out at the provider.
	EndSessionURL() string
}
