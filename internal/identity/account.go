package identity

import (
	"github.com/dgellow/b2c-front/internal/claims"
	"github.com/dgellow/b2c-front/internal/emailutil"
)

// Account is a session account whose claims were already verified, either by
// an auth library or by a direct token endpoint response.
type Account struct {
	Username      string
	Name          string
	HomeAccountID string
	TenantID      string
	Claims        claims.Claims
}

// B2C local accounts expose the sign-in email under this claim
const claimSignInEmail = "signInNames.emailAddress"

// FromAccount builds an identity from verified account claims. Email is the
// first candidate that has an email shape.
func FromAccount(a Account) Identity {
	c := a.Claims
	if c == nil {
		c = claims.Claims{}
	}

	return Identity{
		Email: claims.FirstMatching(c, emailutil.IsValid,
			claims.Const(a.Username),
			claims.Field("email"),
			claims.FirstElement("emails"),
			claims.Field(claimSignInEmail),
			claims.Field("upn"),
			claims.Field("preferred_username"),
		),
		Name: claims.First(c,
			claims.Const(a.Name),
			claims.Field("name"),
			claims.Field("given_name"),
		),
		DisplayName: c.String("displayName"),
		GivenName:   c.String("given_name"),
		Surname:     c.String("family_name"),
		UserID: claims.First(c,
			claims.Const(a.HomeAccountID),
			claims.Field("oid"),
			claims.Field("sub"),
		),
		TenantID: claims.First(c,
			claims.Const(a.TenantID),
			claims.Field("tid"),
		),
		Source: SourceAccount,
	}
}
