package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dgellow/b2c-front/internal/identity"
)

// ErrIdentityNotFound is returned when no identity is stored for a session
var ErrIdentityNotFound = errors.New("identity not found")

// DefaultIdentityTTL bounds how long a persisted identity outlives its last write
const DefaultIdentityTTL = 24 * time.Hour

// IdentityRecord is the persisted form of a resolved identity for one
// browser session
type IdentityRecord struct {
	SessionID string            `json:"session_id"`
	Identity  identity.Identity `json:"identity"`
	// Confirmed is set once the backend accepted the identity, or when no
	// backend is configured
	Confirmed bool      `json:"confirmed"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at now
func (r *IdentityRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// IdentityStore persists one identity per session id.
// Implementations are safe for concurrent use.
type IdentityStore interface {
	GetIdentity(ctx context.Context, sessionID string) (*IdentityRecord, error)
	SetIdentity(ctx context.Context, sessionID string, id identity.Identity, confirmed bool) error
	// DeleteIdentity succeeds when nothing is stored
	DeleteIdentity(ctx context.Context, sessionID string) error
	// CleanupExpired removes expired records and returns how many were removed
	CleanupExpired(ctx context.Context) (int, error)
	Close() error
}
