package storage

import (
	"context"
	"errors"

	"github.com/dgellow/b2c-front/internal/identity"
)

// SessionStore scopes an IdentityStore to one session id. It satisfies the
// single-key persisted identity capability the login flow expects.
type SessionStore struct {
	store     IdentityStore
	sessionID string
}

// ForSession returns a view of store bound to sessionID
func ForSession(store IdentityStore, sessionID string) *SessionStore {
	return &SessionStore{store: store, sessionID: sessionID}
}

// Load returns nil without error when nothing is stored
func (s *SessionStore) Load(ctx context.Context) (*identity.Identity, bool, error) {
	rec, err := s.store.GetIdentity(ctx, s.sessionID)
	if errors.Is(err, ErrIdentityNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &rec.Identity, rec.Confirmed, nil
}

func (s *SessionStore) Save(ctx context.Context, id identity.Identity, confirmed bool) error {
	return s.store.SetIdentity(ctx, s.sessionID, id, confirmed)
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return s.store.DeleteIdentity(ctx, s.sessionID)
}
