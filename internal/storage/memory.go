package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dgellow/b2c-front/internal/identity"
	"github.com/dgellow/b2c-front/internal/log"
)

var _ IdentityStore = (*MemoryStore)(nil)

// MemoryStore keeps identities in process memory. Records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*IdentityRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a memory store. A non-positive ttl uses DefaultIdentityTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultIdentityTTL
	}
	return &MemoryStore{
		records: make(map[string]*IdentityRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetIdentity returns a copy of the stored record. Expired records are
// reported as missing even before cleanup removes them.
func (s *MemoryStore) GetIdentity(_ context.Context, sessionID string) (*IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[sessionID]
	if !ok || rec.Expired(s.now()) {
		return nil, ErrIdentityNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) SetIdentity(_ context.Context, sessionID string, id identity.Identity, confirmed bool) error {
	now := s.now()

	s.mu.Lock()
	s.records[sessionID] = &IdentityRecord{
		SessionID: sessionID,
		Identity:  id,
		Confirmed: confirmed,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	count := len(s.records)
	s.mu.Unlock()

	log.LogTraceWithFields("storage", "Identity stored", map[string]any{
		"source":    id.Source,
		"confirmed": confirmed,
		"sessions":  count,
	})
	return nil
}

func (s *MemoryStore) DeleteIdentity(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.records, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
