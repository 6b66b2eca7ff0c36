package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/b2c-front/internal/identity"
	"github.com/dgellow/b2c-front/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore persists identities in a Google Cloud Firestore collection,
// one document per session id.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
}

var _ IdentityStore = (*FirestoreStore)(nil)

// identityDoc is the Firestore document layout
type identityDoc struct {
	SessionID          string   `firestore:"session_id"`
	Email              string   `firestore:"email,omitempty"`
	Name               string   `firestore:"name,omitempty"`
	DisplayName        string   `firestore:"display_name,omitempty"`
	GivenName          string   `firestore:"given_name,omitempty"`
	Surname            string   `firestore:"surname,omitempty"`
	UserID             string   `firestore:"user_id,omitempty"`
	TenantID           string   `firestore:"tenant_id,omitempty"`
	Source             string   `firestore:"source"`
	Note               string   `firestore:"note,omitempty"`
	Error              string   `firestore:"error,omitempty"`
	AvailableFragments []string `firestore:"available_fragments,omitempty"`
	Confirmed          bool     `firestore:"confirmed"`
	UpdatedAt          int64    `firestore:"updated_at"`
	ExpiresAt          int64    `firestore:"expires_at"`
}

func toDoc(sessionID string, id identity.Identity, confirmed bool, updated, expires time.Time) identityDoc {
	return identityDoc{
		SessionID:          sessionID,
		Email:              id.Email,
		Name:               id.Name,
		DisplayName:        id.DisplayName,
		GivenName:          id.GivenName,
		Surname:            id.Surname,
		UserID:             id.UserID,
		TenantID:           id.TenantID,
		Source:             string(id.Source),
		Note:               id.Note,
		Error:              id.Error,
		AvailableFragments: id.AvailableFragments,
		Confirmed:          confirmed,
		UpdatedAt:          updated.Unix(),
		ExpiresAt:          expires.Unix(),
	}
}

func (d identityDoc) toRecord() *IdentityRecord {
	return &IdentityRecord{
		SessionID: d.SessionID,
		Identity: identity.Identity{
			Email:              d.Email,
			Name:               d.Name,
			DisplayName:        d.DisplayName,
			GivenName:          d.GivenName,
			Surname:            d.Surname,
			UserID:             d.UserID,
			TenantID:           d.TenantID,
			Source:             identity.Source(d.Source),
			Note:               d.Note,
			Error:              d.Error,
			AvailableFragments: d.AvailableFragments,
		},
		Confirmed: d.Confirmed,
		UpdatedAt: time.Unix(d.UpdatedAt, 0),
		ExpiresAt: time.Unix(d.ExpiresAt, 0),
	}
}

// NewFirestoreStore creates a Firestore-backed identity store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string, ttl time.Duration) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if ttl <= 0 {
		ttl = DefaultIdentityTTL
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("firestore", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStore{
		client:     client,
		collection: collection,
		ttl:        ttl,
	}, nil
}

func (s *FirestoreStore) GetIdentity(ctx context.Context, sessionID string) (*IdentityRecord, error) {
	snap, err := s.client.Collection(s.collection).Doc(sessionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	var doc identityDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode identity: %w", err)
	}

	rec := doc.toRecord()
	if rec.Expired(time.Now()) {
		return nil, ErrIdentityNotFound
	}
	return rec, nil
}

func (s *FirestoreStore) SetIdentity(ctx context.Context, sessionID string, id identity.Identity, confirmed bool) error {
	now := time.Now()
	doc := toDoc(sessionID, id, confirmed, now, now.Add(s.ttl))
	if _, err := s.client.Collection(s.collection).Doc(sessionID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}
	return nil
}

func (s *FirestoreStore) DeleteIdentity(ctx context.Context, sessionID string) error {
	_, err := s.client.Collection(s.collection).Doc(sessionID).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	return nil
}

func (s *FirestoreStore) CleanupExpired(ctx context.Context) (int, error) {
	iter := s.client.Collection(s.collection).
		Where("expires_at", "<=", time.Now().Unix()).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0
	const maxBatchSize = 500 // Firestore batch write limit

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired identities: %w", err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}

	return count, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
