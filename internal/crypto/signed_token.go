package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TokenSigner produces HMAC-signed JSON tokens with an optional expiry.
// The login handler keeps the pending state value in one of these.
type TokenSigner struct {
	signingKey []byte
	ttl        time.Duration
}

// NewTokenSigner creates a token signer. A non-positive ttl means tokens
// never expire.
func NewTokenSigner(signingKey []byte, ttl time.Duration) TokenSigner {
	return TokenSigner{
		signingKey: signingKey,
		ttl:        ttl,
	}
}

type tokenData struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
}

// Sign encodes v as "<base64 json>.<signature>"
func (ts *TokenSigner) Sign(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	td := tokenData{Data: payload}
	if ts.ttl > 0 {
		td.ExpiresAt = time.Now().Add(ts.ttl)
	}

	raw, err := json.Marshal(td)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token data: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw) + "." + SignData(string(raw), ts.signingKey), nil
}

// Verify checks signature and expiry, then decodes the payload into v
func (ts *TokenSigner) Verify(token string, v any) error {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok {
		return fmt.Errorf("invalid token format")
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode token data: %w", err)
	}

	if !ValidateSignedData(string(raw), signature, ts.signingKey) {
		return fmt.Errorf("invalid signature")
	}

	var td tokenData
	if err := json.Unmarshal(raw, &td); err != nil {
		return fmt.Errorf("failed to unmarshal token data: %w", err)
	}

	if !td.ExpiresAt.IsZero() && time.Now().After(td.ExpiresAt) {
		return fmt.Errorf("token expired")
	}

	if err := json.Unmarshal(td.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}
