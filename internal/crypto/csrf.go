package crypto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CSRFProtection issues stateless nonce:timestamp:signature tokens. The
// redirect landing page embeds one and the fragment endpoint checks it.
type CSRFProtection struct {
	signingKey []byte
	ttl        time.Duration
}

// NewCSRFProtection creates a new CSRF protection instance
func NewCSRFProtection(signingKey []byte, ttl time.Duration) CSRFProtection {
	return CSRFProtection{
		signingKey: signingKey,
		ttl:        ttl,
	}
}

// Generate creates a new CSRF token
func (c *CSRFProtection) Generate() (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	data := nonce + ":" + strconv.FormatInt(time.Now().Unix(), 10)
	return data + ":" + SignData(data, c.signingKey), nil
}

// Validate checks if a CSRF token is valid and not expired
func (c *CSRFProtection) Validate(token string) bool {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		return false
	}

	timestamp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}
	if time.Since(time.Unix(timestamp, 0)) > c.ttl {
		return false
	}

	return ValidateSignedData(parts[0]+":"+parts[1], parts[2], c.signingKey)
}
