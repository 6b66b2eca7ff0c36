// Package b64url decodes the base64url segments found in JWTs and in the
// client_info blob of OAuth redirects.
package b64url

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeError reports a segment that is not valid base64url or not a JSON
// object. Callers skip the segment and carry on.
type DecodeError struct {
	Segment string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode segment %q: %v", preview(e.Segment), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func preview(s string) string {
	if len(s) > 24 {
		return s[:24] + "..."
	}
	return s
}

// Decode converts the URL-safe alphabet to standard base64, pads to a multiple
// of four and decodes. Already padded input is accepted.
func Decode(segment string) ([]byte, error) {
	s := strings.NewReplacer("-", "+", "_", "/").Replace(segment)
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}

	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Segment: segment, Err: err}
	}
	return out, nil
}

// Encode returns the unpadded base64url form of b.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeJSON decodes segment and parses it as a JSON object.
func DecodeJSON(segment string) (map[string]any, error) {
	raw, err := Decode(segment)
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &DecodeError{Segment: segment, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if obj == nil {
		return nil, &DecodeError{Segment: segment, Err: fmt.Errorf("not a JSON object")}
	}
	return obj, nil
}
