// Package fragment parses the key/value data an authorization server returns
// in the fragment of a redirect URL.
package fragment

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ory/fosite"
)

// ErrMissing is returned when the redirect URL carries no fragment
var ErrMissing = errors.New("no fragment in redirect URL")

// Well-known fragment keys
const (
	KeyCode             = "code"
	KeyState            = "state"
	KeyClientInfo       = "client_info"
	KeyIDToken          = "id_token"
	KeyError            = "error"
	KeyErrorDescription = "error_description"
)

// Fragment maps fragment keys to their decoded values.
// Required keys are not validated here.
type Fragment map[string]string

// Parse splits rawURL on the first '#' and decodes the key=value pairs that follow.
func Parse(rawURL string) (Fragment, error) {
	_, raw, found := strings.Cut(rawURL, "#")
	if !found || raw == "" {
		return nil, ErrMissing
	}
	return ParseRaw(raw), nil
}

// ParseRaw decodes a fragment without its leading '#'.
// Values are form-decoded; a repeated key keeps its last value.
func ParseRaw(raw string) Fragment {
	f := make(Fragment)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		f[unescape(key)] = unescape(value)
	}
	return f
}

func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// Get returns the value for key, or "" when absent
func (f Fragment) Get(key string) string {
	return f[key]
}

// Has reports whether key is present with a non-empty value
func (f Fragment) Has(key string) bool {
	return f[key] != ""
}

// Keys returns the fragment keys in sorted order
func (f Fragment) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the fragment as url.Values, one value per key
func (f Fragment) Values() url.Values {
	v := make(url.Values, len(f))
	for k, val := range f {
		v.Set(k, val)
	}
	return v
}

// ProviderError is an error reported by the identity provider in the
// redirect itself. It is terminal for the redirect and shown verbatim.
type ProviderError struct {
	OAuth *fosite.RFC6749Error
}

func (e *ProviderError) Error() string {
	if e.OAuth.DescriptionField != "" {
		return fmt.Sprintf("%s: %s", e.OAuth.ErrorField, e.OAuth.DescriptionField)
	}
	return e.OAuth.ErrorField
}

func (e *ProviderError) Unwrap() error {
	return e.OAuth
}

// Code returns the OAuth error code, e.g. "access_denied"
func (e *ProviderError) Code() string {
	return e.OAuth.ErrorField
}

// Description returns the provider's error_description, if any
func (e *ProviderError) Description() string {
	return e.OAuth.DescriptionField
}

// ProviderError returns the provider-reported error, or nil when the
// fragment has no error key
func (f Fragment) ProviderError() *ProviderError {
	code := f.Get(KeyError)
	if code == "" {
		return nil
	}
	return &ProviderError{
		OAuth: &fosite.RFC6749Error{
			ErrorField:       code,
			DescriptionField: f.Get(KeyErrorDescription),
			CodeField:        http.StatusBadRequest,
		},
	}
}
