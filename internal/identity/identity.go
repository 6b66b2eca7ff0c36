// Package identity derives a best-effort user identity from an OAuth redirect
// fragment or from an already verified set of account claims.
package identity

import (
	"fmt"
	"strings"
)

// Source tags the extraction path that produced an Identity
type Source string

const (
	SourceClientInfo       Source = "client_info"
	SourceBackendAPI       Source = "backend_api"
	SourceFallbackBackend  Source = "fallback_backend"
	SourceBackendExtracted Source = "backend_extracted"
	SourceAccount          Source = "account"
	SourceError            Source = "error"

	jwtPartPrefix = "jwt_part_"
)

// JWTPartSource returns the source tag for the token segment at index
func JWTPartSource(index int) Source {
	return Source(fmt.Sprintf("%s%d", jwtPartPrefix, index))
}

// IsJWTPart reports whether s is one of the jwt_part_N tags
func (s Source) IsJWTPart() bool {
	return strings.HasPrefix(string(s), jwtPartPrefix)
}

// ResolvedLocally reports whether the identity carries claims decoded
// without a backend round trip
func (s Source) ResolvedLocally() bool {
	return s == SourceClientInfo || s == SourceAccount || s.IsJWTPart()
}

// NeedsTokenExchange reports whether the backend must exchange the code to
// learn who the user is
func (s Source) NeedsTokenExchange() bool {
	return s == SourceBackendAPI || s == SourceFallbackBackend
}

// Identity is the best-effort record produced once per redirect. Every
// field except Source is optional.
type Identity struct {
	Email              string   `json:"email,omitempty"`
	Name               string   `json:"name,omitempty"`
	DisplayName        string   `json:"displayName,omitempty"`
	GivenName          string   `json:"givenName,omitempty"`
	Surname            string   `json:"surname,omitempty"`
	UserID             string   `json:"userId,omitempty"`
	TenantID           string   `json:"tenantId,omitempty"`
	Source             Source   `json:"source"`
	Note               string   `json:"note,omitempty"`
	Error              string   `json:"error,omitempty"`
	AvailableFragments []string `json:"availableFragments,omitempty"`
}

// Merge overlays the non-empty fields of authoritative onto id and tags the
// result as backend_extracted.
func (id Identity) Merge(authoritative Identity) Identity {
	merged := id
	overlay := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	overlay(&merged.Email, authoritative.Email)
	overlay(&merged.Name, authoritative.Name)
	overlay(&merged.DisplayName, authoritative.DisplayName)
	overlay(&merged.GivenName, authoritative.GivenName)
	overlay(&merged.Surname, authoritative.Surname)
	overlay(&merged.UserID, authoritative.UserID)
	overlay(&merged.TenantID, authoritative.TenantID)

	merged.Source = SourceBackendExtracted
	merged.Note = ""
	merged.Error = ""
	merged.AvailableFragments = nil
	return merged
}
