package identity

import (
	"fmt"
	"strings"

	"github.com/dgellow/b2c-front/internal/b64url"
	"github.com/dgellow/b2c-front/internal/claims"
	"github.com/dgellow/b2c-front/internal/fragment"
	"github.com/dgellow/b2c-front/internal/log"
)

const (
	noteCompressed = "JWT payload is compressed - backend will handle token exchange"
	noteFallback   = "Frontend could not decode the authorization payload - backend will handle token exchange"
)

// Attempt records one candidate evaluation for diagnostics. Attempts are
// never persisted.
type Attempt struct {
	Path    string        `json:"path"`
	Matched bool          `json:"matched"`
	Decoded claims.Claims `json:"decoded,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Resolution is an Identity plus the attempts that led to it
type Resolution struct {
	Identity Identity  `json:"userInfo"`
	Attempts []Attempt `json:"attempts"`
}

// Candidate is one extraction path. Run returns nil when the path does not
// apply or fails; it must not touch anything but its input.
type Candidate struct {
	Name string
	Run  func(f fragment.Fragment) (*Identity, []Attempt)
}

// DefaultCandidates is the strict priority order used by Resolve
var DefaultCandidates = []Candidate{
	{Name: "client_info", Run: fromClientInfo},
	{Name: "jwt_header", Run: fromCompressedHeader},
	{Name: "jwt_payload", Run: fromPayloadSegments},
	{Name: "fallback", Run: fallback},
}

// Resolver evaluates candidates left to right; the first identity wins
type Resolver struct {
	candidates []Candidate
}

// NewResolver creates a resolver. With no candidates it uses DefaultCandidates.
func NewResolver(candidates ...Candidate) *Resolver {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	return &Resolver{candidates: candidates}
}

// Resolve runs the default resolver
func Resolve(f fragment.Fragment) Identity {
	return NewResolver().Resolve(f).Identity
}

// Resolve always returns exactly one identity. A failing or panicking
// candidate is recorded and skipped; a panic anywhere else yields an
// identity with SourceError.
func (r *Resolver) Resolve(f fragment.Fragment) Resolution {
	return recoverResolution(func() Resolution { return r.resolve(f) })
}

func recoverResolution(resolve func() Resolution) (res Resolution) {
	defer func() {
		if rec := recover(); rec != nil {
			log.LogErrorWithFields("resolver", "Identity resolution aborted", map[string]any{
				"panic": fmt.Sprint(rec),
			})
			res.Identity = Identity{
				Source: SourceError,
				Error:  fmt.Sprint(rec),
			}
		}
	}()
	return resolve()
}

func (r *Resolver) resolve(f fragment.Fragment) (res Resolution) {
	log.LogDebugWithFields("resolver", "Resolving identity from fragment", map[string]any{
		"keys": f.Keys(),
	})

	for _, c := range r.candidates {
		id, attempts := runIsolated(c, f)
		res.Attempts = append(res.Attempts, attempts...)
		if id != nil {
			res.Identity = *id
			log.LogInfoWithFields("resolver", "Identity resolved", map[string]any{
				"source": id.Source,
				"path":   c.Name,
			})
			return res
		}
	}

	id, _ := fallback(f)
	res.Identity = *id
	return res
}

func runIsolated(c Candidate, f fragment.Fragment) (id *Identity, attempts []Attempt) {
	defer func() {
		if rec := recover(); rec != nil {
			log.LogWarnWithFields("resolver", "Candidate path panicked", map[string]any{
				"path":  c.Name,
				"panic": fmt.Sprint(rec),
			})
			id = nil
			attempts = append(attempts, Attempt{Path: c.Name, Error: fmt.Sprintf("panic: %v", rec)})
		}
	}()
	return c.Run(f)
}

func decodeAttempt(path, segment string) (claims.Claims, Attempt) {
	obj, err := b64url.DecodeJSON(segment)
	if err != nil {
		log.LogTraceWithFields("resolver", "Segment decode failed", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return nil, Attempt{Path: path, Error: err.Error()}
	}
	return claims.Claims(obj), Attempt{Path: path, Decoded: obj}
}

func fromClientInfo(f fragment.Fragment) (*Identity, []Attempt) {
	if !f.Has(fragment.KeyClientInfo) {
		return nil, nil
	}

	c, attempt := decodeAttempt("client_info", f.Get(fragment.KeyClientInfo))
	if c == nil || !c.HasAny("email", "preferred_username") {
		return nil, []Attempt{attempt}
	}

	attempt.Matched = true
	return &Identity{
		Email:    claims.First(c, claims.Field("email"), claims.Field("preferred_username")),
		Name:     claims.First(c, claims.Field("name"), claims.Field("given_name")),
		UserID:   claims.First(c, claims.Field("uid"), claims.Field("oid")),
		TenantID: c.String("utid"),
		Source:   SourceClientInfo,
	}, []Attempt{attempt}
}

// isCompressed reports whether a JOSE header declares a compressed payload.
// Azure AD B2C writes "Deflate"; RFC 7516 registers "DEF".
func isCompressed(header claims.Claims) bool {
	zip := header.String("zip")
	return strings.EqualFold(zip, "Deflate") || strings.EqualFold(zip, "DEF")
}

func fromCompressedHeader(f fragment.Fragment) (*Identity, []Attempt) {
	if !f.Has(fragment.KeyCode) {
		return nil, nil
	}

	segments := strings.Split(f.Get(fragment.KeyCode), ".")
	header, attempt := decodeAttempt("jwt_header", segments[0])
	if header == nil || !isCompressed(header) {
		return nil, []Attempt{attempt}
	}

	attempt.Matched = true
	log.LogDebugWithFields("resolver", "Authorization payload is compressed, deferring to backend", map[string]any{
		"segments": len(segments),
	})
	return &Identity{
		UserID: f.Get(fragment.KeyState),
		Source: SourceBackendAPI,
		Note:   noteCompressed,
	}, []Attempt{attempt}
}

func fromPayloadSegments(f fragment.Fragment) (*Identity, []Attempt) {
	if !f.Has(fragment.KeyCode) {
		return nil, nil
	}

	segments := strings.Split(f.Get(fragment.KeyCode), ".")
	if len(segments) < 2 {
		return nil, nil
	}

	var attempts []Attempt
	for i := 1; i < len(segments); i++ {
		c, attempt := decodeAttempt(fmt.Sprintf("jwt_part_%d", i), segments[i])
		if c == nil || !c.HasAny("email", "upn", "preferred_username", "name") {
			attempts = append(attempts, attempt)
			continue
		}

		attempt.Matched = true
		attempts = append(attempts, attempt)
		return &Identity{
			Email: claims.First(c,
				claims.Field("email"),
				claims.FirstElement("emails"),
				claims.Field("signInNames.emailAddress"),
				claims.Field("upn"),
				claims.Field("preferred_username"),
			),
			Name: claims.First(c,
				claims.Field("name"),
				claims.Field("given_name"),
				claims.Field("displayName"),
			),
			DisplayName: c.String("displayName"),
			GivenName:   c.String("given_name"),
			Surname:     c.String("family_name"),
			UserID:      claims.First(c, claims.Field("oid"), claims.Field("sub")),
			Source:      JWTPartSource(i),
		}, attempts
	}
	return nil, attempts
}

func fallback(f fragment.Fragment) (*Identity, []Attempt) {
	return &Identity{
		UserID:             f.Get(fragment.KeyState),
		Source:             SourceFallbackBackend,
		Note:               noteFallback,
		AvailableFragments: f.Keys(),
	}, nil
}
