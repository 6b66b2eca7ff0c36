package login

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgellow/b2c-front/internal/backend"
	"github.com/dgellow/b2c-front/internal/crypto"
	"github.com/dgellow/b2c-front/internal/fragment"
	"github.com/dgellow/b2c-front/internal/identity"
	"github.com/dgellow/b2c-front/internal/log"
)

// State is a step of the login flow
type State int

const (
	AnonymousAwaitingLogin State = iota
	RedirectedToProvider
	FragmentReceived
	IdentityResolvedLocally
	DeferredToBackend
	BackendConfirmed
	LoggedIn
)

func (s State) String() string {
	switch s {
	case AnonymousAwaitingLogin:
		return "anonymous"
	case RedirectedToProvider:
		return "redirected_to_provider"
	case FragmentReceived:
		return "fragment_received"
	case IdentityResolvedLocally:
		return "identity_resolved_locally"
	case DeferredToBackend:
		return "deferred_to_backend"
	case BackendConfirmed:
		return "backend_confirmed"
	case LoggedIn:
		return "logged_in"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the current state
	ErrInvalidTransition = errors.New("invalid login state transition")
	// ErrStateMismatch is returned when the redirect's state parameter does
	// not match the one issued by BeginLogin
	ErrStateMismatch = errors.New("redirect state does not match login request")
)

// Store is the persisted identity for one browser session. confirmed
// records whether the backend accepted the identity.
type Store interface {
	// Load returns nil without error when nothing is stored
	Load(ctx context.Context) (id *identity.Identity, confirmed bool, err error)
	Save(ctx context.Context, id identity.Identity, confirmed bool) error
	Clear(ctx context.Context) error
}

// Navigator sends the browser somewhere
type Navigator interface {
	Navigate(url string)
}

// Confirmer reports a resolved identity to the backend
type Confirmer interface {
	Confirm(ctx context.Context, f fragment.Fragment, id identity.Identity) (*backend.Response, error)
}

// Config holds the capabilities a Flow runs against
type Config struct {
	Store     Store
	// Navigator defaults to discarding navigations
	Navigator Navigator
	// Confirmer may be nil, in which case the local identity is final
	Confirmer Confirmer
	// AuthURL builds the provider authorize URL for a state value
	AuthURL func(state string) string
	// LogoutURL is where Logout navigates, if set
	LogoutURL string
	// Resolver defaults to the standard candidate order
	Resolver *identity.Resolver
	// NewState defaults to crypto.GenerateSecureToken
	NewState func() (string, error)
}

// Result is the outcome of handling one redirect
type Result struct {
	State              State              `json:"state"`
	Identity           identity.Identity  `json:"userInfo"`
	RedirectURL        string             `json:"redirectUrl,omitempty"`
	NeedsTokenExchange bool               `json:"needsTokenExchange"`
	Attempts           []identity.Attempt `json:"-"`
}

// Flow drives one browser session through login and logout.
// It is safe for concurrent use but operations are serialized.
type Flow struct {
	cfg Config

	mu            sync.Mutex
	state         State
	expectedState string
	identity      *identity.Identity
}

// New creates a flow in AnonymousAwaitingLogin
func New(cfg Config) *Flow {
	if cfg.Resolver == nil {
		cfg.Resolver = identity.NewResolver()
	}
	if cfg.NewState == nil {
		cfg.NewState = crypto.GenerateSecureToken
	}
	if cfg.Navigator == nil {
		cfg.Navigator = NavigatorFunc(func(string) {})
	}
	return &Flow{cfg: cfg, state: AnonymousAwaitingLogin}
}

// Resume recreates a flow that already redirected to the provider with
// the given state value. Stateless transports use it to pick the flow up
// again when the redirect lands. An empty expectedState disables the check.
func Resume(cfg Config, expectedState string) *Flow {
	f := New(cfg)
	f.state = RedirectedToProvider
	f.expectedState = expectedState
	return f
}

// State returns the current state
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Identity returns the current identity, or nil when there is none
func (f *Flow) Identity() *identity.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identity == nil {
		return nil
	}
	cp := *f.identity
	return &cp
}

func (f *Flow) transition(from []State, to State) error {
	for _, s := range from {
		if f.state == s {
			log.LogTraceWithFields("login", "State transition", map[string]any{
				"from": f.state.String(),
				"to":   to.String(),
			})
			f.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, f.state, to)
}

// Restore loads the persisted identity at startup. A confirmed identity
// means the session is already logged in; an unconfirmed one puts the flow
// back in the resolution state it stopped in.
func (f *Flow) Restore(ctx context.Context) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != AnonymousAwaitingLogin {
		return nil, fmt.Errorf("%w: restore from %s", ErrInvalidTransition, f.state)
	}

	id, confirmed, err := f.cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	if id == nil {
		return nil, nil
	}

	f.identity = id
	switch {
	case confirmed:
		f.state = LoggedIn
	case id.Source.ResolvedLocally():
		f.state = IdentityResolvedLocally
	default:
		f.state = DeferredToBackend
	}
	return id, nil
}

// BeginLogin generates a state value and navigates to the provider's
// authorize URL. It returns the state value.
func (f *Flow) BeginLogin() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != AnonymousAwaitingLogin {
		return "", fmt.Errorf("%w: login from %s", ErrInvalidTransition, f.state)
	}
	if f.cfg.AuthURL == nil {
		return "", fmt.Errorf("no authorize URL configured")
	}

	state, err := f.cfg.NewState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	f.expectedState = state
	f.state = RedirectedToProvider
	f.cfg.Navigator.Navigate(f.cfg.AuthURL(state))
	return state, nil
}

// HandleRedirect processes the URL the provider redirected to. Missing
// fragments and provider errors return the flow to AnonymousAwaitingLogin
// without persisting anything. A failed backend call leaves the flow in its
// resolution state with the local identity persisted unconfirmed.
func (f *Flow) HandleRedirect(ctx context.Context, rawURL string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.transition([]State{RedirectedToProvider}, FragmentReceived); err != nil {
		return nil, err
	}

	frag, err := fragment.Parse(rawURL)
	if err != nil {
		f.state = AnonymousAwaitingLogin
		return nil, err
	}

	if perr := frag.ProviderError(); perr != nil {
		log.LogWarnWithFields("login", "Provider returned an error", map[string]any{
			"error":       perr.Code(),
			"description": perr.Description(),
		})
		f.state = AnonymousAwaitingLogin
		return nil, perr
	}

	if f.expectedState != "" && frag.Get(fragment.KeyState) != f.expectedState {
		f.state = AnonymousAwaitingLogin
		return nil, ErrStateMismatch
	}

	res := f.cfg.Resolver.Resolve(frag)
	id := res.Identity
	local := id.Source

	next := DeferredToBackend
	if local.ResolvedLocally() {
		next = IdentityResolvedLocally
	}

	// Without a backend the local identity is final.
	if err := f.cfg.Store.Save(ctx, id, f.cfg.Confirmer == nil); err != nil {
		f.state = AnonymousAwaitingLogin
		return nil, fmt.Errorf("failed to persist identity: %w", err)
	}
	f.identity = &id
	f.state = next

	log.LogInfoWithFields("login", "Identity resolved", map[string]any{
		"source":   string(local),
		"state":    next.String(),
		"hasEmail": id.Email != "",
	})

	result := &Result{
		Identity:           id,
		NeedsTokenExchange: local.NeedsTokenExchange(),
		Attempts:           res.Attempts,
	}

	if f.cfg.Confirmer != nil {
		resp, err := f.cfg.Confirmer.Confirm(ctx, frag, id)
		if err != nil {
			return nil, err
		}
		f.state = BackendConfirmed

		confirmed := id
		if resp.UserInfo != nil {
			confirmed = id.Merge(*resp.UserInfo)
		}
		if err := f.cfg.Store.Save(ctx, confirmed, true); err != nil {
			return nil, fmt.Errorf("failed to persist identity: %w", err)
		}
		f.identity = &confirmed
		result.Identity = confirmed
		result.RedirectURL = resp.RedirectURL
	} else {
		f.state = BackendConfirmed
	}

	f.state = LoggedIn
	result.State = LoggedIn
	if result.RedirectURL != "" {
		f.cfg.Navigator.Navigate(result.RedirectURL)
	}
	return result, nil
}

// Logout clears the persisted identity and returns to
// AnonymousAwaitingLogin. It is valid from any state.
func (f *Flow) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.identity = nil
	f.expectedState = ""
	f.state = AnonymousAwaitingLogin

	if err := f.cfg.Store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear identity: %w", err)
	}
	if f.cfg.LogoutURL != "" {
		f.cfg.Navigator.Navigate(f.cfg.LogoutURL)
	}
	return nil
}
