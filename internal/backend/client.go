package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dgellow/b2c-front/internal/fragment"
	"github.com/dgellow/b2c-front/internal/identity"
	"github.com/dgellow/b2c-front/internal/ioutil"
	"github.com/dgellow/b2c-front/internal/log"
	"github.com/dgellow/b2c-front/internal/urlutil"
	"golang.org/x/sync/singleflight"
)

// Query parameters added on top of the fragment keys
const (
	ParamUserInfo           = "userInfo"
	ParamNeedsTokenExchange = "needsTokenExchange"
	ParamFrontendNote       = "frontendNote"
)

const (
	noteCompressed = "JWT payload is Deflate compressed - backend should exchange code for user tokens"
	noteExtracted  = "Frontend extracted user info successfully"
)

// DefaultTimeout applies when the client is created without one
const DefaultTimeout = 10 * time.Second

// maxErrorBody bounds how much of a failed response is kept in a CallError
const maxErrorBody = 512

// ErrCallFailed matches every confirmation failure, network or HTTP
var ErrCallFailed = errors.New("backend call failed")

// CallError describes a failed confirmation call. StatusCode is zero when
// no response was received.
type CallError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 && e.Body == "" {
		return fmt.Sprintf("backend call failed: status %d", e.StatusCode)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend call failed: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("backend call failed: %v", e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func (e *CallError) Is(target error) bool {
	return target == ErrCallFailed
}

// Response is the backend's answer. Both fields are optional.
type Response struct {
	UserInfo    *identity.Identity `json:"userInfo,omitempty"`
	RedirectURL string             `json:"redirectUrl,omitempty"`
}

// Client calls the backend callback endpoint to confirm a resolved identity
type Client struct {
	callbackURL string
	httpClient  *http.Client
	group       singleflight.Group
}

// NewClient creates a backend client for callbackURL
func NewClient(callbackURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Params builds the callback query: every fragment key, the JSON encoded
// identity, the token exchange flag and a note for the backend.
func Params(f fragment.Fragment, id identity.Identity) (url.Values, error) {
	userInfo, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user info: %w", err)
	}

	params := f.Values()
	params.Set(ParamUserInfo, string(userInfo))
	params.Set(ParamNeedsTokenExchange, fmt.Sprint(id.Source.NeedsTokenExchange()))
	if id.Source == identity.SourceBackendAPI {
		params.Set(ParamFrontendNote, noteCompressed)
	} else {
		params.Set(ParamFrontendNote, noteExtracted)
	}
	return params, nil
}

// Confirm sends the fragment and the locally resolved identity to the
// backend. Concurrent calls for the same authorization code share one
// request.
func (c *Client) Confirm(ctx context.Context, f fragment.Fragment, id identity.Identity) (*Response, error) {
	params, err := Params(f, id)
	if err != nil {
		return nil, err
	}

	key := f.Get(fragment.KeyCode)
	if key == "" {
		return c.do(ctx, params)
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.do(ctx, params)
	})
	if shared {
		log.LogDebugWithFields("backend", "Confirmation call shared with concurrent request", map[string]any{
			"code": log.Truncate(key, 8),
		})
	}
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

func (c *Client) do(ctx context.Context, params url.Values) (*Response, error) {
	target, err := urlutil.WithQuery(c.callbackURL, params)
	if err != nil {
		return nil, fmt.Errorf("invalid callback URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.LogErrorWithFields("backend", "Confirmation call failed", map[string]any{
			"error": err.Error(),
		})
		return nil, &CallError{Err: err}
	}
	defer resp.Body.Close()

	log.LogDebugWithFields("backend", "Confirmation call completed", map[string]any{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CallError{
			StatusCode: resp.StatusCode,
			Body:       ioutil.ReadLimited(resp.Body, maxErrorBody),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return &out, nil
		}
		return nil, &CallError{StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid response body: %w", err)}
	}

	if out.RedirectURL == "" {
		log.LogWarnWithFields("backend", "Backend response has no redirect URL", map[string]any{
			"hasUserInfo": out.UserInfo != nil,
		})
	}
	return &out, nil
}
