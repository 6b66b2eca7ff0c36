package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgellow/b2c-front/internal/fragment"
	"github.com/dgellow/b2c-front/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams(t *testing.T) {
	f := fragment.Fragment{"code": "abc.def", "state": "s1", "client_info": "xyz"}

	t.Run("locally resolved", func(t *testing.T) {
		id := identity.Identity{Email: "a@b.com", Source: identity.SourceClientInfo}
		params, err := Params(f, id)
		require.NoError(t, err)

		assert.Equal(t, "abc.def", params.Get("code"))
		assert.Equal(t, "s1", params.Get("state"))
		assert.Equal(t, "xyz", params.Get("client_info"))
		assert.Equal(t, "false", params.Get(ParamNeedsTokenExchange))
		assert.Equal(t, noteExtracted, params.Get(ParamFrontendNote))

		var decoded identity.Identity
		require.NoError(t, json.Unmarshal([]byte(params.Get(ParamUserInfo)), &decoded))
		assert.Equal(t, id, decoded)
	})

	t.Run("compressed payload", func(t *testing.T) {
		params, err := Params(f, identity.Identity{Source: identity.SourceBackendAPI})
		require.NoError(t, err)
		assert.Equal(t, "true", params.Get(ParamNeedsTokenExchange))
		assert.Equal(t, noteCompressed, params.Get(ParamFrontendNote))
	})

	t.Run("fallback", func(t *testing.T) {
		params, err := Params(f, identity.Identity{Source: identity.SourceFallbackBackend})
		require.NoError(t, err)
		assert.Equal(t, "true", params.Get(ParamNeedsTokenExchange))
		assert.Equal(t, noteExtracted, params.Get(ParamFrontendNote))
	})
}

func TestConfirm_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/auth/callback/azure-ad-b2c", r.URL.Path)
		assert.Equal(t, "the-code", r.URL.Query().Get("code"))
		assert.Equal(t, "true", r.URL.Query().Get(ParamNeedsTokenExchange))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"userInfo":    map[string]any{"email": "real@contoso.com", "source": "account"},
			"redirectUrl": "https://app.example.com/home",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/auth/callback/azure-ad-b2c", time.Second)
	resp, err := c.Confirm(context.Background(),
		fragment.Fragment{"code": "the-code"},
		identity.Identity{Source: identity.SourceFallbackBackend})
	require.NoError(t, err)

	require.NotNil(t, resp.UserInfo)
	assert.Equal(t, "real@contoso.com", resp.UserInfo.Email)
	assert.Equal(t, "https://app.example.com/home", resp.RedirectURL)
}

func TestConfirm_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second).Confirm(context.Background(),
		fragment.Fragment{"state": "s"}, identity.Identity{Source: identity.SourceClientInfo})
	require.NoError(t, err)
	assert.Nil(t, resp.UserInfo)
	assert.Empty(t, resp.RedirectURL)
}

func TestConfirm_Failures(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "token exchange failed", http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, time.Second).Confirm(context.Background(),
			fragment.Fragment{"code": "c1"}, identity.Identity{Source: identity.SourceBackendAPI})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCallFailed)

		var callErr *CallError
		require.True(t, errors.As(err, &callErr))
		assert.Equal(t, http.StatusInternalServerError, callErr.StatusCode)
		assert.Contains(t, callErr.Body, "token exchange failed")
	})

	t.Run("invalid json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, time.Second).Confirm(context.Background(),
			fragment.Fragment{"code": "c2"}, identity.Identity{Source: identity.SourceBackendAPI})
		assert.ErrorIs(t, err, ErrCallFailed)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		_, err := NewClient(addr, time.Second).Confirm(context.Background(),
			fragment.Fragment{"code": "c3"}, identity.Identity{Source: identity.SourceBackendAPI})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCallFailed)

		var callErr *CallError
		require.True(t, errors.As(err, &callErr))
		assert.Zero(t, callErr.StatusCode)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := NewClient(srv.URL, 50*time.Millisecond).Confirm(context.Background(),
			fragment.Fragment{"code": "c4"}, identity.Identity{Source: identity.SourceBackendAPI})
		assert.ErrorIs(t, err, ErrCallFailed)
	})
}

func TestConfirm_DuplicateCodesShareOneCall(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"redirectUrl":"/home"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	f := fragment.Fragment{"code": "same-code"}

	var wg sync.WaitGroup
	results := make([]*Response, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.Confirm(context.Background(), f, identity.Identity{Source: identity.SourceBackendAPI})
			assert.NoError(t, err)
			results[i] = resp
		}(i)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "/home", r.RedirectURL)
	}
}

func TestConfirm_KeepsCallbackQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "contoso", r.URL.Query().Get("tenant"))
		assert.Equal(t, "the-code", r.URL.Query().Get("code"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL+"/callback?tenant=contoso", time.Second).Confirm(context.Background(),
		fragment.Fragment{"code": "the-code"},
		identity.Identity{Source: identity.SourceClientInfo})
	require.NoError(t, err)
}

func TestConfirm_LargeErrorBodyTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", maxErrorBody*2)))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Confirm(context.Background(),
		fragment.Fragment{"code": "c"},
		identity.Identity{Source: identity.SourceClientInfo})

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, http.StatusBadGateway, callErr.StatusCode)
	assert.Len(t, callErr.Body, maxErrorBody+len("..."))
}

func TestCallError_Message(t *testing.T) {
	tests := []struct {
		name     string
		err      *CallError
		expected string
	}{
		{"status with body", &CallError{StatusCode: 502, Body: "upstream down"}, "backend call failed: status 502: upstream down"},
		{"status without body", &CallError{StatusCode: 502}, "backend call failed: status 502"},
		{"network error", &CallError{Err: errors.New("connection refused")}, "backend call failed: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
			assert.ErrorIs(t, tt.err, ErrCallFailed)
		})
	}
}

func TestConfirm_EmptyErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Confirm(context.Background(),
		fragment.Fragment{"code": "c"},
		identity.Identity{Source: identity.SourceClientInfo})

	require.Error(t, err)
	assert.Equal(t, "backend call failed: status 502", err.Error())
}
