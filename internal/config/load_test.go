package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigJSON = `{
  "version": "v0.0.1-DEV_EDITION",
  "server": {
    "baseURL": "https://app.example.com",
    "addr": ":8080"
  },
  "b2c": {
    "tenant": "contoso",
    "policy": "B2C_1_signupsignin",
    "clientId": {"$env": "TEST_B2C_CLIENT_ID"},
    "clientSecret": {"$env": "TEST_B2C_CLIENT_SECRET"},
    "redirectUri": "https://app.example.com/auth-callback"
  },
  "backend": {
    "callbackUrl": "https://api.example.com/api/auth/callback/azure-ad-b2c",
    "timeout": "5s"
  },
  "storage": {
    "kind": "redis",
    "redisAddr": {"$env": "TEST_REDIS_ADDR"},
    "redisPassword": {"$env": "TEST_REDIS_PASSWORD"},
    "identityTtl": "1h"
  },
  "sessionSecret": {"$env": "TEST_SESSION_SECRET"}
}`

func setTestEnv(t *testing.T) {
	t.Setenv("TEST_B2C_CLIENT_ID", "client-123")
	t.Setenv("TEST_B2C_CLIENT_SECRET", "\"quoted-secret\"")
	t.Setenv("TEST_REDIS_ADDR", "localhost:6379")
	t.Setenv("TEST_REDIS_PASSWORD", "redis-pw")
	t.Setenv("TEST_SESSION_SECRET", "a-session-secret-that-is-long-enough-32")
}

func TestLoad(t *testing.T) {
	setTestEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(validConfigJSON), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com", cfg.Server.BaseURL)
	assert.Equal(t, DefaultName, cfg.Server.Name)
	assert.Equal(t, DefaultRedirectPath, cfg.Server.RedirectPath)

	assert.Equal(t, "contoso", cfg.B2C.Tenant)
	assert.Equal(t, "client-123", cfg.B2C.ClientID)
	assert.Equal(t, Secret("quoted-secret"), cfg.B2C.ClientSecret, "matching quotes are stripped")

	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)

	assert.Equal(t, StorageRedis, cfg.Storage.Kind)
	assert.Equal(t, "localhost:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, Secret("redis-pw"), cfg.Storage.RedisPassword)
	assert.Equal(t, time.Hour, cfg.Storage.IdentityTTL)
	assert.Equal(t, DefaultCleanupInterval, cfg.Storage.CleanupInterval)
	assert.Equal(t, DefaultFirestoreCollection, cfg.Storage.FirestoreCollection)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name        string
		json        string
		env         map[string]string
		expectError string
	}{
		{
			name:        "invalid json",
			json:        `{`,
			expectError: "parsing config JSON",
		},
		{
			name:        "missing version",
			json:        `{"server": {}}`,
			expectError: "config version is required",
		},
		{
			name:        "wrong version",
			json:        `{"version": "v2"}`,
			expectError: "unsupported config version",
		},
		{
			name:        "plain text session secret",
			json:        `{"version": "v0.0.1-DEV_EDITION", "sessionSecret": "hunter2"}`,
			expectError: "sessionSecret must use environment variable reference",
		},
		{
			name:        "plain text client secret",
			json:        `{"version": "v0.0.1-DEV_EDITION", "b2c": {"clientSecret": "hunter2"}}`,
			expectError: "clientSecret must use environment variable reference",
		},
		{
			name:        "unset env var",
			json:        `{"version": "v0.0.1-DEV_EDITION", "sessionSecret": {"$env": "TEST_UNSET_VARIABLE_XYZ"}}`,
			expectError: "environment variable TEST_UNSET_VARIABLE_XYZ not set",
		},
		{
			name:        "bad duration",
			json:        `{"version": "v0.0.1-DEV_EDITION", "backend": {"timeout": "soon"}}`,
			expectError: "parsing timeout",
		},
		{
			name:        "missing base url",
			json:        `{"version": "v0.0.1-DEV_EDITION", "server": {"addr": ":8080"}}`,
			expectError: "server.baseURL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse([]byte(tt.json))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:      "https://app.example.com",
			Addr:         ":8080",
			RedirectPath: "/auth-callback",
		},
		B2C: B2CConfig{
			Tenant:      "contoso",
			Policy:      "B2C_1_susi",
			ClientID:    "client",
			RedirectURI: "https://app.example.com/auth-callback",
		},
		Backend: BackendConfig{
			CallbackURL: "https://api.example.com/callback",
			Timeout:     time.Second,
		},
		Storage: StorageConfig{
			Kind:            StorageMemory,
			IdentityTTL:     time.Hour,
			CleanupInterval: time.Minute,
		},
		SessionSecret: "a-session-secret-that-is-long-enough-32",
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "authority replaces tenant and policy",
			mutate: func(c *Config) { c.B2C.Tenant, c.B2C.Policy, c.B2C.Authority = "", "", "https://login.example.com/x/y" },
		},
		{
			name:        "missing tenant",
			mutate:      func(c *Config) { c.B2C.Tenant = "" },
			expectError: "b2c config: tenant is required",
		},
		{
			name:        "missing redirect uri",
			mutate:      func(c *Config) { c.B2C.RedirectURI = "" },
			expectError: "redirectUri is required",
		},
		{
			name:        "relative callback url",
			mutate:      func(c *Config) { c.Backend.CallbackURL = "not a url" },
			expectError: "backend.callbackUrl is not a valid URL",
		},
		{
			name:        "serve callback without secret",
			mutate:      func(c *Config) { c.Backend.ServeCallback = true },
			expectError: "requires b2c.clientSecret",
		},
		{
			name:        "short session secret",
			mutate:      func(c *Config) { c.SessionSecret = "short" },
			expectError: "sessionSecret must be at least 32 characters",
		},
		{
			name:        "firestore without project",
			mutate:      func(c *Config) { c.Storage.Kind = StorageFirestore },
			expectError: "gcpProject is required",
		},
		{
			name:        "redis without addr",
			mutate:      func(c *Config) { c.Storage.Kind = StorageRedis },
			expectError: "redisAddr is required",
		},
		{
			name:        "unknown storage",
			mutate:      func(c *Config) { c.Storage.Kind = "postgres" },
			expectError: "unknown storage kind",
		},
		{
			name:        "bad redirect path",
			mutate:      func(c *Config) { c.Server.RedirectPath = "auth" },
			expectError: "redirectPath must start with /",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.expectError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	assert.Equal(t, "***", Secret("super-secret").String())
	assert.Equal(t, "", Secret("").String())

	data, err := validConfig().SessionSecret.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"***"`, string(data))
}

func TestLandingURL(t *testing.T) {
	cfg := validConfig()
	landing, err := cfg.LandingURL()
	require.NoError(t, err)
	assert.Equal(t, cfg.B2C.RedirectURI, landing)

	cfg.Server.BaseURL = "https://app.example.com/portal/"
	cfg.Server.RedirectPath = "/signin"
	landing, err = cfg.LandingURL()
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/portal/signin", landing)
}
