package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dgellow/b2c-front/internal/urlutil"
)

// VersionPrefix is the accepted config version prefix
const VersionPrefix = "v0.0.1-DEV_EDITION"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the identity store
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
	StorageRedis     StorageKind = "redis"
)

// Defaults applied when a field is omitted
const (
	DefaultRedirectPath        = "/auth-callback"
	DefaultIdentityTTL         = 24 * time.Hour
	DefaultCleanupInterval     = 15 * time.Minute
	DefaultBackendTimeout      = 10 * time.Second
	DefaultFirestoreCollection = "b2c_front_identities"
	DefaultName                = "b2c-front"
)

// ServerConfig is the HTTP shell configuration
type ServerConfig struct {
	BaseURL        string   `json:"baseURL"`
	Addr           string   `json:"addr"`
	Name           string   `json:"name"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
	// RedirectPath is the path B2C redirects to; it serves the landing page
	RedirectPath string `json:"redirectPath,omitempty"`
}

// B2CConfig is the Azure AD B2C user flow configuration
type B2CConfig struct {
	Tenant                string   `json:"tenant"`
	Policy                string   `json:"policy"`
	Domain                string   `json:"domain,omitempty"`
	Authority             string   `json:"authority,omitempty"`
	ClientID              string   `json:"clientId"`
	ClientSecret          Secret   `json:"clientSecret"`
	RedirectURI           string   `json:"redirectUri"`
	PostLogoutRedirectURI string   `json:"postLogoutRedirectUri,omitempty"`
	Scopes                []string `json:"scopes,omitempty"`
}

// BackendConfig configures the confirmation call and the reference
// callback endpoint
type BackendConfig struct {
	CallbackURL string        `json:"callbackUrl"`
	Timeout     time.Duration `json:"timeout"`
	// RedirectURL is returned by the reference callback endpoint
	RedirectURL string `json:"redirectUrl,omitempty"`
	// ServeCallback mounts the reference callback endpoint on this server
	ServeCallback bool `json:"serveCallback,omitempty"`
}

// StorageConfig selects and configures the identity store
type StorageConfig struct {
	Kind                StorageKind   `json:"kind"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
	RedisAddr           string        `json:"redisAddr,omitempty"`
	RedisPassword       Secret        `json:"redisPassword,omitempty"`
	RedisDB             int           `json:"redisDB,omitempty"`
	IdentityTTL         time.Duration `json:"identityTtl"`
	CleanupInterval     time.Duration `json:"cleanupInterval"`
}

// Config represents the config structure with resolved values
type Config struct {
	Server        ServerConfig  `json:"server"`
	B2C           B2CConfig     `json:"b2c"`
	Backend       BackendConfig `json:"backend"`
	Storage       StorageConfig `json:"storage"`
	SessionSecret Secret        `json:"sessionSecret"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference, resolving the reference immediately
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// LandingURL is the absolute URL of the redirect landing page. The b2c
// redirectUri should point here.
func (c Config) LandingURL() (string, error) {
	return urlutil.JoinPath(c.Server.BaseURL, c.Server.RedirectPath)
}
