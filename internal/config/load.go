package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/dgellow/b2c-front/internal/log"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse processes config file contents
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, VersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	setDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// secretFields lists the fields that must be {"$env": ...} references
var secretFields = []struct {
	section string
	name    string
}{
	{"", "sessionSecret"},
	{"b2c", "clientSecret"},
	{"storage", "redisPassword"},
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, f := range secretFields {
		section := rawConfig
		if f.section != "" {
			s, ok := rawConfig[f.section].(map[string]any)
			if !ok {
				continue
			}
			section = s
		}

		value, exists := section[f.name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", f.name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", f.name)
			}
		}
	}
	return nil
}

func setDefaults(config *Config) {
	if config.Server.Name == "" {
		config.Server.Name = DefaultName
	}
	if config.Server.RedirectPath == "" {
		config.Server.RedirectPath = DefaultRedirectPath
	}
	if config.Backend.Timeout == 0 {
		config.Backend.Timeout = DefaultBackendTimeout
	}
	if config.Storage.Kind == "" {
		config.Storage.Kind = StorageMemory
	}
	if config.Storage.FirestoreCollection == "" {
		config.Storage.FirestoreCollection = DefaultFirestoreCollection
	}
	if config.Storage.IdentityTTL == 0 {
		config.Storage.IdentityTTL = DefaultIdentityTTL
	}
	if config.Storage.CleanupInterval == 0 {
		config.Storage.CleanupInterval = DefaultCleanupInterval
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if !strings.HasPrefix(config.Server.RedirectPath, "/") {
		return fmt.Errorf("server.redirectPath must start with /")
	}

	if err := validateB2CConfig(&config.B2C); err != nil {
		return fmt.Errorf("b2c config: %w", err)
	}

	if config.Backend.CallbackURL == "" {
		return fmt.Errorf("backend.callbackUrl is required")
	}
	if _, err := url.ParseRequestURI(config.Backend.CallbackURL); err != nil {
		return fmt.Errorf("backend.callbackUrl is not a valid URL: %w", err)
	}
	if config.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout cannot be negative")
	}
	if config.Backend.ServeCallback && config.B2C.ClientSecret == "" {
		return fmt.Errorf("backend.serveCallback requires b2c.clientSecret for the code exchange")
	}

	if len(config.SessionSecret) < 32 {
		return fmt.Errorf("sessionSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(config.SessionSecret))
	}

	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	return nil
}

func validateB2CConfig(b2c *B2CConfig) error {
	if b2c.Authority == "" {
		if b2c.Tenant == "" {
			return fmt.Errorf("tenant is required")
		}
		if b2c.Policy == "" {
			return fmt.Errorf("policy is required")
		}
	}
	if b2c.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if b2c.RedirectURI == "" {
		return fmt.Errorf("redirectUri is required")
	}
	return nil
}

func validateStorageConfig(s *StorageConfig) error {
	switch s.Kind {
	case StorageMemory:
	case StorageFirestore:
		if s.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	case StorageRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("redisAddr is required when using redis storage")
		}
		if s.RedisDB < 0 {
			return fmt.Errorf("redisDB cannot be negative")
		}
	default:
		return fmt.Errorf("unknown storage kind %q (memory, firestore or redis)", s.Kind)
	}

	if s.IdentityTTL < 0 {
		return fmt.Errorf("identityTtl cannot be negative")
	}
	if s.CleanupInterval < 0 {
		return fmt.Errorf("cleanupInterval cannot be negative")
	}
	if s.CleanupInterval > s.IdentityTTL {
		log.LogWarn("Identity cleanup interval is greater than identity TTL")
	}
	return nil
}
