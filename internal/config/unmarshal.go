package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// parseField resolves an optional string-or-reference field
func parseField(raw json.RawMessage, name string) (string, error) {
	if raw == nil {
		return "", nil
	}
	value, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", name, err)
	}
	return value, nil
}

func parseDuration(s, name string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return d, nil
}

// UnmarshalJSON implements custom unmarshaling for Config
func (c *Config) UnmarshalJSON(data []byte) error {
	type rawConfig struct {
		Server        ServerConfig    `json:"server"`
		B2C           B2CConfig       `json:"b2c"`
		Backend       BackendConfig   `json:"backend"`
		Storage       StorageConfig   `json:"storage"`
		SessionSecret json.RawMessage `json:"sessionSecret"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	secret, err := parseField(raw.SessionSecret, "sessionSecret")
	if err != nil {
		return err
	}

	c.Server = raw.Server
	c.B2C = raw.B2C
	c.Backend = raw.Backend
	c.Storage = raw.Storage
	c.SessionSecret = Secret(secret)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type rawServer struct {
		BaseURL        json.RawMessage `json:"baseURL"`
		Addr           json.RawMessage `json:"addr"`
		Name           string          `json:"name"`
		AllowedOrigins []string        `json:"allowedOrigins"`
		RedirectPath   string          `json:"redirectPath"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.BaseURL, err = parseField(raw.BaseURL, "baseURL"); err != nil {
		return err
	}
	if s.Addr, err = parseField(raw.Addr, "addr"); err != nil {
		return err
	}

	s.Name = raw.Name
	s.AllowedOrigins = raw.AllowedOrigins
	s.RedirectPath = raw.RedirectPath
	return nil
}

// UnmarshalJSON implements custom unmarshaling for B2CConfig
func (b *B2CConfig) UnmarshalJSON(data []byte) error {
	type rawB2C struct {
		Tenant                json.RawMessage `json:"tenant"`
		Policy                string          `json:"policy"`
		Domain                string          `json:"domain"`
		Authority             string          `json:"authority"`
		ClientID              json.RawMessage `json:"clientId"`
		ClientSecret          json.RawMessage `json:"clientSecret"`
		RedirectURI           string          `json:"redirectUri"`
		PostLogoutRedirectURI string          `json:"postLogoutRedirectUri"`
		Scopes                []string        `json:"scopes"`
	}

	var raw rawB2C
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if b.Tenant, err = parseField(raw.Tenant, "tenant"); err != nil {
		return err
	}
	if b.ClientID, err = parseField(raw.ClientID, "clientId"); err != nil {
		return err
	}
	secret, err := parseField(raw.ClientSecret, "clientSecret")
	if err != nil {
		return err
	}

	b.ClientSecret = Secret(secret)
	b.Policy = raw.Policy
	b.Domain = raw.Domain
	b.Authority = raw.Authority
	b.RedirectURI = raw.RedirectURI
	b.PostLogoutRedirectURI = raw.PostLogoutRedirectURI
	b.Scopes = raw.Scopes
	return nil
}

// UnmarshalJSON implements custom unmarshaling for BackendConfig
func (b *BackendConfig) UnmarshalJSON(data []byte) error {
	type rawBackend struct {
		CallbackURL   json.RawMessage `json:"callbackUrl"`
		Timeout       string          `json:"timeout"`
		RedirectURL   string          `json:"redirectUrl"`
		ServeCallback bool            `json:"serveCallback"`
	}

	var raw rawBackend
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if b.CallbackURL, err = parseField(raw.CallbackURL, "callbackUrl"); err != nil {
		return err
	}
	if b.Timeout, err = parseDuration(raw.Timeout, "timeout"); err != nil {
		return err
	}
	b.RedirectURL = raw.RedirectURL
	b.ServeCallback = raw.ServeCallback
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind                StorageKind     `json:"kind"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
		RedisAddr           json.RawMessage `json:"redisAddr"`
		RedisPassword       json.RawMessage `json:"redisPassword"`
		RedisDB             int             `json:"redisDB"`
		IdentityTTL         string          `json:"identityTtl"`
		CleanupInterval     string          `json:"cleanupInterval"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.GCPProject, err = parseField(raw.GCPProject, "gcpProject"); err != nil {
		return err
	}
	if s.RedisAddr, err = parseField(raw.RedisAddr, "redisAddr"); err != nil {
		return err
	}
	password, err := parseField(raw.RedisPassword, "redisPassword")
	if err != nil {
		return err
	}
	if s.IdentityTTL, err = parseDuration(raw.IdentityTTL, "identityTtl"); err != nil {
		return err
	}
	if s.CleanupInterval, err = parseDuration(raw.CleanupInterval, "cleanupInterval"); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection
	s.RedisPassword = Secret(password)
	s.RedisDB = raw.RedisDB
	return nil
}
