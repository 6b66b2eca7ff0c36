package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes validates config contents without resolving env vars
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": \"%s\"", VersionPrefix)
	} else if !strings.HasPrefix(version, VersionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, VersionPrefix, VersionPrefix)
	}

	validateServerStructure(rawConfig, result)
	validateB2CStructure(rawConfig, result)
	validateBackendStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	if secret, ok := rawConfig["sessionSecret"]; ok {
		if verr := validateEnvVarReference(secret, "sessionSecret", "sessionSecret"); verr != nil {
			result.Errors = append(result.Errors, *verr)
		}
	} else {
		result.addError("sessionSecret", "sessionSecret is required. Example: {\"$env\": \"SESSION_SECRET\"}")
	}

	return result
}

func section(rawConfig map[string]any, name string, result *ValidationResult) (map[string]any, bool) {
	s, ok := rawConfig[name].(map[string]any)
	if !ok {
		result.addError(name, "%s field is required and must be an object", name)
		return nil, false
	}
	return s, true
}

func requireFields(s map[string]any, prefix string, result *ValidationResult, fields map[string]string) {
	for name, example := range fields {
		if _, ok := s[name]; !ok {
			result.addError(prefix+"."+name, "%s is required. Example: %s", name, example)
		}
	}
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := section(rawConfig, "server", result)
	if !ok {
		return
	}
	requireFields(server, "server", result, map[string]string{
		"baseURL": "\"https://app.example.com\"",
		"addr":    "\":8080\" or \"0.0.0.0:8080\"",
	})
	if p, ok := server["redirectPath"].(string); ok && !strings.HasPrefix(p, "/") {
		result.addError("server.redirectPath", "redirectPath must start with /")
	}
}

func validateB2CStructure(rawConfig map[string]any, result *ValidationResult) {
	b2c, ok := section(rawConfig, "b2c", result)
	if !ok {
		return
	}

	if _, hasAuthority := b2c["authority"]; !hasAuthority {
		requireFields(b2c, "b2c", result, map[string]string{
			"tenant": "\"contoso\"",
			"policy": "\"B2C_1_signupsignin\"",
		})
	}
	requireFields(b2c, "b2c", result, map[string]string{
		"clientId":    "\"00000000-0000-0000-0000-000000000000\"",
		"redirectUri": "\"https://app.example.com/auth-callback\"",
	})

	if secret, ok := b2c["clientSecret"]; ok {
		if verr := validateEnvVarReference(secret, "clientSecret", "b2c.clientSecret"); verr != nil {
			result.Errors = append(result.Errors, *verr)
		}
	}

	if uri, ok := b2c["redirectUri"].(string); ok && strings.HasPrefix(uri, "http://") && !strings.Contains(uri, "localhost") {
		result.addWarning("b2c.redirectUri", "redirectUri uses plain http. Azure AD B2C only accepts http for localhost")
	}
}

func validateBackendStructure(rawConfig map[string]any, result *ValidationResult) {
	backend, ok := section(rawConfig, "backend", result)
	if !ok {
		return
	}
	requireFields(backend, "backend", result, map[string]string{
		"callbackUrl": "\"https://api.example.com/api/auth/callback/azure-ad-b2c\"",
	})
	if t, ok := backend["timeout"].(string); ok {
		if _, err := time.ParseDuration(t); err != nil {
			result.addError("backend.timeout", "invalid duration '%s'. Example: \"10s\"", t)
		}
	}
	if serve, ok := backend["serveCallback"].(bool); ok && serve {
		b2c, _ := rawConfig["b2c"].(map[string]any)
		if _, ok := b2c["clientSecret"]; !ok {
			result.addError("backend.serveCallback", "serveCallback requires b2c.clientSecret for the code exchange")
		}
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return
	}

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageMemory:
	case StorageFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
	case StorageRedis:
		if _, ok := storage["redisAddr"]; !ok {
			result.addError("storage.redisAddr", "redisAddr is required when using redis storage. Example: \"localhost:6379\"")
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s' - use memory, firestore or redis", kind)
	}

	if pw, ok := storage["redisPassword"]; ok {
		if verr := validateEnvVarReference(pw, "redisPassword", "storage.redisPassword"); verr != nil {
			result.Errors = append(result.Errors, *verr)
		}
	}

	var ttl, cleanup time.Duration
	for _, f := range []struct {
		name string
		dst  *time.Duration
	}{{"identityTtl", &ttl}, {"cleanupInterval", &cleanup}} {
		s, ok := storage[f.name].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			result.addError("storage."+f.name, "invalid duration '%s'", s)
			continue
		}
		*f.dst = d
	}
	if ttl > 0 && cleanup > ttl {
		result.addWarning("storage", "cleanupInterval (%s) is longer than identityTtl (%s). Expired identities will remain stored until cleanup runs.", cleanup, ttl)
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
