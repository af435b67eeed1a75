package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ConfigError reports an invalid or missing configuration value with the
// offending key path.
//
//nolint:revive // ConfigError is intentionally named for clarity in external API usage
type ConfigError struct {
	Key     string // config key path, e.g. "api.base_url"
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("invalid config: %s: %s", e.Key, e.Message)
	}
	return fmt.Sprintf("invalid config: %s", e.Message)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against its struct tags and returns a
// ConfigError naming the first offending key.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ConfigError{
			Key:     keyPath(fe.Namespace()),
			Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
		}
	}
	return &ConfigError{Message: err.Error()}
}

// keyPath converts a validator namespace like "Config.API.BaseURL" into
// the koanf key path "api.base_url".
func keyPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:] // drop the root struct name
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(field string) string {
	var b strings.Builder
	prevUpper := true
	for i, r := range field {
		upper := r >= 'A' && r <= 'Z'
		if upper {
			// Start a new word unless we are inside an acronym run (API, URL).
			nextLower := i+1 < len(field) && field[i+1] >= 'a' && field[i+1] <= 'z'
			if i > 0 && (!prevUpper || nextLower) {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
		prevUpper = upper
	}
	return b.String()
}
