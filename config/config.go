// Package config loads and validates the Muset client configuration from
// defaults, an optional YAML file, and MUSET_-prefixed environment
// variables, in increasing order of priority.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultFile is the optional YAML configuration file name
	DefaultFile = "muset.yaml"
	// EnvPrefix namespaces environment overrides, e.g. MUSET_API_BASE_URL
	EnvPrefix = "MUSET_"
)

// Option customizes how Load assembles the configuration.
type Option func(*loadOptions)

type loadOptions struct {
	filePath string
	rawYAML  []byte
	skipEnv  bool
}

// WithFile overrides the YAML file path.
func WithFile(path string) Option {
	return func(o *loadOptions) { o.filePath = path }
}

// WithYAML layers raw YAML bytes over the defaults. Tests use this to
// avoid touching the filesystem.
func WithYAML(raw []byte) Option {
	return func(o *loadOptions) { o.rawYAML = raw }
}

// WithoutEnv disables environment variable overrides.
func WithoutEnv() Option {
	return func(o *loadOptions) { o.skipEnv = true }
}

// Load assembles the configuration with priority:
// environment variables > raw YAML > YAML file > defaults.
// The YAML file is optional; a missing file is not an error.
func Load(opts ...Option) (*Config, error) {
	options := loadOptions{filePath: DefaultFile}
	for _, opt := range opts {
		opt(&options)
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(file.Provider(options.filePath), yaml.Parser()); err != nil && options.filePath != DefaultFile {
		// An explicitly named file must exist; the default one is optional.
		return nil, fmt.Errorf("failed to load %s: %w", options.filePath, err)
	}

	if options.rawYAML != nil {
		if err := k.Load(rawbytes.Provider(options.rawYAML), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse raw config: %w", err)
		}
	}

	if !options.skipEnv {
		err := k.Load(envprovider.Provider(".", envprovider.Opt{
			Prefix: EnvPrefix,
			TransformFunc: func(key, value string) (string, any) {
				// MUSET_API_BASE_URL -> api.base_url: the first underscore
				// separates the section, the rest stay as-is.
				key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
				section, rest, found := strings.Cut(key, "_")
				if !found {
					return key, value
				}
				return section + "." + rest, value
			},
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() map[string]any {
	return map[string]any{
		"api.timeout":            "30s",
		"api.login_path":         "/login",
		"api.auth_path_prefixes": []string{"/api/v1/auth"},

		"retry.max_retries":   3,
		"retry.initial_delay": "500ms",
		"retry.multiplier":    2.0,
		"retry.max_delay":     "10s",

		"poller.interval": "2s",

		"log.level":             "info",
		"log.pretty":            false,
		"log.payloads":          false,
		"log.max_payload_bytes": 2048,
	}
}
