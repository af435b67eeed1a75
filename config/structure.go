package config

import "time"

// Config is the root configuration for the Muset client.
type Config struct {
	API    APIConfig    `koanf:"api" validate:"required"`
	Retry  RetryConfig  `koanf:"retry"`
	Poller PollerConfig `koanf:"poller"`
	Log    LogConfig    `koanf:"log"`
}

// APIConfig describes the Muset backend the client talks to.
type APIConfig struct {
	// BaseURL is the root of the Muset API, e.g. "https://api.muset.app"
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	// LoginPath is the login view path; 401 handling never redirects
	// when the navigator reports this view as current.
	LoginPath string `koanf:"login_path" validate:"required,startswith=/"`
	// AuthPathPrefixes name endpoints whose 401 responses must not
	// trigger the logout/redirect sequence (e.g. the login call itself).
	AuthPathPrefixes []string `koanf:"auth_path_prefixes" validate:"dive,startswith=/"`
}

// RetryConfig bounds the retry policy for idempotent requests.
type RetryConfig struct {
	MaxRetries   int           `koanf:"max_retries" validate:"gte=0"`
	InitialDelay time.Duration `koanf:"initial_delay" validate:"gt=0"`
	Multiplier   float64       `koanf:"multiplier" validate:"gte=1"`
	MaxDelay     time.Duration `koanf:"max_delay" validate:"gtefield=InitialDelay"`
}

// PollerConfig controls the task status poller.
type PollerConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
}

// LogConfig controls client logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `koanf:"pretty"`
	// Payloads enables debug logging of request/response headers and bodies.
	// Development aid only; bodies are capped at MaxPayloadBytes.
	Payloads        bool `koanf:"payloads"`
	MaxPayloadBytes int  `koanf:"max_payload_bytes" validate:"gte=0"`
}
