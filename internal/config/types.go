package config

// GeneratorConfig tunes the batch scheduler.
type GeneratorConfig struct {
	Concurrency int `json:"concurrency,omitempty"`   // Max batches generated at once
	MaxRetries  int `json:"max_retries,omitempty"`   // Retries per batch before the run fails
	BaseDelayMS int `json:"base_delay_ms,omitempty"` // Initial retry backoff in milliseconds
}

// ServiceConfig points at the generation endpoint.
type ServiceConfig struct {
	Endpoint       string `json:"endpoint,omitempty"`        // Generation service URL
	Model          string `json:"model,omitempty"`           // Model identifier sent with each request
	APIKeyEnv      string `json:"api_key_env,omitempty"`     // Env var holding the API key
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` // Per-request timeout
}

// OutputConfig controls where results land.
type OutputConfig struct {
	Path string `json:"path,omitempty"` // JSON output file; empty discards results
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Path string `json:"path,omitempty"` // SQLite database path
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty"` // Listen address (e.g., ":9090"); empty disables metrics
}

// GentheticConfig is the top-level configuration.
type GentheticConfig struct {
	Generator GeneratorConfig `json:"generator"`
	Service   ServiceConfig   `json:"service"`
	Output    OutputConfig    `json:"output"`
	History   HistoryConfig   `json:"history"`
	Metrics   MetricsConfig   `json:"metrics"`
}
