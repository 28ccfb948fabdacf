package config

// DefaultConfig returns the default configuration.
func DefaultConfig() *GentheticConfig {
	return &GentheticConfig{
		Generator: GeneratorConfig{
			Concurrency: 5,
			MaxRetries:  3,
			BaseDelayMS: 200,
		},
		Service: ServiceConfig{
			Endpoint:       "http://localhost:8080/generate",
			Model:          "default",
			APIKeyEnv:      "GENTHETIC_API_KEY",
			TimeoutSeconds: 60,
		},
		Output: OutputConfig{
			Path: "genthetic-output.json",
		},
		History: HistoryConfig{
			Path: ".genthetic/runs.db",
		},
		Metrics: MetricsConfig{},
	}
}
