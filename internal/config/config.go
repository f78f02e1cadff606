// Package config loads application configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"stackwarden"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	PostgresURL string `env:"POSTGRES_URL,required"`

	// Tenant infrastructure template all private stacks launch from.
	StackTemplateURL string `env:"STACK_TEMPLATE_URL,required"`

	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	PollMaxAttempts int           `env:"POLL_MAX_ATTEMPTS" envDefault:"60"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`

	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	TraceSampleRate  float64 `env:"TRACE_SAMPLE_RATE" envDefault:"1.0"`
	TelemetryEnabled bool    `env:"TELEMETRY_ENABLED" envDefault:"true"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
}

// Load reads configuration from environment variables. A .env file, if
// present, seeds the environment for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
