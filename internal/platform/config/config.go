// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv     string `env:"APP_ENV" envDefault:"local"`
	HealthPort int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Database
	PostgresDSN         string        `env:"POSTGRES_DSN,required"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Analysis service
	IntelBaseURL string        `env:"INTEL_BASE_URL" envDefault:""`
	IntelAPIKey  string        `env:"INTEL_API_KEY" envDefault:""`
	IntelModel   string        `env:"INTEL_MODEL" envDefault:"standard"`
	IntelTimeout time.Duration `env:"INTEL_TIMEOUT" envDefault:"60s"`
	IntelRPS     int           `env:"INTEL_RATE_LIMIT_RPS" envDefault:"1"`

	// Batching
	BatchMaxMessages  int           `env:"BATCH_MAX_MESSAGES" envDefault:"200"`
	BatchQuietWindow  time.Duration `env:"BATCH_QUIET_WINDOW" envDefault:"15m"`
	BatchStaleAfter   time.Duration `env:"BATCH_STALE_AFTER" envDefault:"10m"`
	SchedulerInterval time.Duration `env:"SCHEDULER_TICK_INTERVAL" envDefault:"5m"`
	JanitorInterval   time.Duration `env:"JANITOR_SWEEP_INTERVAL" envDefault:"10m"`

	// Delivery dispatch
	DispatchPollInterval time.Duration `env:"DISPATCH_POLL_INTERVAL" envDefault:"10s"`
	DispatchBatchSize    int           `env:"DISPATCH_BATCH_SIZE" envDefault:"20"`
	DispatchMaxAttempts  int           `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"3"`
	DispatchRPS          float64       `env:"DISPATCH_RATE_LIMIT_RPS" envDefault:"5"`
	EmailRelayURL        string        `env:"EMAIL_RELAY_URL" envDefault:""`
	EmailRelayKey        string        `env:"EMAIL_RELAY_KEY" envDefault:""`
	WhatsAppAPIURL       string        `env:"WHATSAPP_API_URL" envDefault:""`
	WhatsAppAPIKey       string        `env:"WHATSAPP_API_KEY" envDefault:""`

	// Notifications
	AlertTemplateName string `env:"ALERT_TEMPLATE_NAME" envDefault:"group_alert"`
	AlertTemplateLang string `env:"ALERT_TEMPLATE_LANG" envDefault:"en"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.IntelTimeout <= 0 {
		return fmt.Errorf("INTEL_TIMEOUT must be positive, got %s", c.IntelTimeout)
	}

	if c.BatchStaleAfter <= c.IntelTimeout {
		return fmt.Errorf("BATCH_STALE_AFTER (%s) must exceed INTEL_TIMEOUT (%s)", c.BatchStaleAfter, c.IntelTimeout)
	}

	if c.BatchMaxMessages <= 0 {
		return fmt.Errorf("BATCH_MAX_MESSAGES must be positive, got %d", c.BatchMaxMessages)
	}

	if c.DispatchMaxAttempts <= 0 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be positive, got %d", c.DispatchMaxAttempts)
	}

	return nil
}
