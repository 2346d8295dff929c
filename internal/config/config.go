package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	GatewayURL    string `env:"GATEWAY_URL,required=true"`
	GatewayAPIKey string `env:"GATEWAY_API_KEY,required=true"`
	InvoicingURL  string `env:"INVOICING_URL,required=true"`
	NotifyURL     string `env:"NOTIFY_WEBHOOK_URL,required=true"`

	// PublicBaseURL is the externally reachable base for card-update links.
	PublicBaseURL string `env:"PUBLIC_BASE_URL,required=true"`

	SweepIntervalSec   int    `env:"SWEEP_INTERVAL_SEC,default=120"`
	SweepBatchLimit    int    `env:"SWEEP_BATCH_LIMIT,default=100"`
	WorkerConcurrency  int    `env:"WORKER_CONCURRENCY,default=8"`
	GatewayRatePerSec  int    `env:"GATEWAY_RATE_LIMIT_PER_SEC,default=25"`
	GatewayTimeoutSec  int    `env:"GATEWAY_TIMEOUT_SEC,default=30"`
	HolidayRegion      string `env:"HOLIDAY_REGION,default=FR"`
	SmartTimingSamples int    `env:"SMART_TIMING_MIN_SAMPLES,default=20"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
