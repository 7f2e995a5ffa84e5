package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full environment surface shared by the daemons. Each binary
// reads the subset it needs.
type Config struct {
	// Broker
	KafkaBrokers        string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	CommandTopic        string `env:"COMMAND_TOPIC" envDefault:"payment-commands"`
	EventTopic          string `env:"EVENT_TOPIC" envDefault:"payment-events"`
	CommandGroup        string `env:"COMMAND_GROUP" envDefault:"commandd"`
	SagaGroup           string `env:"SAGA_GROUP" envDefault:"sagad"`
	NotifierGroup       string `env:"NOTIFIER_GROUP" envDefault:"notifier"`
	CommandBrokered     bool   `env:"COMMAND_CHANNEL_BROKERED" envDefault:"true"`
	EventBrokered       bool   `env:"EVENT_CHANNEL_BROKERED" envDefault:"true"`
	PublishMaxAttempts  int    `env:"PUBLISH_MAX_ATTEMPTS" envDefault:"5"`
	ConnectMaxAttempts  int    `env:"CONNECT_MAX_ATTEMPTS" envDefault:"10"`
	ConnectBackoffMilli int    `env:"CONNECT_BACKOFF_MS" envDefault:"500"`

	// Persistence
	DatabaseURL         string `env:"DATABASE_URL"`
	DynamoEventTable    string `env:"DYNAMO_EVENT_TABLE"`
	DynamoSnapshotTable string `env:"DYNAMO_SNAPSHOT_TABLE"`

	// Saga timing
	RetryIntervalMinutes      int `env:"RETRY_INTERVAL_MINUTES" envDefault:"5"`
	RetryLimitMinutes         int `env:"RETRY_LIMIT_MINUTES" envDefault:"60"`
	SettlementIntervalMinutes int `env:"SETTLEMENT_INTERVAL_MINUTES" envDefault:"30"`
	SettlementLimitMinutes    int `env:"SETTLEMENT_LIMIT_MINUTES" envDefault:"1440"`

	// Notifications
	SMTPHost     string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"1025"`
	EmailFrom    string `env:"EMAIL_FROM" envDefault:"noreply@payments.example.com"`
	OpsRecipient string `env:"OPS_EMAIL" envDefault:"ops@payments.example.com"`
}

// Load parses the environment into a Config
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Brokers splits the broker list
func (c Config) Brokers() []string {
	return strings.Split(c.KafkaBrokers, ",")
}

// ConnectBackoff is the base backoff between broker dial attempts
func (c Config) ConnectBackoff() time.Duration {
	return time.Duration(c.ConnectBackoffMilli) * time.Millisecond
}

// RetryInterval is the base delay between processing retries
func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMinutes) * time.Minute
}

// RetryLimit is the processing retry window measured from the first failure
func (c Config) RetryLimit() time.Duration {
	return time.Duration(c.RetryLimitMinutes) * time.Minute
}

// SettlementInterval is the base delay between settlement verifications
func (c Config) SettlementInterval() time.Duration {
	return time.Duration(c.SettlementIntervalMinutes) * time.Minute
}

// SettlementLimit is the settlement verification window
func (c Config) SettlementLimit() time.Duration {
	return time.Duration(c.SettlementLimitMinutes) * time.Minute
}
