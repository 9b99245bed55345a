package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Default tuning values. Prefetch and cadence mirror what the scheduler-driven
// drain was originally operated with.
const (
	DefaultPrefetchCount     = 5
	DefaultDrainInterval     = time.Minute
	DefaultDrainIdleWait     = time.Second
	DefaultStagingTTL        = 60 * time.Second
	DefaultHeartbeatInterval = time.Second
	DefaultSidecarRetries    = 3
	DefaultSidecarRetryDelay = time.Second
	DefaultMetricsPort       = 9464
	DefaultServiceName       = "frontend"
)

// Config groups the settings required to run the sync pipeline. Broker
// connection parameters are environment-provided; everything else has a
// working default.
type Config struct {
	// RabbitMQ connection parameters.
	RabbitMQHost     string
	RabbitMQPort     int
	RabbitMQUser     string
	RabbitMQPassword string
	RabbitMQVHost    string

	// ServiceName identifies this instance in controlroom logs and heartbeats.
	ServiceName string

	// SQLitePath is the local record store database file. ":memory:" keeps the
	// store in process memory (useful for testing).
	SQLitePath string

	// PrefetchCount bounds how many messages one drain invocation consumes.
	PrefetchCount int
	// DrainInterval is the cadence the host scheduler runs the drain at.
	DrainInterval time.Duration
	// DrainIdleWait is how long a drain waits for the next message before
	// concluding the queue is empty.
	DrainIdleWait time.Duration

	// StagingTTL bounds how long a captured pre-mutation field value stays
	// valid before it is discarded.
	StagingTTL time.Duration

	// Calendar source settings. Empty CalendarBaseURL disables the source.
	CalendarBaseURL string
	CalendarID      string

	HeartbeatInterval time.Duration

	MetricsEnabled bool
	MetricsPort    int
}

// FromEnv builds a Config from environment variables, applying defaults for
// everything the environment leaves unset.
func FromEnv() (*Config, error) {
	c := &Config{
		RabbitMQHost:      os.Getenv("RABBITMQ_HOST"),
		RabbitMQUser:      os.Getenv("RABBITMQ_USER"),
		RabbitMQPassword:  os.Getenv("RABBITMQ_PASSWORD"),
		RabbitMQVHost:     envOr("MQ_VHOST", "/"),
		ServiceName:       envOr("SERVICE_NAME", DefaultServiceName),
		SQLitePath:        envOr("SYNCBRIDGE_DB", "syncbridge.db"),
		PrefetchCount:     DefaultPrefetchCount,
		DrainInterval:     DefaultDrainInterval,
		DrainIdleWait:     DefaultDrainIdleWait,
		StagingTTL:        DefaultStagingTTL,
		CalendarBaseURL:   os.Getenv("CALENDAR_BASE_URL"),
		CalendarID:        os.Getenv("CALENDAR_ID"),
		HeartbeatInterval: DefaultHeartbeatInterval,
		MetricsPort:       DefaultMetricsPort,
	}

	port := envOr("RABBITMQ_PORT", "5672")
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid RABBITMQ_PORT %q: %w", port, err)
	}
	c.RabbitMQPort = p

	if v := os.Getenv("SYNCBRIDGE_PREFETCH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SYNCBRIDGE_PREFETCH %q: %w", v, err)
		}
		c.PrefetchCount = n
	}
	if v := os.Getenv("SYNCBRIDGE_DRAIN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SYNCBRIDGE_DRAIN_INTERVAL %q: %w", v, err)
		}
		c.DrainInterval = d
	}
	if v := os.Getenv("SYNCBRIDGE_METRICS"); v != "" {
		c.MetricsEnabled = v == "1" || v == "true"
	}

	return c, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// AMQPURI renders the connection parameters as an amqp:// URI.
func (c *Config) AMQPURI() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.RabbitMQUser, c.RabbitMQPassword),
		Host:   fmt.Sprintf("%s:%d", c.RabbitMQHost, c.RabbitMQPort),
		Path:   c.RabbitMQVHost,
	}
	return u.String()
}

// Validate checks that the configuration can run the pipeline. Broker
// credentials are not validated here; a wrong password surfaces as a connect
// failure handled by the drain's retry-at-next-tick policy.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RabbitMQHost, validation.Required),
		validation.Field(&c.RabbitMQPort, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.SQLitePath, validation.Required),
		validation.Field(&c.PrefetchCount, validation.Min(1)),
		validation.Field(&c.DrainInterval, validation.Min(time.Second)),
		validation.Field(&c.StagingTTL, validation.Min(time.Second)),
		validation.Field(&c.MetricsPort, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.CalendarBaseURL, is.URL),
	)
}

func (c Config) String() string {
	copy := c
	if copy.RabbitMQPassword != "" {
		copy.RabbitMQPassword = "***REDACTED***"
	}
	// Type alias avoids infinite recursion when printing.
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(copy))
}
