// Package config provides configuration management for the standalone
// bridge daemon. It loads settings from environment variables with sensible
// defaults, following 12-factor app principles.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/coregx/mqttbridge"
)

// Config holds all configuration for the bridge daemon.
type Config struct {
	MQTT       MQTTConfig
	Sink       SinkConfig
	Pipeline   PipelineConfig
	DeadLetter DeadLetterConfig
	Admin      AdminConfig
}

// MQTTConfig holds broker connection configuration.
type MQTTConfig struct {
	BrokerURL string
	Topic     string
	Username  string
	Password  string
	ClientID  string
	QoS       int
}

// SinkConfig holds the HTTP sink configuration.
type SinkConfig struct {
	URL            string
	RequestTimeout time.Duration
}

// PipelineConfig holds delivery pipeline configuration.
type PipelineConfig struct {
	QueueCapacity  int
	OverflowPolicy string
	Workers        int
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	Jitter         bool
	ShutdownPolicy string
}

// DeadLetterConfig selects where abandoned messages are recorded.
type DeadLetterConfig struct {
	// Backend is one of "log", "sql", "redis".
	Backend string

	// SQL settings (Backend == "sql").
	Driver string // mysql, postgres, sqlite3
	DSN    string

	// Redis settings (Backend == "redis").
	RedisAddr   string
	RedisStream string
}

// AdminConfig holds the admin HTTP endpoint configuration.
type AdminConfig struct {
	// ListenAddr serves /healthz and /metrics; empty disables the endpoint.
	ListenAddr string
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		MQTT: MQTTConfig{
			BrokerURL: getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
			Topic:     getEnv("MQTT_TOPIC", "data/sensor"),
			Username:  getEnv("MQTT_USERNAME", ""),
			Password:  getEnv("MQTT_PASSWORD", ""),
			ClientID:  getEnv("MQTT_CLIENT_ID", "mqtt-rest-bridge"),
			QoS:       getEnvInt("MQTT_QOS", 1),
		},
		Sink: SinkConfig{
			URL:            getEnv("SINK_URL", ""),
			RequestTimeout: getEnvDuration("SINK_REQUEST_TIMEOUT", 10*time.Second),
		},
		Pipeline: PipelineConfig{
			QueueCapacity:  getEnvInt("QUEUE_CAPACITY", 1024),
			OverflowPolicy: getEnv("OVERFLOW_POLICY", string(mqttbridge.OverflowBlock)),
			Workers:        getEnvInt("WORKERS", 1),
			MaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 5),
			BaseDelay:      getEnvDuration("RETRY_BASE_DELAY", 1*time.Second),
			Multiplier:     getEnvFloat("RETRY_MULTIPLIER", 2.0),
			MaxDelay:       getEnvDuration("RETRY_MAX_DELAY", 1*time.Minute),
			Jitter:         getEnvBool("RETRY_JITTER", false),
			ShutdownPolicy: getEnv("SHUTDOWN_POLICY", string(mqttbridge.ShutdownAbandon)),
		},
		DeadLetter: DeadLetterConfig{
			Backend:     getEnv("DLQ_BACKEND", "log"),
			Driver:      getEnv("DLQ_DB_DRIVER", "sqlite3"),
			DSN:         getEnv("DLQ_DB_DSN", ""),
			RedisAddr:   getEnv("DLQ_REDIS_ADDR", "localhost:6379"),
			RedisStream: getEnv("DLQ_REDIS_STREAM", ""),
		},
		Admin: AdminConfig{
			ListenAddr: getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration. An invalid sink URL or any other
// validation failure here is fatal at startup, before the pipeline begins
// accepting messages.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(&c.MQTT,
		validation.Field(&c.MQTT.BrokerURL, validation.Required),
		validation.Field(&c.MQTT.Topic, validation.Required),
		validation.Field(&c.MQTT.ClientID, validation.Required),
		validation.Field(&c.MQTT.QoS, validation.Min(0), validation.Max(2)),
	)
	if err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}

	err = validation.ValidateStruct(&c.Sink,
		validation.Field(&c.Sink.URL, validation.Required, is.URL),
		validation.Field(&c.Sink.RequestTimeout, validation.Required, validation.Min(time.Millisecond)),
	)
	if err != nil {
		return fmt.Errorf("sink config: %w", err)
	}

	err = validation.ValidateStruct(&c.Pipeline,
		validation.Field(&c.Pipeline.QueueCapacity, validation.Min(1)),
		validation.Field(&c.Pipeline.OverflowPolicy, validation.Required,
			validation.In(string(mqttbridge.OverflowBlock), string(mqttbridge.OverflowDropOldest))),
		validation.Field(&c.Pipeline.Workers, validation.Min(1)),
		validation.Field(&c.Pipeline.MaxAttempts, validation.Min(1)),
		validation.Field(&c.Pipeline.BaseDelay, validation.Min(time.Millisecond)),
		validation.Field(&c.Pipeline.Multiplier, validation.Min(1.0)),
		validation.Field(&c.Pipeline.MaxDelay, validation.Min(time.Millisecond)),
		validation.Field(&c.Pipeline.ShutdownPolicy, validation.Required,
			validation.In(string(mqttbridge.ShutdownAbandon), string(mqttbridge.ShutdownReportPending))),
	)
	if err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	err = validation.ValidateStruct(&c.DeadLetter,
		validation.Field(&c.DeadLetter.Backend, validation.Required, validation.In("log", "sql", "redis")),
	)
	if err != nil {
		return fmt.Errorf("dead-letter config: %w", err)
	}
	if c.DeadLetter.Backend == "sql" && c.DeadLetter.DSN == "" {
		return fmt.Errorf("dead-letter config: DLQ_DB_DSN is required for the sql backend")
	}

	return nil
}

// getEnv retrieves an environment variable or returns the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns the
// default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float or returns the
// default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns the
// default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration retrieves an environment variable as a duration (e.g.
// "500ms", "10s") or returns the default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
