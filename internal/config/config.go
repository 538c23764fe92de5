package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"billminder/internal/log"
	"billminder/internal/notify"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

var validBackends = []string{BackendJSON, BackendSQLite, BackendBolt}

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Storage
	StorageBackend string
	BillsFile      string
	SQLiteDBPath   string
	BoltDBPath     string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL           string
	AMQPExchange      string
	AMQPReminderQueue string
	AMQPResponseQueue string

	// Notifications
	NotifyAuthorization  string
	NotifyGrantOnRequest bool
	DispatchInterval     time.Duration
	SnoozeDuration       time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		StorageBackend: getEnv("STORAGE_BACKEND", BackendJSON),
		BillsFile:      getEnv("BILLS_FILE", "./data/bills.json"),
		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/bills.db"),
		BoltDBPath:     getEnv("BOLT_DB_PATH", "./data/bills.bolt"),

		AMQPURL:           getEnv("AMQP_URL", ""),
		AMQPExchange:      getEnv("AMQP_EXCHANGE", "billminder"),
		AMQPReminderQueue: getEnv("AMQP_REMINDER_QUEUE", "reminders"),
		AMQPResponseQueue: getEnv("AMQP_RESPONSE_QUEUE", "reminder_responses"),

		NotifyAuthorization:  getEnv("NOTIFY_AUTHORIZATION", "not_determined"),
		NotifyGrantOnRequest: getEnvBool("NOTIFY_GRANT_ON_REQUEST", true),
		DispatchInterval:     getEnvDuration("DISPATCH_INTERVAL", 15*time.Second),
		SnoozeDuration:       getEnvDuration("SNOOZE_DURATION", time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", log.FormatText),
	}
}

// AMQPEnabled reports whether the AMQP bridge should be started.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// StoragePath returns the file used by the selected backend.
func (c *Config) StoragePath() string {
	switch c.StorageBackend {
	case BackendSQLite:
		return c.SQLiteDBPath
	case BackendBolt:
		return c.BoltDBPath
	default:
		return c.BillsFile
	}
}

// Validate validates the configuration and returns every problem at once
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if !slices.Contains(validBackends, c.StorageBackend) {
		errors = append(errors, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.StorageBackend, validBackends))
	} else if c.StoragePath() == "" {
		errors = append(errors, fmt.Sprintf("storage path cannot be empty when using %s backend", c.StorageBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPReminderQueue == "" || c.AMQPResponseQueue == "" {
			errors = append(errors, "AMQP queue names cannot be empty when AMQP URL is provided")
		} else if c.AMQPReminderQueue == c.AMQPResponseQueue {
			errors = append(errors, "AMQP reminder and response queues must differ")
		}
	}

	if _, err := notify.ParseAuthorizationStatus(c.NotifyAuthorization); err != nil {
		errors = append(errors, fmt.Sprintf("invalid notification authorization: %v", err))
	}

	if c.DispatchInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid dispatch interval %v: must be at least 1 second", c.DispatchInterval))
	} else if c.DispatchInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid dispatch interval %v: must be at most 1 hour", c.DispatchInterval))
	}

	if c.SnoozeDuration < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid snooze duration %v: must be at least 1 minute", c.SnoozeDuration))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if !slices.Contains([]string{log.FormatText, log.FormatJSON, log.FormatTint}, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text, json or tint", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
