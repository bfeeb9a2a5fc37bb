package config

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the shared store that holds every admission
// counter. Timeouts are short on purpose: a slow store fails open.
type RedisConfig struct {
	Enabled          bool
	URL              string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	ReconnectBackoff time.Duration
}

func NewRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:          getEnvBool("REDIS_ENABLED", true),
		URL:              getEnv("REDIS_URL", ""),
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		ConnectTimeout:   getEnvDuration("REDIS_CONNECT_TIMEOUT", 2*time.Second),
		OperationTimeout: getEnvDuration("REDIS_OP_TIMEOUT", 2*time.Second),
		ReconnectBackoff: getEnvDuration("REDIS_RECONNECT_BACKOFF", 5*time.Second),
	}
}

// Options builds go-redis options. REDIS_URL wins over the host/port fields.
func (c RedisConfig) Options() (*redis.Options, error) {
	var opts *redis.Options
	if c.URL != "" {
		parsed, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort),
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		}
	}

	opts.DialTimeout = c.ConnectTimeout
	opts.ReadTimeout = c.OperationTimeout
	opts.WriteTimeout = c.OperationTimeout
	opts.PoolTimeout = c.OperationTimeout
	// A failed check resolves through the fail-open path, not a retry.
	opts.MaxRetries = -1
	return opts, nil
}

// Redacted is the address safe to log.
func (c RedisConfig) Redacted() string {
	opts, err := c.Options()
	if err != nil {
		return "invalid"
	}
	return opts.Addr
}
