package cache

import "time"

type (
	RedisOption  func(*RedisConfig)
	MemoryOption func(*MemoryConfig)
)

// RedisConfig is the connection and pool setup of RedisCache. Every key is
// stored under Prefix.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
}

// MemoryConfig bounds MemoryCache. Expired entries are swept every
// CleanupInterval.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

func WithRedisAddr(host string, port int) RedisOption {
	return func(c *RedisConfig) {
		if host != "" {
			c.Host = host
		}
		if port > 0 {
			c.Port = port
		}
	}
}

func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) { c.Password, c.DB = password, db }
}

// WithRedisPool sizes the connection pool. Zero values keep the defaults.
func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if size > 0 {
			c.PoolSize = size
		}
		if minIdle > 0 {
			c.MinIdleConns = minIdle
		}
		if timeout > 0 {
			c.PoolTimeout = timeout
		}
	}
}

func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// WithMemoryLimits caps the entry count and sets the sweep interval. Zero values
// keep the defaults.
func WithMemoryLimits(maxEntries int, cleanup time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		if maxEntries > 0 {
			c.MaxSize = maxEntries
		}
		if cleanup > 0 {
			c.CleanupInterval = cleanup
		}
	}
}
