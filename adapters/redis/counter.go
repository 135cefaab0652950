package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"communityxp/engine"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" yaml:"addr" env:"COMMUNITYXP_REDIS_ADDR"`
	Password     string        `json:"password" yaml:"password" env:"COMMUNITYXP_REDIS_PASSWORD"`
	DB           int           `json:"db" yaml:"db" env:"COMMUNITYXP_REDIS_DB"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" env:"COMMUNITYXP_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" env:"COMMUNITYXP_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"COMMUNITYXP_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"COMMUNITYXP_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"COMMUNITYXP_REDIS_WRITE_TIMEOUT"`
	// Prefix namespaces every key written by the counter.
	Prefix string `json:"prefix" yaml:"prefix" env:"COMMUNITYXP_REDIS_PREFIX"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Prefix:       "communityxp:flood",
	}
}

// Counter is a fixed-window RateCounter shared by every server instance.
// Keys:
// - {prefix}:{key} -> int64 hits, expiring one window after the first hit
type Counter struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and returns a Counter.
func New(config Config) (*Counter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Counter{client: client, prefix: config.Prefix}, nil
}

// NewWithClient creates a Counter using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, prefix string) *Counter {
	return &Counter{client: client, prefix: prefix}
}

// Close closes the Redis connection
func (c *Counter) Close() error {
	return c.client.Close()
}

// Ping checks connectivity for health reporting.
func (c *Counter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Counter) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Lua script: increment and start the window expiry on the first hit.
var incrWindowScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return n
`)

// Incr records a hit for key and returns the hit count of the current window.
func (c *Counter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}
	res, err := incrWindowScript.Run(ctx, c.client, []string{c.key(key)}, window.Milliseconds()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, errors.New("unexpected result type from Redis script")
	}
	return n, nil
}

var _ engine.RateCounter = (*Counter)(nil)
