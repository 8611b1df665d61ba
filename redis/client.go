package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v8"
	"github.com/kelseyhightower/envconfig"
)

type DB int
type ReleaseLock func() error

type Client struct {
	client         redis.UniversalClient
	lockExpiration time.Duration
	lockRetries    int
}

type Config struct {
	LockExpirationSeconds   int     `envconfig:"DIAC_REDIS_LOCK_EXPIRATION" default:"30"`
	LockRetries             int     `envconfig:"DIAC_REDIS_LOCK_RETRIES" default:"20"`
	Host                    string  `envconfig:"DIAC_REDIS_HOST" required:"true"`
	Port                    string  `envconfig:"DIAC_REDIS_PORT" default:"6379"`
	DB                      int     `envconfig:"DIAC_REDIS_DB" default:"0"`
	HASentinelPort          string  `envconfig:"DIAC_REDIS_HA_SENTINEL_PORT" default:"26379"`
	HASentinelMasterName    string  `envconfig:"DIAC_REDIS_HA_MASTER_NAME" default:"mymaster"`
	Password                string  `envconfig:"DIAC_REDIS_AUTH_PASSWORD" default:""`
	AuthRequired            bool    `envconfig:"DIAC_REDIS_AUTH_REQUIRED" default:"false"`
	HAMode                  bool    `envconfig:"DIAC_REDIS_HA_MODE" default:"false"`
	HASentinelSocketTimeout float32 `envconfig:"DIAC_REDIS_SOCKET_TIMEOUT" default:"0.5"`
}

// NewClientFromEnv reads Config from the environment.
func NewClientFromEnv() (*Client, error) {
	cfg, err := readEnvironment()
	if err != nil {
		return nil, err
	}
	return NewClient(cfg), nil
}

func NewClient(cfg *Config) *Client {
	var client redis.UniversalClient
	if cfg.HAMode {
		client = CreateFailoverClient(cfg)
	} else {
		client = CreateClient(cfg)
	}
	return Wrap(client, time.Duration(cfg.LockExpirationSeconds)*time.Second, cfg.LockRetries)
}

// Wrap builds a Client over an existing connection.
func Wrap(client redis.UniversalClient, lockExpiration time.Duration, lockRetries int) *Client {
	return &Client{
		client:         client,
		lockExpiration: lockExpiration,
		lockRetries:    lockRetries,
	}
}

func CreateFailoverClient(cfg *Config) *redis.Client {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.HASentinelPort)
	timeout := time.Duration(float64(cfg.HASentinelSocketTimeout) * float64(time.Second))
	options := redis.FailoverOptions{
		SentinelAddrs: []string{addr},
		ReadTimeout:   timeout,
		WriteTimeout:  timeout,
		MaxRetries:    6,
		DB:            cfg.DB,
		MasterName:    cfg.HASentinelMasterName,
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewFailoverClient(&options)
}

func CreateClient(cfg *Config) *redis.Client {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	options := redis.Options{
		Addr:       addr,
		MaxRetries: 6,
		DB:         cfg.DB,
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewClient(&options)
}

func (client *Client) Universal() redis.UniversalClient {
	return client.client
}

// Lock takes the distributed lock "lock:<key>", retrying with linear backoff.
func (client *Client) Lock(ctx context.Context, key string) (ReleaseLock, error) {
	locker := redislock.New(client.client)
	strategy := redislock.LimitRetry(redislock.LinearBackoff(time.Second), client.lockRetries)
	lock, err := locker.Obtain(ctx, LockKey(key), client.lockExpiration, &redislock.Options{RetryStrategy: strategy})
	if err != nil {
		return nil, fmt.Errorf("obtain lock on %s: %w", key, err)
	}
	return func() error {
		return lock.Release(ctx)
	}, nil
}

func (client *Client) Ping(ctx context.Context) error {
	return client.client.Ping(ctx).Err()
}

func (client *Client) Close() error {
	return client.client.Close()
}

func LockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

func readEnvironment() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
