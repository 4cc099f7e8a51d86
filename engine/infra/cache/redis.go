// Package cache holds the Redis client and the run lock built on it.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/compozy/orderetl/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client redis.UniversalClient
	once   sync.Once
	ctx    context.Context
}

const fallbackRedisPingTimeout = 10 * time.Second

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg *Config) (*Redis, error) {
	log := logger.FromContext(ctx).With("component", "infra_redis")
	ctx = logger.ContextWithLogger(ctx, log)
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	client, err := buildRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = fallbackRedisPingTimeout
	}
	if err := pingRedis(ctx, client, timeout); err != nil {
		client.Close()
		return nil, err
	}
	log.Debug("Redis connection established", "host", cfg.Host, "db", cfg.DB, "tls_enabled", cfg.TLSEnabled)
	return &Redis{client: client, ctx: ctx}, nil
}

func buildRedisClient(cfg *Config) (redis.UniversalClient, error) {
	var opt *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing Redis URL: %w", err)
		}
		opt = parsed
	} else {
		port := cfg.Port
		if port == "" {
			port = "6379"
		}
		opt = &redis.Options{
			Addr:     net.JoinHostPort(cfg.Host, port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	applyConfigToOptions(opt, cfg)
	return redis.NewClient(opt), nil
}

func pingRedis(ctx context.Context, client redis.UniversalClient, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("pinging Redis server (timeout=%s): %w", timeout, err)
	}
	return nil
}

// Close is idempotent.
func (r *Redis) Close() error {
	var err error
	r.once.Do(func() {
		err = r.client.Close()
		if err != nil {
			logger.FromContext(r.ctx).Error("Redis connection close failed", "error", err)
		}
	})
	return err
}

func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

func applyConfigToOptions(opt *redis.Options, cfg *Config) {
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opt.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opt.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.TLSEnabled && opt.TLSConfig == nil {
		host, _, err := net.SplitHostPort(opt.Addr)
		if err != nil {
			host = cfg.Host
		}
		opt.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
}
