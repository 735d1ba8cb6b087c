package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MarcusD9722/Nova/memory"
)

// Redis is a shared cache. Keys are namespaced with a prefix so several
// deployments can share one server.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ memory.Cache = (*Redis)(nil)

// RedisConfig configures NewRedis.
type RedisConfig struct {
	// URL is a redis:// URL. It takes precedence over Addr.
	URL  string
	Addr string

	// Prefix is prepended to every key.
	// Default: "nova:"
	Prefix string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		var err error
		opts, err = redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	} else {
		opts = &redis.Options{Addr: cfg.Addr}
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	if cfg.Prefix == "" {
		cfg.Prefix = "nova:"
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client, prefix: cfg.Prefix}, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", memory.ErrCache, key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %w", memory.ErrCache, key, err)
	}
	return b, true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %w", memory.ErrCache, key, err)
	}
	return n > 0, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
