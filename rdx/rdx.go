// Package rdx holds the redis connection and a small JSON cache on top of it.
package rdx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Cache.Get when the key is absent.
var ErrMiss = errors.New("cache miss")

var Conn *redis.Client

// Connect opens and pings the redis connection and stores it in Conn.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	Conn = conn
	return conn, nil
}

// Cache stores JSON values under string keys.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// RedisCache implements Cache over a redis client.
type RedisCache struct {
	Conn   *redis.Client
	Prefix string
}

func NewCache(conn *redis.Client, prefix string) *RedisCache {
	return &RedisCache{Conn: conn, Prefix: prefix}
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, dst any) error {
	val, err := c.Conn.Get(ctx, c.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return errors.Wrapf(err, "redis get %s", key)
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return errors.Wrapf(err, "decode cached %s", key)
	}
	return nil
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return errors.Wrapf(c.Conn.Set(ctx, c.Prefix+key, b, ttl).Err(), "redis set %s", key)
}
