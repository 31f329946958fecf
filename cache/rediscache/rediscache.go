// Package rediscache stores fetched remote images in Redis.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	lowimpl "github.com/redis/go-redis/v9"

	"github.com/lvillar/pdfstamp/imagepipe"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "pdfstamp:img:"

// Conf is the connection configuration.
type Conf struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Cache implements imagepipe.Cache.
type Cache struct {
	prefix string

	// implementation details, not exported
	internal *lowimpl.Client
}

var _ imagepipe.Cache = (*Cache)(nil)

// New connects lazily; the first command dials.
func New(conf Conf) *Cache {
	return Wrap(lowimpl.NewClient(&lowimpl.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	}), conf.Prefix)
}

// Wrap uses an existing client. An empty prefix means DefaultPrefix.
func Wrap(client *lowimpl.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{prefix: prefix, internal: client}
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.internal.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	if c.internal == nil {
		return nil
	}
	return c.internal.Close()
}

// Key maps a URL to its cache key. URLs are hashed so keys stay short and
// never carry credentials.
func (c *Cache) Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *Cache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	val, err := c.internal.Get(ctx, c.Key(url)).Bytes()
	if errors.Is(err, lowimpl.Nil) {
		return nil, false, nil // redis.Nil -> ok: false, err: nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, url string, value []byte, ttl time.Duration) error {
	return c.internal.Set(ctx, c.Key(url), value, ttl).Err()
}
