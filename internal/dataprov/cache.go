package dataprov

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache stores raw provider payloads. The historical provider clears it at
// run start unless a persistent cache path was supplied.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// FileCache is a TTL cache of one file per key under a directory.
type FileCache struct {
	dir string
	ttl time.Duration
}

// NewFileCache creates the directory if needed.
func NewFileCache(dir string, ttl time.Duration) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &FileCache{dir: dir, ttl: ttl}, nil
}

func (c *FileCache) path(key string) string {
	// Hex-encode so keys with separators stay single files.
	return filepath.Join(c.dir, hex.EncodeToString([]byte(key))+".cache")
}

func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, nil
	}
	if time.Since(info.ModTime()) > c.ttl {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: %w", key, err)
	}
	return data, true, nil
}

func (c *FileCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	if err := os.WriteFile(c.path(key), val, 0o644); err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}

func (c *FileCache) Clear(_ context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".cache" {
			if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// RedisCache layers provider payloads in redis, sharing warm data across
// processes. TTL is enforced server-side.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "fearproto"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(key string) string { return c.prefix + ":" + key }

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// TieredCache reads through redis first, then the file layer, and writes
// back to both.
type TieredCache struct {
	layers []Cache
}

// NewTieredCache orders layers fastest first.
func NewTieredCache(layers ...Cache) *TieredCache {
	return &TieredCache{layers: layers}
}

func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	for i, layer := range c.layers {
		val, ok, err := layer.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			// Refill faster layers that missed.
			for j := 0; j < i; j++ {
				_ = c.layers[j].Set(ctx, key, val, time.Hour)
			}
			return val, true, nil
		}
	}
	return nil, false, nil
}

func (c *TieredCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	for _, layer := range c.layers {
		if err := layer.Set(ctx, key, val, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (c *TieredCache) Clear(ctx context.Context) error {
	for _, layer := range c.layers {
		if err := layer.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}
