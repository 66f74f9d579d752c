package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPrefix = "reports:"

// Cache stores rendered reports in Redis. Every entry is registered under one
// or more tags so that a change to a campaign, mailing list or contact can
// drop all reports that depend on it.
type Cache struct {
	Redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// New connects to Redis and verifies the connection.
func New(cfg Config, logger *zap.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed connecting to redis: %w", err)
	}

	logger.Info("Redis connected", zap.String("addr", cfg.Addr), zap.Duration("ttl", cfg.TTL))

	return NewWithClient(client, cfg.TTL, logger), nil
}

func NewWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		Redis:  client,
		ttl:    ttl,
		prefix: defaultPrefix,
		logger: logger,
	}
}

func (c *Cache) Close() error {
	return c.Redis.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.Redis.Ping(ctx).Err()
}

// Enabled reports whether entries are kept at all. A zero TTL disables caching.
func (c *Cache) Enabled() bool {
	return c != nil && c.ttl > 0
}

// Get returns the cached value and whether it was present.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.Redis.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key and registers it with every tag. Tag sets live
// as long as their newest entry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, tags ...string) error {
	_, err := c.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		c.store(ctx, pipe, key, value, tags)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Generation is the invalidation state of a set of tags at one point in time.
type Generation struct {
	tags   []string
	values []string
}

// Generation snapshots the tags before a report is computed, so that SetAt
// can tell whether an invalidation happened in the meantime.
func (c *Cache) Generation(ctx context.Context, tags ...string) (Generation, error) {
	values, err := c.generations(ctx, c.Redis, tags)
	if err != nil {
		return Generation{}, err
	}
	return Generation{tags: tags, values: values}, nil
}

// SetAt stores value like Set, unless one of the generation's tags was
// invalidated after the snapshot. It reports whether the value was stored.
func (c *Cache) SetAt(ctx context.Context, gen Generation, key string, value []byte) (bool, error) {
	keys := make([]string, len(gen.tags))
	for i, tag := range gen.tags {
		keys[i] = c.generation(tag)
	}

	stored := false
	err := c.Redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.generations(ctx, tx, gen.tags)
		if err != nil {
			return err
		}
		for i := range current {
			if current[i] != gen.values[i] {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			c.store(ctx, pipe, key, value, gen.tags)
			return nil
		})
		if err != nil {
			return err
		}
		stored = true
		return nil
	}, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to set %s: %w", key, err)
	}
	return stored, nil
}

func (c *Cache) store(ctx context.Context, pipe redis.Pipeliner, key string, value []byte, tags []string) {
	full := c.key(key)
	pipe.Set(ctx, full, value, c.ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, c.tag(tag), full)
		pipe.Expire(ctx, c.tag(tag), c.ttl)
	}
}

// generations returns the counter of every tag, "" for tags never invalidated.
func (c *Cache) generations(ctx context.Context, cmd redis.Cmdable, tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = c.generation(tag)
	}

	raw, err := cmd.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read generations: %w", err)
	}

	values := make([]string, len(raw))
	for i, v := range raw {
		values[i], _ = v.(string)
	}
	return values, nil
}

// Invalidate deletes every entry registered under any of the tags and returns
// how many entries were removed.
func (c *Cache) Invalidate(ctx context.Context, tags ...string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	// Generations move before the tag sets are read.
	_, err := c.Redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tag := range tags {
			pipe.Incr(ctx, c.generation(tag))
			if c.ttl > 0 {
				pipe.Expire(ctx, c.generation(tag), c.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to bump generations: %w", err)
	}

	tagKeys := make([]string, len(tags))
	keys := make([]string, 0)

	for i, tag := range tags {
		tagKeys[i] = c.tag(tag)
		members, err := c.Redis.SMembers(ctx, tagKeys[i]).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to read tag %s: %w", tag, err)
		}
		keys = append(keys, members...)
	}

	deleted := int64(0)
	if len(keys) > 0 {
		n, err := c.Redis.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to delete cached reports: %w", err)
		}
		deleted = n
	}

	if err := c.Redis.Del(ctx, tagKeys...).Err(); err != nil {
		return 0, fmt.Errorf("failed to delete tags: %w", err)
	}

	c.logger.Debug("Cache invalidated",
		zap.Strings("tags", tags),
		zap.Int64("deleted", deleted),
	)

	return int(deleted), nil
}

func (c *Cache) key(key string) string {
	return c.prefix + key
}

func (c *Cache) tag(tag string) string {
	return c.prefix + "tag:" + tag
}

func (c *Cache) generation(tag string) string {
	return c.prefix + "gen:" + tag
}

// Tags used for report entries.

func CampaignTag(id int64) string {
	return fmt.Sprintf("campaign:%d", id)
}

func MailingListTag(id int64) string {
	return fmt.Sprintf("mailing-list:%d", id)
}

func ContactTag(id int64) string {
	return fmt.Sprintf("contact:%d", id)
}

// GlobalTag covers reports spanning all targets, such as site summaries.
const GlobalTag = "global"
