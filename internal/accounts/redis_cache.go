package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/observability"
)

const summaryKeyPrefix = "kinship:summary:"

// RedisCache stores summaries as JSON strings in Redis so several instances share them.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache wraps client. Entries expire after ttl, one minute if ttl is not positive.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

// ConnectRedis parses a redis:// URL, installs the error metrics hook and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	client.AddHook(metricsHook{})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func summaryKey(id string) string {
	return summaryKeyPrefix + id
}

// GetMany fetches ids with a single MGET. Undecodable entries are treated as misses.
func (c *RedisCache) GetMany(ctx context.Context, ids []string) (map[string]models.AccountSummary, error) {
	if len(ids) == 0 {
		return map[string]models.AccountSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = summaryKey(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget summaries: %w", err)
	}

	out := make(map[string]models.AccountSummary, len(ids))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var summary models.AccountSummary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			continue
		}
		out[ids[i]] = summary
	}
	return out, nil
}

// SetMany writes all summaries in one pipeline.
func (c *RedisCache) SetMany(ctx context.Context, summaries []models.AccountSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, summary := range summaries {
			payload, err := json.Marshal(summary)
			if err != nil {
				return fmt.Errorf("encode summary %s: %w", summary.ID, err)
			}
			pipe.Set(ctx, summaryKey(summary.ID), payload, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set summaries: %w", err)
	}
	return nil
}

// Delete removes the cached summary of id.
func (c *RedisCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, summaryKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete summary: %w", err)
	}
	return nil
}

type metricsHook struct{}

func (metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RecordCacheError(cmd.Name())
		}
		return err
	}
}

func (metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RecordCacheError("pipeline")
		}
		return err
	}
}

var (
	_ SummaryCache = (*RedisCache)(nil)
	_ SummaryCache = (*MemoryCache)(nil)
)
