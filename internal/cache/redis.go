// Package cache is a JSON read-through cache on redis for the dashboard
// reads (monthly summary, company funds).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "payrollflow:"

type Cache struct {
	client redis.UniversalClient
}

func NewCache(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// ErrMiss reports that key is not cached.
var ErrMiss = errors.New("cache miss")

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.Unmarshal(val, dest)
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// DeleteCompany drops every cached entry of companyID and the cross-company
// summaries that include it.
func (c *Cache) DeleteCompany(ctx context.Context, companyID uuid.UUID) error {
	patterns := []string{
		keyPrefix + "*:" + companyID.String() + "*",
		keyPrefix + "summary:all:*",
	}
	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.Delete(ctx, keys...); err != nil {
				return fmt.Errorf("delete cached keys: %w", err)
			}
		}
	}
	return nil
}

func SummaryKey(companyID *uuid.UUID, period models.Period) string {
	scope := "all"
	if companyID != nil {
		scope = companyID.String()
	}
	return fmt.Sprintf("%ssummary:%s:%04d-%02d", keyPrefix, scope, period.Year, period.Month)
}

func FundsKey(companyID uuid.UUID) string {
	return keyPrefix + "funds:" + companyID.String()
}

// Remember returns the cached value at key, or computes, stores and returns
// it. A nil cache or a redis failure just computes.
func Remember[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func() (T, error)) (T, error) {
	if c == nil {
		return compute()
	}

	var cached T
	err := c.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrMiss) {
		slog.Warn("cache read failed", "key", key, "error", err)
	}

	v, err := compute()
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
	return v, nil
}

// Invalidator drops a company's cached reads whenever one of its payrolls
// is written. It runs inside the engine call, so the next read recomputes.
type Invalidator struct {
	cache *Cache
}

func NewInvalidator(c *Cache) *Invalidator {
	return &Invalidator{cache: c}
}

func (i *Invalidator) PayrollsChanged(ctx context.Context, companyID uuid.UUID) {
	if err := i.cache.DeleteCompany(ctx, companyID); err != nil {
		slog.Warn("invalidate company cache", "company_id", companyID, "error", err)
	}
}
