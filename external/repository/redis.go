package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/foxseedlab/dmzstatus/internal/repository"
	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps one hash per table: field = member, value = encoded value.
type RedisRepository struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisRepository(client *redis.Client, keyPrefix string) repository.Repository {
	return &RedisRepository{client: client, keyPrefix: keyPrefix}
}

func (r *RedisRepository) key(suffix string) string {
	if r.keyPrefix == "" {
		return suffix
	}
	return r.keyPrefix + ":" + suffix
}

func (r *RedisRepository) GetTimestamp(ctx context.Context, table repository.TimestampTable, member string) (*time.Time, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %s", repository.ErrUnknownTable, table)
	}
	raw, err := r.client.HGet(ctx, r.key(string(table)), member).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s for %q: %w", table, member, err)
	}
	return &at, nil
}

func (r *RedisRepository) SetTimestamp(ctx context.Context, table repository.TimestampTable, member string, at time.Time) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %s", repository.ErrUnknownTable, table)
	}
	return r.client.HSet(ctx, r.key(string(table)), member, at.UTC().Format(time.RFC3339Nano)).Err()
}

func (r *RedisRepository) GetVoiceSeconds(ctx context.Context, member string) (*float64, error) {
	raw, err := r.client.HGet(ctx, r.key(repository.TableVoiceSeconds), member).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse voice seconds for %q: %w", member, err)
	}
	return &seconds, nil
}

func (r *RedisRepository) SetVoiceSeconds(ctx context.Context, member string, seconds float64) error {
	return r.client.HSet(ctx, r.key(repository.TableVoiceSeconds), member, strconv.FormatFloat(seconds, 'f', -1, 64)).Err()
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}
