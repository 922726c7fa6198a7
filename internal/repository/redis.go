package repository

import (
	"context"
	"errors"
	"fmt"

	"xstation/internal/config"
	"xstation/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisTimerPersistence stores the whole timer map as one JSON value.
type RedisTimerPersistence struct {
	client *redis.Client
	key    string
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisTimerPersistence(client *redis.Client, key string) *RedisTimerPersistence {
	if key == "" {
		key = models.ClientTimersKey
	}
	return &RedisTimerPersistence{
		client: client,
		key:    key,
	}
}

func (r *RedisTimerPersistence) Load(ctx context.Context) (map[int64]models.ClientTimerEntry, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return make(map[int64]models.ClientTimerEntry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client timers from redis: %w", err)
	}
	return DecodeTimers(val)
}

// Save overwrites the stored value; an empty map removes the key.
func (r *RedisTimerPersistence) Save(ctx context.Context, entries map[int64]models.ClientTimerEntry) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if len(entries) == 0 {
		if err := r.client.Del(ctx, r.key).Err(); err != nil {
			return fmt.Errorf("failed to delete client timers from redis: %w", err)
		}
		return nil
	}

	data, err := EncodeTimers(entries)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set client timers in redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
