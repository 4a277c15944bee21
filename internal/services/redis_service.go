package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var errRedisClosed = errors.New("redis connection closed")

// RedisService provides the Redis connection used for suggestion delivery
type RedisService struct {
	client *redis.Client
	mu     sync.RWMutex
}

// NewRedisService connects to redisURL and verifies the connection
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// One publisher per engine; a small pool is enough
	opts.PoolSize = 4
	opts.MinIdleConns = 1
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return &RedisService{client: client}, nil
}

// Client returns the underlying Redis client
func (r *RedisService) Client() *redis.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		err := r.client.Close()
		r.client = nil
		return err
	}
	return nil
}

// Ping checks the connection
func (r *RedisService) Ping(ctx context.Context) error {
	client := r.Client()
	if client == nil {
		return errRedisClosed
	}
	return client.Ping(ctx).Err()
}

// Set stores a value with an expiration (0 keeps it forever)
func (r *RedisService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	client := r.Client()
	if client == nil {
		return errRedisClosed
	}
	return client.Set(ctx, key, value, expiration).Err()
}

// Publish sends a message to every subscriber of channel
func (r *RedisService) Publish(ctx context.Context, channel string, message interface{}) error {
	client := r.Client()
	if client == nil {
		return errRedisClosed
	}
	return client.Publish(ctx, channel, message).Err()
}
