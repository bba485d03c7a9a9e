package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plchld/news-copilot/internal/config"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

const redisKeyPrefix = "session:"

// RedisStore backs the session cache with Redis so sessions survive process
// restarts and are shared across replicas. Entries are stored as one JSON
// value per session with the TTL enforced by Redis itself.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

func NewRedisStore(cfg config.CacheConfig, log *logger.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	opt.PoolSize = cfg.PoolSize
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout
	opt.DialTimeout = cfg.DialTimeout

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}

	log.Info("redis session store initialized",
		"url", cfg.RedisURL,
		"pool_size", cfg.PoolSize,
		"ttl", cfg.TTL.String(),
	)

	return &RedisStore{
		client: client,
		ttl:    cfg.TTL,
		logger: log,
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal session entry: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+entry.SessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", entry.SessionID, err)
	}

	s.logger.Debug("session cached",
		"session_id", entry.SessionID,
		"bytes", len(data),
		"ttl", s.ttl.String(),
	)
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Entry, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}

	return &entry, nil
}

func (s *RedisStore) Evict(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, redisKeyPrefix+sessionID).Err()
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	var count int
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}
	return count, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
