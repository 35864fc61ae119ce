package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const checkpointKeyPrefix = "paper-agent:checkpoint:"

// RedisStore はチェックポイントを Redis に保存します。
// キーの TTL は残りの有効期間に合わせるため、期限切れのチェックポイントはサーバー側でも消えます。
type RedisStore struct {
	rdb    *redis.Client
	key    string
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewRedisStore は RedisStore を作成します。slot は同じ Redis を共有する複数の端末を区別するために使います。
func NewRedisStore(rdb *redis.Client, slot string, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if slot == "" {
		slot = "default"
	}
	return &RedisStore{
		rdb:    rdb,
		key:    checkpointKeyPrefix + slot,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// NewRedisStoreFromURL は接続 URL から RedisStore を作成します。
func NewRedisStoreFromURL(redisURL, slot string, ttl time.Duration, logger zerolog.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opt), slot, ttl, logger), nil
}

// Save はチェックポイントを上書き保存します。
func (s *RedisStore) Save(ctx context.Context, cp Checkpoint) error {
	now := s.now()
	if err := prepare(&cp, now); err != nil {
		return err
	}
	remaining := s.ttl - now.Sub(cp.StartedAt)
	if remaining <= 0 {
		s.Clear(ctx)
		return nil
	}
	payload, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, payload, remaining).Err()
}

// Load はチェックポイントを取得します。
func (s *RedisStore) Load(ctx context.Context) (*Checkpoint, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.Clear(ctx)
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.JobID == "" || cp.Expired(s.now(), s.ttl) {
		s.Clear(ctx)
		return nil, nil
	}
	return &cp, nil
}

// Clear はチェックポイントを削除します。
func (s *RedisStore) Clear(ctx context.Context) {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("failed to clear checkpoint")
	}
}

// Close は Redis クライアントを閉じます。
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
