package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore — Store поверх Redis: атомарный INCR + EXPIRE в одном
// пайплайне. Общий для всех экземпляров сервера.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "rl:".
func NewRedisStore(redisURL, prefix string) (*RedisStore, error) {
	if prefix == "" {
		prefix = "rl:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

// Incr атомарно увеличивает счётчик и выставляет TTL окна, если его ещё нет.
// INCR и EXPIRE NX уходят одним пайплайном, поэтому гонка двух запросов по
// одному ключу не оставит счётчик без срока жизни.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, s.prefix+key)
	pipe.ExpireNX(ctx, s.prefix+key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

// Reset удаляет все счётчики с данным префиксом (SCAN + DEL).
func (s *RedisStore) Reset(ctx context.Context, prefix string) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}

	return iter.Err()
}

// Close закрывает клиент Redis.
func (s *RedisStore) Close() error { return s.rdb.Close() }

var _ Store = (*RedisStore)(nil)
