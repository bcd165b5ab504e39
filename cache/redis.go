package cache

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wafflestudio18-5/team2-server/logger"
)

// RedisStore backs the listing cache with a shared redis instance.
type RedisStore struct {
	rdb *goredis.Client
	log *logger.Logger
}

// NewRedisStore connects to the redis named by REDIS_ADDR and pings it.
func NewRedisStore(log *logger.Logger) (*RedisStore, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{rdb: rdb, log: log.With("service", "RedisStore")}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			s.log.Warn("cache get failed", "key", key, "err", err)
		}
		return nil, false
	}
	return val, true
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		s.log.Warn("cache set failed", "key", key, "err", err)
	}
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
