package repository

import (
	"context"
	"fmt"
	"time"
)

// QuotaRepository считает события в фиксированных окнах, общих для всех инстансов
type QuotaRepository interface {
	// Take расходует единицу из текущего окна key и сообщает,
	// укладывается ли окно в limit. limit <= 0 означает без ограничений.
	Take(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type quotaRepository struct {
	redis *RedisDB
	now   func() time.Time
}

func NewQuotaRepository(redis *RedisDB) QuotaRepository {
	return &quotaRepository{redis: redis, now: time.Now}
}

func (r *quotaRepository) Take(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	bucket := r.now().Truncate(window).Unix()
	redisKey := r.key(key, bucket)

	pipe := r.redis.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to take quota %s: %w", key, err)
	}

	return incr.Val() <= int64(limit), nil
}

func (r *quotaRepository) key(key string, bucket int64) string {
	return fmt.Sprintf("quota:%s:%d", key, bucket)
}
