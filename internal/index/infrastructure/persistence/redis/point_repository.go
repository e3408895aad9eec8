package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/marketindex/internal/index/domain"
)

// PointRedisRepository 最新历史点位的 Redis 读模型，实时层的快路径。
// MySQL 始终是权威来源，这里只做旁路缓存。
type PointRedisRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewPointRedisRepository(client redis.UniversalClient) *PointRedisRepository {
	return &PointRedisRepository{
		client: client,
		prefix: "marketindex:latest_point:",
		ttl:    48 * time.Hour,
	}
}

func (r *PointRedisRepository) Save(ctx context.Context, point *domain.IndexHistoryPoint) error {
	if point == nil {
		return nil
	}
	data, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("failed to marshal history point: %w", err)
	}
	return r.client.Set(ctx, r.prefix+point.IndexID, data, r.ttl).Err()
}

func (r *PointRedisRepository) GetLatest(ctx context.Context, indexID string) (*domain.IndexHistoryPoint, error) {
	data, err := r.client.Get(ctx, r.prefix+indexID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get history point from redis: %w", err)
	}
	var point domain.IndexHistoryPoint
	if err := json.Unmarshal(data, &point); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history point: %w", err)
	}
	return &point, nil
}

// Invalidate 重算覆盖历史后使缓存失效
func (r *PointRedisRepository) Invalidate(ctx context.Context, indexID string) error {
	return r.client.Del(ctx, r.prefix+indexID).Err()
}
