package domain

import (
	"context"
	"time"
)

type IndexRepository interface {
	Save(ctx context.Context, def *IndexDefinition) error
	GetByIndexID(ctx context.Context, indexID string) (*IndexDefinition, error)
	List(ctx context.Context) ([]*IndexDefinition, error)
}

// CompositionRepository 当前成分，引擎侧只读；写入口仅供运维端点使用。
type CompositionRepository interface {
	GetComposition(ctx context.Context, indexID string) ([]IndexComposition, error)
	ReplaceComposition(ctx context.Context, indexID string, members []IndexComposition) error
}

// HistoryRepository 历史点位。(IndexID, Date) 唯一，SavePoint 必须整行
// 原子覆盖，读者不能观察到半更新的行。
type HistoryRepository interface {
	SavePoint(ctx context.Context, point *IndexHistoryPoint) error
	// GetPoint 不存在时返回 (nil, nil)
	GetPoint(ctx context.Context, indexID string, date time.Time) (*IndexHistoryPoint, error)
	// GetLatestPoint 按日期降序取第一条；无历史返回 (nil, nil)
	GetLatestPoint(ctx context.Context, indexID string) (*IndexHistoryPoint, error)
	// GetPointBefore 严格早于 date 的最近一条；无则返回 (nil, nil)。
	// 重跑某一天时复利基数必须取它而非最新点位，否则会基于自身复利。
	GetPointBefore(ctx context.Context, indexID string, date time.Time) (*IndexHistoryPoint, error)
	// ListPoints 按日期升序；from/to 为 nil 表示不限
	ListPoints(ctx context.Context, indexID string, from, to *time.Time) ([]*IndexHistoryPoint, error)
}

// EventPublisher 领域事件发布（经 outbox 随业务事务一起提交）
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}
