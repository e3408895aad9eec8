// Package mysql 指数历史点位 MySQL 仓储实现
package mysql

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/marketindex/internal/index/domain"
)

// HistoryPointModel 历史点位表映射。快照与分股息明细以 JSON 列存储，
// 快照一经写入只能随整行覆盖，不做增量修改。
type HistoryPointModel struct {
	ID                uint             `gorm:"primaryKey;autoIncrement"`
	CreatedAt         time.Time        `gorm:"column:created_at"`
	UpdatedAt         time.Time        `gorm:"column:updated_at"`
	IndexID           string           `gorm:"column:index_id;type:varchar(32);uniqueIndex:idx_index_date;not null"`
	Date              time.Time        `gorm:"column:date;type:date;uniqueIndex:idx_index_date;not null"`
	Points            decimal.Decimal  `gorm:"column:points;type:decimal(20,8);not null"`
	DailyChange       decimal.Decimal  `gorm:"column:daily_change;type:decimal(12,8);not null"`
	CurrentYield      *decimal.Decimal `gorm:"column:current_yield;type:decimal(12,8)"`
	DividendsReceived decimal.Decimal  `gorm:"column:dividends_received;type:decimal(20,8);not null;default:0"`
	DividendsJSON     string           `gorm:"column:dividends_by_ticker;type:json;not null"`
	SnapshotJSON      string           `gorm:"column:snapshot;type:json;not null"`
}

func (HistoryPointModel) TableName() string { return "index_history_points" }

func toHistoryPointModel(p *domain.IndexHistoryPoint) (*HistoryPointModel, error) {
	dividends := p.DividendsByTicker
	if dividends == nil {
		dividends = map[string]decimal.Decimal{}
	}
	dividendsJSON, err := json.Marshal(dividends)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dividends: %w", err)
	}
	snapshot := p.Snapshot
	if snapshot == nil {
		snapshot = domain.CompositionSnapshot{}
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return &HistoryPointModel{
		IndexID:           p.IndexID,
		Date:              p.Date,
		Points:            p.Points,
		DailyChange:       p.DailyChange,
		CurrentYield:      p.CurrentYield,
		DividendsReceived: p.DividendsReceived,
		DividendsJSON:     string(dividendsJSON),
		SnapshotJSON:      string(snapshotJSON),
	}, nil
}

func toHistoryPoint(m *HistoryPointModel) (*domain.IndexHistoryPoint, error) {
	dividends := map[string]decimal.Decimal{}
	if m.DividendsJSON != "" {
		if err := json.Unmarshal([]byte(m.DividendsJSON), &dividends); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dividends for %s@%s: %w", m.IndexID, m.Date.Format("2006-01-02"), err)
		}
	}
	var snapshot domain.CompositionSnapshot
	if m.SnapshotJSON != "" {
		if err := json.Unmarshal([]byte(m.SnapshotJSON), &snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot for %s@%s: %w", m.IndexID, m.Date.Format("2006-01-02"), err)
		}
	}
	return &domain.IndexHistoryPoint{
		IndexID:           m.IndexID,
		Date:              domain.DateOnly(m.Date),
		Points:            m.Points,
		DailyChange:       m.DailyChange,
		CurrentYield:      m.CurrentYield,
		DividendsReceived: m.DividendsReceived,
		DividendsByTicker: dividends,
		Snapshot:          snapshot,
	}, nil
}
