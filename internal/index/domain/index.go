// Package domain 市场指数领域模型：指数定义、成分、历史点位与计算逻辑
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BasePoints 指数创世日基准点位
var BasePoints = decimal.NewFromInt(100)

// IndexDefinition 指数定义聚合根
type IndexDefinition struct {
	gorm.Model
	IndexID      string `gorm:"column:index_id;type:varchar(32);uniqueIndex;not null"`
	Name         string `gorm:"column:name;type:varchar(128);not null"`
	Description  string `gorm:"column:description;type:text"`
	BaseCurrency string `gorm:"column:base_currency;type:char(3);not null;default:'USD'"`
}

func (IndexDefinition) TableName() string { return "market_indices" }

// IndexComposition 指数当前成分（由外部再平衡流程维护，引擎只读）
type IndexComposition struct {
	gorm.Model
	IndexID      string          `gorm:"column:index_id;type:varchar(32);uniqueIndex:idx_index_ticker;not null"`
	Ticker       string          `gorm:"column:ticker;type:varchar(20);uniqueIndex:idx_index_ticker;not null"`
	TargetWeight decimal.Decimal `gorm:"column:target_weight;type:decimal(10,8);not null"` // 0~1
	EntryPrice   decimal.Decimal `gorm:"column:entry_price;type:decimal(20,8);not null"`
	EntryDate    time.Time       `gorm:"column:entry_date;type:date;not null"`
}

func (IndexComposition) TableName() string { return "index_compositions" }

// SnapshotEntry 历史点位内嵌的成分快照条目
type SnapshotEntry struct {
	Ticker     string          `json:"ticker"`
	Weight     decimal.Decimal `json:"weight"`
	Price      decimal.Decimal `json:"price"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	EntryDate  time.Time       `json:"entry_date"`
}

// CompositionSnapshot 某一交易日计算实际使用的成分与价格的不可变副本。
// 写入后不得根据之后的成分变更重建。
type CompositionSnapshot []SnapshotEntry

// Find 按代码查找快照条目
func (s CompositionSnapshot) Find(ticker string) (SnapshotEntry, bool) {
	for _, e := range s {
		if e.Ticker == ticker {
			return e, true
		}
	}
	return SnapshotEntry{}, false
}

// Tickers 快照内全部代码
func (s CompositionSnapshot) Tickers() []string {
	out := make([]string, 0, len(s))
	for _, e := range s {
		out = append(out, e.Ticker)
	}
	return out
}

// IndexHistoryPoint 每个指数每个交易日一条；(IndexID, Date) 唯一。
// 整行只能被重算整体覆盖，不允许部分字段修改。
type IndexHistoryPoint struct {
	IndexID           string
	Date              time.Time
	Points            decimal.Decimal
	DailyChange       decimal.Decimal // 百分比
	CurrentYield      *decimal.Decimal
	DividendsReceived decimal.Decimal
	DividendsByTicker map[string]decimal.Decimal
	Snapshot          CompositionSnapshot
}

// 错误定义
var (
	ErrIndexNotFound      = errors.New("index not found")
	ErrNoComposition      = errors.New("index has no composition")
	ErrNoPriceableAssets  = errors.New("no composition member has usable price data")
	ErrMissingHistoryBase = errors.New("no prior history point to compound from")
)
