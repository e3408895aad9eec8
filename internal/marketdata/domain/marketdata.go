// Package domain 行情读模型：最新报价、日收盘价与股息事件。
// 数据经 Kafka 从上游行情/公司行动系统摄入，指数引擎只读。
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quote 最新报价实体
type Quote struct {
	gorm.Model
	Ticker string          `gorm:"column:ticker;type:varchar(20);uniqueIndex;not null"`
	Price  decimal.Decimal `gorm:"column:price;type:decimal(20,8);not null"`
	// TrailingYield 近12个月股息率，上游没有时为空
	TrailingYield *decimal.Decimal `gorm:"column:trailing_yield;type:decimal(12,8)"`
	Timestamp     time.Time        `gorm:"column:timestamp;index;not null"`
	Source        string           `gorm:"column:source;type:varchar(50)"`
}

func (Quote) TableName() string { return "quotes" }

// DailyClose 日收盘价
type DailyClose struct {
	gorm.Model
	Ticker string          `gorm:"column:ticker;type:varchar(20);uniqueIndex:idx_ticker_date;not null"`
	Date   time.Time       `gorm:"column:date;type:date;uniqueIndex:idx_ticker_date;not null"`
	Close  decimal.Decimal `gorm:"column:close;type:decimal(20,8);not null"`
}

func (DailyClose) TableName() string { return "daily_closes" }

// DividendEvent 现金股息事件，按除权日匹配
type DividendEvent struct {
	gorm.Model
	Ticker string          `gorm:"column:ticker;type:varchar(20);uniqueIndex:idx_ticker_exdate;not null"`
	ExDate time.Time       `gorm:"column:ex_date;type:date;uniqueIndex:idx_ticker_exdate;not null"`
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(20,8);not null"`
}

func (DividendEvent) TableName() string { return "dividend_events" }

type QuoteRepository interface {
	Save(ctx context.Context, quote *Quote) error
	GetLatest(ctx context.Context, ticker string) (*Quote, error)
	GetLatestBatch(ctx context.Context, tickers []string) (map[string]*Quote, error)
}

// QuoteReadRepository Redis 读模型
type QuoteReadRepository interface {
	Save(ctx context.Context, quote *Quote) error
	GetLatest(ctx context.Context, ticker string) (*Quote, error)
}

type DailyCloseRepository interface {
	Save(ctx context.Context, close *DailyClose) error
	// GetCloseAsOf 返回 date（含）之前最近的收盘价；没有返回 (nil, nil)
	GetCloseAsOf(ctx context.Context, ticker string, date time.Time) (*DailyClose, error)
}

type DividendRepository interface {
	Save(ctx context.Context, event *DividendEvent) error
	GetByExDate(ctx context.Context, tickers []string, exDate time.Time) ([]*DividendEvent, error)
}
