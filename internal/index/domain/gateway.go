package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote 实时报价
type PriceQuote struct {
	Price decimal.Decimal
	AsOf  time.Time
}

// MarketDataGateway 行情数据源 (External Dependency)。
// 单个代码查询失败按缺数据处理，不中断整日计算。
type MarketDataGateway interface {
	GetLatestPrices(ctx context.Context, tickers []string) (map[string]PriceQuote, error)
	// GetPriceAsOf 返回 date（含）之前最近的收盘价；没有返回 (nil, nil)
	GetPriceAsOf(ctx context.Context, ticker string, date time.Time) (*decimal.Decimal, error)
	// GetTrailingYield 近12个月股息率；数据源没有返回 (nil, nil)
	GetTrailingYield(ctx context.Context, ticker string) (*decimal.Decimal, error)
}

// DividendSource 股息事件源 (External Dependency)，按除权日匹配。
type DividendSource interface {
	GetDividends(ctx context.Context, tickers []string, exDate time.Time) (map[string]decimal.Decimal, error)
}
