// Package gateway 指数引擎消费的外部数据源适配器
package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	indexdomain "github.com/wyfcoding/marketindex/internal/index/domain"
	marketdata "github.com/wyfcoding/marketindex/internal/marketdata/application"
)

// MarketDataGatewayImpl 把行情读模型适配成引擎的行情/股息数据源。
// 每次查询带独立超时：单个代码超时按缺数据处理，不拖垮整日计算。
type MarketDataGatewayImpl struct {
	service *marketdata.MarketDataService
	timeout time.Duration
}

func NewMarketDataGateway(service *marketdata.MarketDataService) *MarketDataGatewayImpl {
	return &MarketDataGatewayImpl{service: service, timeout: 3 * time.Second}
}

func (g *MarketDataGatewayImpl) GetLatestPrices(ctx context.Context, tickers []string) (map[string]indexdomain.PriceQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	quotes, err := g.service.GetLatestQuotes(ctx, tickers)
	if err != nil {
		return nil, err
	}
	out := make(map[string]indexdomain.PriceQuote, len(quotes))
	for ticker, q := range quotes {
		out[ticker] = indexdomain.PriceQuote{Price: q.Price, AsOf: q.Timestamp}
	}
	return out, nil
}

func (g *MarketDataGatewayImpl) GetPriceAsOf(ctx context.Context, ticker string, date time.Time) (*decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	close, err := g.service.GetCloseAsOf(ctx, ticker, date)
	if err != nil || close == nil {
		return nil, err
	}
	price := close.Close
	return &price, nil
}

func (g *MarketDataGatewayImpl) GetTrailingYield(ctx context.Context, ticker string) (*decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	quote, err := g.service.GetLatestQuote(ctx, ticker)
	if err != nil || quote == nil {
		return nil, err
	}
	return quote.TrailingYield, nil
}

func (g *MarketDataGatewayImpl) GetDividends(ctx context.Context, tickers []string, exDate time.Time) (map[string]decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.service.GetDividends(ctx, tickers, exDate)
}
