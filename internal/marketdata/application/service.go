// Package application 行情读模型的应用服务
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/marketindex/internal/marketdata/domain"
)

// MarketDataService 行情摄入与查询门面。写路径由 Kafka 消费者驱动，
// 读路径供指数引擎的网关适配器调用。
type MarketDataService struct {
	quoteRepo     domain.QuoteRepository
	quoteReadRepo domain.QuoteReadRepository
	closeRepo     domain.DailyCloseRepository
	dividendRepo  domain.DividendRepository
	logger        *slog.Logger
}

func NewMarketDataService(
	quoteRepo domain.QuoteRepository,
	quoteReadRepo domain.QuoteReadRepository,
	closeRepo domain.DailyCloseRepository,
	dividendRepo domain.DividendRepository,
	logger *slog.Logger,
) *MarketDataService {
	return &MarketDataService{
		quoteRepo:     quoteRepo,
		quoteReadRepo: quoteReadRepo,
		closeRepo:     closeRepo,
		dividendRepo:  dividendRepo,
		logger:        logger.With("module", "marketdata_service"),
	}
}

// SaveQuote 保存最新报价并刷新 Redis 读模型
func (s *MarketDataService) SaveQuote(ctx context.Context, ticker string, price decimal.Decimal, trailingYield *decimal.Decimal, ts time.Time, source string) error {
	quote := &domain.Quote{
		Ticker:        ticker,
		Price:         price,
		TrailingYield: trailingYield,
		Timestamp:     ts,
		Source:        source,
	}
	if err := s.quoteRepo.Save(ctx, quote); err != nil {
		return err
	}
	if s.quoteReadRepo != nil {
		if err := s.quoteReadRepo.Save(ctx, quote); err != nil {
			s.logger.WarnContext(ctx, "failed to refresh quote read model", "ticker", ticker, "error", err)
		}
	}
	return nil
}

// SaveDailyClose 保存日收盘价
func (s *MarketDataService) SaveDailyClose(ctx context.Context, ticker string, date time.Time, close decimal.Decimal) error {
	return s.closeRepo.Save(ctx, &domain.DailyClose{Ticker: ticker, Date: date, Close: close})
}

// SaveDividend 保存股息事件（同一 ticker+除权日重复投递幂等覆盖）
func (s *MarketDataService) SaveDividend(ctx context.Context, ticker string, exDate time.Time, amount decimal.Decimal) error {
	return s.dividendRepo.Save(ctx, &domain.DividendEvent{Ticker: ticker, ExDate: exDate, Amount: amount})
}

// GetLatestQuote Redis 优先，未命中回源 MySQL 并回填
func (s *MarketDataService) GetLatestQuote(ctx context.Context, ticker string) (*domain.Quote, error) {
	if s.quoteReadRepo != nil {
		if cached, err := s.quoteReadRepo.GetLatest(ctx, ticker); err == nil && cached != nil {
			return cached, nil
		}
	}
	quote, err := s.quoteRepo.GetLatest(ctx, ticker)
	if err != nil || quote == nil {
		return nil, err
	}
	if s.quoteReadRepo != nil {
		_ = s.quoteReadRepo.Save(ctx, quote)
	}
	return quote, nil
}

// GetLatestQuotes 批量取最新报价；缺失的代码不出现在结果里
func (s *MarketDataService) GetLatestQuotes(ctx context.Context, tickers []string) (map[string]*domain.Quote, error) {
	return s.quoteRepo.GetLatestBatch(ctx, tickers)
}

// GetCloseAsOf date（含）之前最近的收盘价
func (s *MarketDataService) GetCloseAsOf(ctx context.Context, ticker string, date time.Time) (*domain.DailyClose, error) {
	return s.closeRepo.GetCloseAsOf(ctx, ticker, date)
}

// GetDividends 按除权日匹配股息，返回 ticker -> 每股金额
func (s *MarketDataService) GetDividends(ctx context.Context, tickers []string, exDate time.Time) (map[string]decimal.Decimal, error) {
	events, err := s.dividendRepo.GetByExDate(ctx, tickers, exDate)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(events))
	for _, e := range events {
		out[e.Ticker] = e.Amount
	}
	return out, nil
}
