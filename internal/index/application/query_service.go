package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/marketindex/internal/index/domain"
)

// IndexQueryService 查询侧：实时投影与历史衍生报表，全部只读。
// 实时投影无状态且幂等，可以被并发反复调用。
type IndexQueryService struct {
	indexRepo       domain.IndexRepository
	compositionRepo domain.CompositionRepository
	historyRepo     domain.HistoryRepository
	marketData      domain.MarketDataGateway
	calendar        *domain.MarketCalendar
	pointCache      PointCache
	logger          *slog.Logger
	now             func() time.Time
}

func NewIndexQueryService(
	indexRepo domain.IndexRepository,
	compositionRepo domain.CompositionRepository,
	historyRepo domain.HistoryRepository,
	marketData domain.MarketDataGateway,
	calendar *domain.MarketCalendar,
	pointCache PointCache,
	logger *slog.Logger,
) *IndexQueryService {
	return &IndexQueryService{
		indexRepo:       indexRepo,
		compositionRepo: compositionRepo,
		historyRepo:     historyRepo,
		marketData:      marketData,
		calendar:        calendar,
		pointCache:      pointCache,
		logger:          logger.With("module", "index_query"),
		now:             time.Now,
	}
}

// GetIndex 指数定义及最新点位
func (s *IndexQueryService) GetIndex(ctx context.Context, indexID string) (*IndexDTO, error) {
	def, err := s.indexRepo.GetByIndexID(ctx, indexID)
	if err != nil {
		return nil, err
	}
	dto := &IndexDTO{
		IndexID:      def.IndexID,
		Name:         def.Name,
		Description:  def.Description,
		BaseCurrency: def.BaseCurrency,
		CreatedAt:    def.CreatedAt,
	}
	if latest, err := s.latestPoint(ctx, indexID); err == nil && latest != nil {
		dto.LatestPoint = toHistoryPointDTO(latest)
	}
	return dto, nil
}

// GetHistory 历史点位区间查询，升序
func (s *IndexQueryService) GetHistory(ctx context.Context, indexID string, from, to *time.Time) ([]*HistoryPointDTO, error) {
	points, err := s.historyRepo.ListPoints(ctx, indexID, from, to)
	if err != nil {
		return nil, err
	}
	dtos := make([]*HistoryPointDTO, 0, len(points))
	for _, p := range points {
		dtos = append(dtos, toHistoryPointDTO(p))
	}
	return dtos, nil
}

// GetRealTimeReturn 实时只读投影，绝不落库。
//
// 今天没有交易时段（周末/节假日）：沿用最后点位，涨跌为零，并把最后
// 一个真实交易日的涨跌单独放在 LastSessionChange，两者不可混用。
// 时段已结束且今天的收盘点位已持久化：直接返回官方值。
// 其余情况（开盘中，或已收盘但收盘点位还没算出来）：用实时价格对最后
// 官方点位的快照做投影。基线价取快照内钉死的价格而非当前成分——中途
// 发生过再平衡时快照才是正确的对照基准。
// 成分或价格数据完全不可得时返回 nil（挂起态），不抛错。
func (s *IndexQueryService) GetRealTimeReturn(ctx context.Context, indexID string) (*RealTimeDTO, error) {
	latest, err := s.latestPoint(ctx, indexID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	now := s.now()
	today := s.calendar.LocalDate(now)

	if !s.calendar.IsTradingDay(today) {
		return &RealTimeDTO{
			IndexID:           indexID,
			Points:            latest.Points.String(),
			DailyChange:       decimal.Zero.String(),
			LastSessionChange: latest.DailyChange.String(),
			LastOfficialDate:  latest.Date.Format("2006-01-02"),
			IsMarketOpen:      false,
			IsProjection:      false,
			AsOf:              now,
		}, nil
	}

	if s.calendar.SessionEnded(now) && domain.SameDay(latest.Date, today) {
		return &RealTimeDTO{
			IndexID:           indexID,
			Points:            latest.Points.String(),
			DailyChange:       latest.DailyChange.String(),
			LastSessionChange: latest.DailyChange.String(),
			LastOfficialDate:  latest.Date.Format("2006-01-02"),
			IsMarketOpen:      false,
			IsProjection:      false,
			AsOf:              now,
		}, nil
	}

	liveReturn, ok := s.liveWeightedReturn(ctx, latest)
	if !ok {
		return nil, nil
	}

	return &RealTimeDTO{
		IndexID:           indexID,
		Points:            latest.Points.Mul(decimal.NewFromInt(1).Add(liveReturn)).String(),
		DailyChange:       liveReturn.Mul(decimal.NewFromInt(100)).String(),
		LastSessionChange: latest.DailyChange.String(),
		LastOfficialDate:  latest.Date.Format("2006-01-02"),
		IsMarketOpen:      s.calendar.IsOpen(now),
		IsProjection:      true,
		AsOf:              now,
	}, nil
}

// GetAssetPerformance 单个成分的历史表现；从未出现过返回 nil
func (s *IndexQueryService) GetAssetPerformance(ctx context.Context, indexID, ticker string) (*AssetPerformanceDTO, error) {
	points, activeTickers, err := s.loadPerformanceInputs(ctx, indexID)
	if err != nil {
		return nil, err
	}
	perf := domain.BuildAssetPerformance(points, ticker, activeTickers)
	if perf == nil {
		return nil, nil
	}
	return toAssetPerformanceDTO(perf), nil
}

// ListAllAssetsPerformance 历史上出现过的全部成分，按入选日期降序
func (s *IndexQueryService) ListAllAssetsPerformance(ctx context.Context, indexID string) ([]*AssetPerformanceDTO, error) {
	points, activeTickers, err := s.loadPerformanceInputs(ctx, indexID)
	if err != nil {
		return nil, err
	}
	perfs := domain.BuildAllAssetPerformance(points, activeTickers)
	dtos := make([]*AssetPerformanceDTO, 0, len(perfs))
	for _, p := range perfs {
		dtos = append(dtos, toAssetPerformanceDTO(p))
	}
	return dtos, nil
}

func (s *IndexQueryService) latestPoint(ctx context.Context, indexID string) (*domain.IndexHistoryPoint, error) {
	if s.pointCache != nil {
		if cached, err := s.pointCache.GetLatest(ctx, indexID); err == nil && cached != nil {
			return cached, nil
		}
	}
	latest, err := s.historyRepo.GetLatestPoint(ctx, indexID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest history point: %w", err)
	}
	if latest != nil && s.pointCache != nil {
		_ = s.pointCache.Save(ctx, latest)
	}
	return latest, nil
}

// liveWeightedReturn 用实时价格对最后官方快照求加权收益。
// 快照为空时（老数据）退回当前成分的入选价作基线。
func (s *IndexQueryService) liveWeightedReturn(ctx context.Context, latest *domain.IndexHistoryPoint) (decimal.Decimal, bool) {
	baseline := latest.Snapshot
	if len(baseline) == 0 {
		composition, err := s.compositionRepo.GetComposition(ctx, latest.IndexID)
		if err != nil || len(composition) == 0 {
			return decimal.Zero, false
		}
		for _, m := range composition {
			baseline = append(baseline, domain.SnapshotEntry{
				Ticker:     m.Ticker,
				Weight:     m.TargetWeight,
				Price:      m.EntryPrice,
				EntryPrice: m.EntryPrice,
				EntryDate:  m.EntryDate,
			})
		}
	}

	prices, err := s.marketData.GetLatestPrices(ctx, baseline.Tickers())
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load live prices", "index_id", latest.IndexID, "error", err)
		return decimal.Zero, false
	}

	one := decimal.NewFromInt(1)
	weightedReturn := decimal.Zero
	totalWeight := decimal.Zero
	for _, e := range baseline {
		quote, ok := prices[e.Ticker]
		if !ok || !quote.Price.IsPositive() || !e.Price.IsPositive() {
			continue
		}
		assetReturn := quote.Price.Div(e.Price).Sub(one)
		weightedReturn = weightedReturn.Add(e.Weight.Mul(assetReturn))
		totalWeight = totalWeight.Add(e.Weight)
	}
	if totalWeight.IsZero() {
		return decimal.Zero, false
	}
	return weightedReturn, true
}

func (s *IndexQueryService) loadPerformanceInputs(ctx context.Context, indexID string) ([]*domain.IndexHistoryPoint, map[string]bool, error) {
	points, err := s.historyRepo.ListPoints(ctx, indexID, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load history points: %w", err)
	}
	composition, err := s.compositionRepo.GetComposition(ctx, indexID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load composition: %w", err)
	}
	activeTickers := make(map[string]bool, len(composition))
	for _, m := range composition {
		activeTickers[m.Ticker] = true
	}
	return points, activeTickers, nil
}
