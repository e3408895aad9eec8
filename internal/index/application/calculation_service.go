// Package application 指数计算引擎的应用服务：
// 日收益计算、点位序列写入、缺口补算与迟到股息重算。
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/marketindex/internal/index/domain"
)

// PointCache 最新点位读模型（Redis），可为 nil。
type PointCache interface {
	Save(ctx context.Context, point *domain.IndexHistoryPoint) error
	GetLatest(ctx context.Context, indexID string) (*domain.IndexHistoryPoint, error)
	Invalidate(ctx context.Context, indexID string) error
}

// IndexCalculationService 命令侧：所有会写历史点位的操作。
// 跨日期的补算与重算必须严格升序串行，每一日的点位是下一日的复利基数；
// 不同指数之间相互独立，可并发处理。
type IndexCalculationService struct {
	indexRepo       domain.IndexRepository
	compositionRepo domain.CompositionRepository
	historyRepo     domain.HistoryRepository
	marketData      domain.MarketDataGateway
	dividends       domain.DividendSource
	publisher       domain.EventPublisher
	pointCache      PointCache
	calendar        *domain.MarketCalendar
	logger          *slog.Logger
}

func NewIndexCalculationService(
	indexRepo domain.IndexRepository,
	compositionRepo domain.CompositionRepository,
	historyRepo domain.HistoryRepository,
	marketData domain.MarketDataGateway,
	dividends domain.DividendSource,
	publisher domain.EventPublisher,
	pointCache PointCache,
	calendar *domain.MarketCalendar,
	logger *slog.Logger,
) *IndexCalculationService {
	return &IndexCalculationService{
		indexRepo:       indexRepo,
		compositionRepo: compositionRepo,
		historyRepo:     historyRepo,
		marketData:      marketData,
		dividends:       dividends,
		publisher:       publisher,
		pointCache:      pointCache,
		calendar:        calendar,
		logger:          logger.With("module", "index_calculation"),
	}
}

// CreateIndex 创建指数定义
func (s *IndexCalculationService) CreateIndex(ctx context.Context, indexID, name, description, baseCurrency string) error {
	if baseCurrency == "" {
		baseCurrency = "USD"
	}
	return s.indexRepo.Save(ctx, &domain.IndexDefinition{
		IndexID:      indexID,
		Name:         name,
		Description:  description,
		BaseCurrency: baseCurrency,
	})
}

// ReplaceComposition 运维入口：整体替换当前成分。选择成分的再平衡
// 逻辑在外部系统，这里只落库。
func (s *IndexCalculationService) ReplaceComposition(ctx context.Context, indexID string, members []domain.IndexComposition) error {
	if _, err := s.indexRepo.GetByIndexID(ctx, indexID); err != nil {
		return err
	}
	return s.compositionRepo.ReplaceComposition(ctx, indexID, members)
}

// ComputeDailyReturn 纯计算：解析输入并产出单日结果，不写任何状态。
func (s *IndexCalculationService) ComputeDailyReturn(ctx context.Context, indexID string, date time.Time) (*domain.DayResult, error) {
	date = domain.DateOnly(date)
	members, err := s.resolveMembers(ctx, indexID, date)
	if err != nil {
		return nil, err
	}
	prev, err := s.historyRepo.GetPointBefore(ctx, indexID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior history point: %w", err)
	}
	if prev == nil {
		// 只有完全没有历史时才允许创世；历史存在但全在目标日之后，
		// 说明在往创世日之前乱序写点位，落库会伪造第二个创世行
		latest, err := s.historyRepo.GetLatestPoint(ctx, indexID)
		if err != nil {
			return nil, fmt.Errorf("failed to load latest history point: %w", err)
		}
		if latest != nil {
			return nil, domain.ErrMissingHistoryBase
		}
	}
	return domain.CalculateDailyReturn(date, members, prev)
}

// UpdatePoints 计算并持久化一天的点位。(indexID, date) 幂等可重入：
// 上游数据不变时重跑得到完全相同的行，数据变了则整行覆盖。
func (s *IndexCalculationService) UpdatePoints(ctx context.Context, indexID string, date time.Time) (bool, error) {
	date = domain.DateOnly(date)
	result, err := s.ComputeDailyReturn(ctx, indexID, date)
	if err != nil {
		return false, err
	}

	point := result.Point(indexID)
	if err := s.historyRepo.SavePoint(ctx, point); err != nil {
		return false, fmt.Errorf("failed to save history point: %w", err)
	}
	s.refreshCache(ctx, indexID)

	if s.publisher != nil {
		event := domain.PointUpdatedEvent{
			IndexID:           indexID,
			Date:              point.Date,
			Points:            point.Points.String(),
			DailyChange:       point.DailyChange.String(),
			DividendsReceived: point.DividendsReceived.String(),
		}
		if err := s.publisher.Publish(ctx, domain.PointUpdatedEventType, indexID, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish point updated event", "index_id", indexID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "index point updated",
		"index_id", indexID,
		"date", point.Date.Format("2006-01-02"),
		"points", point.Points.String(),
		"daily_change", point.DailyChange.String(),
	)
	return true, nil
}

// FillMissingHistory 补算缺失的工作日：从最近一条已持久化点位的次日起
// 逐日计算到今天。必须升序串行，单日失败记录后继续（尽力而为），返回
// 尝试数与成功数，便于运维只重跑失败日期。已是最新时直接返回零。
func (s *IndexCalculationService) FillMissingHistory(ctx context.Context, indexID string) (*FillReport, error) {
	report := &FillReport{IndexID: indexID}

	latest, err := s.historyRepo.GetLatestPoint(ctx, indexID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest history point: %w", err)
	}

	// 今天取交易所本地日期，和实时层、定时任务保持同一口径
	today := s.calendar.Today()
	if latest == nil {
		// 无任何历史：今天就是创世日
		report.Attempted = 1
		if _, err := s.UpdatePoints(ctx, indexID, today); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", today.Format("2006-01-02"), err))
			return report, nil
		}
		report.Filled = 1
		return report, nil
	}

	days := domain.BusinessDaysBetween(latest.Date, today)
	for _, day := range days {
		report.Attempted++
		if _, err := s.UpdatePoints(ctx, indexID, day); err != nil {
			s.logger.WarnContext(ctx, "failed to fill history point",
				"index_id", indexID, "date", day.Format("2006-01-02"), "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", day.Format("2006-01-02"), err))
			continue
		}
		report.Filled++
	}

	if s.publisher != nil && report.Attempted > 0 {
		event := domain.HistoryFilledEvent{IndexID: indexID, Attempted: report.Attempted, Filled: report.Filled}
		if err := s.publisher.Publish(ctx, domain.HistoryFilledEventType, indexID, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish history filled event", "index_id", indexID, "error", err)
		}
	}
	return report, nil
}

// RecalculateWithDividends 迟到股息重算。点位逐日复利，漏掉的股息会让
// 之后每一天的基数偏低，所以从受影响日起整段后缀都要重算。
//
// 从创世（或 startDate）起升序重放：基数取窗口前一点位（没有则 100），
// 每日按最新股息数据源重解析除权事件，用该日快照里钉死的价格重跑加权
// 收益，基于运行中的基数复利后整行覆盖。某日失败则跳过该行，后续日期
// 从最后一次成功重算的基数继续（尽力而为的取舍，见错误列表）。
func (s *IndexCalculationService) RecalculateWithDividends(ctx context.Context, indexID string, startDate *time.Time) (*RecalcReport, error) {
	report := &RecalcReport{IndexID: indexID, Changes: []RecalcChange{}}

	points, err := s.historyRepo.ListPoints(ctx, indexID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load history points: %w", err)
	}
	if len(points) == 0 {
		return report, nil
	}

	startIdx := 0
	if startDate != nil {
		start := domain.DateOnly(*startDate)
		for i, p := range points {
			if !p.Date.Before(start) {
				startIdx = i
				break
			}
			startIdx = i + 1
		}
	}
	if startIdx >= len(points) {
		return report, nil
	}

	base := domain.BasePoints
	var prevSnapshot domain.CompositionSnapshot
	if startIdx > 0 {
		base = points[startIdx-1].Points
		prevSnapshot = points[startIdx-1].Snapshot
	}

	for i := startIdx; i < len(points); i++ {
		point := points[i]

		if i == 0 {
			// 创世行没有收益可重算，点位恒为 100，只作为后续基数
			base = point.Points
			prevSnapshot = point.Snapshot
			continue
		}

		dividends, err := s.dividends.GetDividends(ctx, point.Snapshot.Tickers(), point.Date)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: resolve dividends: %v", point.Date.Format("2006-01-02"), err))
			prevSnapshot = point.Snapshot
			continue
		}
		for ticker := range dividends {
			if _, known := point.DividendsByTicker[ticker]; !known {
				report.DividendsFound++
			}
		}

		recomputed, err := domain.RecomputeStep(point, prevSnapshot, dividends, base)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", point.Date.Format("2006-01-02"), err))
			prevSnapshot = point.Snapshot
			continue
		}

		if err := s.historyRepo.SavePoint(ctx, recomputed); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: save: %v", point.Date.Format("2006-01-02"), err))
			prevSnapshot = point.Snapshot
			continue
		}

		report.Recalculated++
		report.Changes = append(report.Changes, RecalcChange{
			Date:      point.Date.Format("2006-01-02"),
			OldPoints: point.Points.String(),
			NewPoints: recomputed.Points.String(),
		})

		base = recomputed.Points
		prevSnapshot = recomputed.Snapshot
	}

	s.refreshCache(ctx, indexID)

	if s.publisher != nil {
		event := domain.RecalculatedEvent{
			IndexID:        indexID,
			StartDate:      startDate,
			Recalculated:   report.Recalculated,
			DividendsFound: report.DividendsFound,
			Errors:         len(report.Errors),
		}
		if err := s.publisher.Publish(ctx, domain.RecalculatedEventType, indexID, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish recalculated event", "index_id", indexID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "dividend recalculation finished",
		"index_id", indexID,
		"recalculated", report.Recalculated,
		"dividends_found", report.DividendsFound,
		"errors", len(report.Errors),
	)
	return report, nil
}

// resolveMembers 解析一日计算所需的全部输入。单个代码的查询失败按缺
// 数据降级（日志后继续），只有全部成分都不可定价时整日才会失败。
func (s *IndexCalculationService) resolveMembers(ctx context.Context, indexID string, date time.Time) ([]domain.MemberData, error) {
	composition, err := s.compositionRepo.GetComposition(ctx, indexID)
	if err != nil {
		return nil, fmt.Errorf("failed to load composition: %w", err)
	}
	if len(composition) == 0 {
		return nil, domain.ErrNoComposition
	}

	tickers := make([]string, 0, len(composition))
	for _, m := range composition {
		tickers = append(tickers, m.Ticker)
	}

	latestPrices, err := s.marketData.GetLatestPrices(ctx, tickers)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to batch latest prices", "index_id", indexID, "error", err)
		latestPrices = map[string]domain.PriceQuote{}
	}
	dividends, err := s.dividends.GetDividends(ctx, tickers, date)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve dividends", "index_id", indexID, "error", err)
		dividends = map[string]decimal.Decimal{}
	}

	yesterday := date.AddDate(0, 0, -1)
	members := make([]domain.MemberData, 0, len(composition))
	for _, m := range composition {
		member := domain.MemberData{
			Ticker:     m.Ticker,
			Weight:     m.TargetWeight,
			EntryPrice: m.EntryPrice,
			EntryDate:  domain.DateOnly(m.EntryDate),
			Dividend:   dividends[m.Ticker],
		}

		if quote, ok := latestPrices[m.Ticker]; ok && quote.Price.IsPositive() {
			price := quote.Price
			member.PriceToday = &price
		}

		closeBefore, err := s.marketData.GetPriceAsOf(ctx, m.Ticker, yesterday)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to resolve prior close, treating as missing",
				"ticker", m.Ticker, "date", yesterday.Format("2006-01-02"), "error", err)
		} else {
			member.CloseBefore = closeBefore
		}

		trailingYield, err := s.marketData.GetTrailingYield(ctx, m.Ticker)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to resolve trailing yield", "ticker", m.Ticker, "error", err)
		} else {
			member.TrailingYield = trailingYield
		}

		members = append(members, member)
	}
	return members, nil
}

func (s *IndexCalculationService) refreshCache(ctx context.Context, indexID string) {
	if s.pointCache == nil {
		return
	}
	latest, err := s.historyRepo.GetLatestPoint(ctx, indexID)
	if err != nil || latest == nil {
		_ = s.pointCache.Invalidate(ctx, indexID)
		return
	}
	if err := s.pointCache.Save(ctx, latest); err != nil {
		s.logger.WarnContext(ctx, "failed to refresh point cache", "index_id", indexID, "error", err)
	}
}
