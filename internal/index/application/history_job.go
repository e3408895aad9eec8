package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/marketindex/internal/index/domain"
)

// HistoryFillJob 负责定期为所有指数补算缺失的交易日点位。
// 单实例内串行执行，同一指数不会并发补算。
type HistoryFillJob struct {
	calc      *IndexCalculationService
	indexRepo domain.IndexRepository
	calendar  *domain.MarketCalendar
	logger    *slog.Logger
	interval  time.Duration
}

func NewHistoryFillJob(
	calc *IndexCalculationService,
	indexRepo domain.IndexRepository,
	calendar *domain.MarketCalendar,
	logger *slog.Logger,
) *HistoryFillJob {
	return &HistoryFillJob{
		calc:      calc,
		indexRepo: indexRepo,
		calendar:  calendar,
		logger:    logger.With("module", "history_fill_job"),
		interval:  1 * time.Hour,
	}
}

func (j *HistoryFillJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("History Fill Job started", "interval", j.interval)

	// 启动时先跑一轮，服务停机期间漏掉的交易日尽快补上
	j.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *HistoryFillJob) run(ctx context.Context) {
	if !j.calendar.IsTradingDay(j.calendar.Today()) {
		return
	}

	defs, err := j.indexRepo.List(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "failed to list indices", "error", err)
		return
	}

	for _, def := range defs {
		report, err := j.calc.FillMissingHistory(ctx, def.IndexID)
		if err != nil {
			// 单个指数失败不阻塞其余指数
			j.logger.ErrorContext(ctx, "failed to fill index history", "index_id", def.IndexID, "error", err)
			continue
		}
		if report.Filled > 0 || len(report.Errors) > 0 {
			j.logger.InfoContext(ctx, "index history fill finished",
				"index_id", def.IndexID,
				"attempted", report.Attempted,
				"filled", report.Filled,
				"errors", len(report.Errors))
		}
	}
}
