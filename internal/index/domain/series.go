package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateOnly 截断到日期（UTC 零点），历史点位统一用它做主键日期。
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay 两个时间是否同一自然日
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// IsBusinessDay 周一至周五；节假日由 MarketCalendar 另行过滤。
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDaysBetween 枚举严格晚于 after、不晚于 until 的工作日，升序。
// 补算必须按此顺序逐日进行：每一日的点位依赖前一日已持久化的点位。
func BusinessDaysBetween(after, until time.Time) []time.Time {
	start := DateOnly(after)
	end := DateOnly(until)
	var days []time.Time
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// RecomputeStep 基于既有快照重算一个历史点位。
//
// 今日价格取自该日快照（快照钉死了当日真实使用的价格，之后的再平衡
// 不影响历史），昨日价格取前一点位快照中同一代码的价格，缺失时退回
// 快照内的入选价；股息由调用方按最新数据源重新解析。base 是重算链上
// 前一日成功重算后的点位，点位按 base 复利。
func RecomputeStep(point *IndexHistoryPoint, prevSnapshot CompositionSnapshot, dividends map[string]decimal.Decimal, base decimal.Decimal) (*IndexHistoryPoint, error) {
	if len(point.Snapshot) == 0 {
		return nil, ErrNoComposition
	}

	weightedReturn := decimal.Zero
	totalWeight := decimal.Zero
	dividendsTotal := decimal.Zero
	dividendsByTicker := map[string]decimal.Decimal{}

	for _, e := range point.Snapshot {
		yesterday := decimal.Zero
		if prev, ok := prevSnapshot.Find(e.Ticker); ok && prev.Price.IsPositive() {
			yesterday = prev.Price
		} else if e.EntryPrice.IsPositive() {
			yesterday = e.EntryPrice
		}
		if !yesterday.IsPositive() || !e.Price.IsPositive() {
			continue
		}

		dividend := dividends[e.Ticker]
		adjusted := e.Price.Add(dividend)
		assetReturn := adjusted.Div(yesterday).Sub(one)
		weightedReturn = weightedReturn.Add(e.Weight.Mul(assetReturn))
		totalWeight = totalWeight.Add(e.Weight)

		if dividend.IsPositive() {
			points := dividend.Div(yesterday).Mul(e.Weight).Mul(base)
			dividendsTotal = dividendsTotal.Add(points)
			dividendsByTicker[e.Ticker] = dividend
		}
	}

	if totalWeight.IsZero() {
		return nil, ErrNoPriceableAssets
	}

	return &IndexHistoryPoint{
		IndexID:           point.IndexID,
		Date:              point.Date,
		Points:            base.Mul(one.Add(weightedReturn)),
		DailyChange:       weightedReturn.Mul(hundred),
		CurrentYield:      point.CurrentYield,
		DividendsReceived: dividendsTotal,
		DividendsByTicker: dividendsByTicker,
		Snapshot:          point.Snapshot,
	}, nil
}
