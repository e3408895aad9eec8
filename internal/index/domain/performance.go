package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AssetPerformance 单个成分在指数中的历史表现，完全由历史快照推导。
type AssetPerformance struct {
	Ticker        string
	EntryDate     time.Time
	EntryPrice    decimal.Decimal
	ExitDate      *time.Time
	ExitPrice     *decimal.Decimal
	TotalReturn   *decimal.Decimal // 百分比，仅已退出成分有值
	Contribution  decimal.Decimal  // Σ 当日权重 × 当日涨跌，线性近似
	AverageWeight decimal.Decimal
	DaysInIndex   int
	Active        bool
}

// BuildAssetPerformance 扫描升序历史点位，找出 ticker 出现过的每一天。
// 首次出现给出入选日期与价格；若当前成分中已不存在该代码则视为退出，
// 以最后一次出现的日期与价格作为退出信息。贡献度是线性近似而非复利
// 归因，见 BuildAllAssetPerformance 的说明。
func BuildAssetPerformance(points []*IndexHistoryPoint, ticker string, activeTickers map[string]bool) *AssetPerformance {
	var first, last *SnapshotEntry
	var firstDate, lastDate time.Time
	contribution := decimal.Zero
	weightSum := decimal.Zero
	days := 0

	for _, p := range points {
		e, ok := p.Snapshot.Find(ticker)
		if !ok {
			continue
		}
		entry := e
		if first == nil {
			first = &entry
			firstDate = p.Date
		}
		last = &entry
		lastDate = p.Date
		contribution = contribution.Add(e.Weight.Mul(p.DailyChange))
		weightSum = weightSum.Add(e.Weight)
		days++
	}

	if first == nil {
		return nil
	}

	perf := &AssetPerformance{
		Ticker:        ticker,
		EntryDate:     firstDate,
		EntryPrice:    first.Price,
		Contribution:  contribution,
		AverageWeight: weightSum.Div(decimal.NewFromInt(int64(days))),
		DaysInIndex:   days,
		Active:        activeTickers[ticker],
	}

	if !perf.Active {
		exitDate := lastDate
		exitPrice := last.Price
		perf.ExitDate = &exitDate
		perf.ExitPrice = &exitPrice
		if first.Price.IsPositive() {
			ret := exitPrice.Div(first.Price).Sub(one).Mul(hundred)
			perf.TotalReturn = &ret
		}
	}
	return perf
}

// BuildAllAssetPerformance 汇总历史上出现过的全部代码，按入选日期降序。
// 贡献度为加性线性近似（非复利归因），精确归因需要对数收益分解。
func BuildAllAssetPerformance(points []*IndexHistoryPoint, activeTickers map[string]bool) []*AssetPerformance {
	seen := map[string]struct{}{}
	for _, p := range points {
		for _, e := range p.Snapshot {
			seen[e.Ticker] = struct{}{}
		}
	}

	out := make([]*AssetPerformance, 0, len(seen))
	for ticker := range seen {
		if perf := BuildAssetPerformance(points, ticker, activeTickers); perf != nil {
			out = append(out, perf)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.After(out[j].EntryDate)
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}
