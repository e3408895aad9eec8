package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// MemberData 单个成分在目标日的已解析输入。
// 价格解析（含超时降级）由应用层完成，这里只做纯计算。
type MemberData struct {
	Ticker     string
	Weight     decimal.Decimal
	EntryPrice decimal.Decimal
	EntryDate  time.Time
	// PriceToday 目标日最新价，nil 表示未能获取
	PriceToday *decimal.Decimal
	// CloseBefore 目标日前一自然日（含）之前最近的收盘价，nil 表示不存在
	CloseBefore *decimal.Decimal
	// Dividend 目标日除权的每股现金股息，无则为零
	Dividend decimal.Decimal
	// TrailingYield 近12个月股息率，nil 表示数据源未提供
	TrailingYield *decimal.Decimal
}

// DayResult 单日计算结果，要么完整要么失败，绝不落半成品。
type DayResult struct {
	Date              time.Time
	Points            decimal.Decimal
	DailyChange       decimal.Decimal // 百分比
	CurrentYield      *decimal.Decimal
	DividendsReceived decimal.Decimal
	DividendsByTicker map[string]decimal.Decimal
	Snapshot          CompositionSnapshot
}

// Point 将结果转为可持久化的历史点位
func (r *DayResult) Point(indexID string) *IndexHistoryPoint {
	return &IndexHistoryPoint{
		IndexID:           indexID,
		Date:              r.Date,
		Points:            r.Points,
		DailyChange:       r.DailyChange,
		CurrentYield:      r.CurrentYield,
		DividendsReceived: r.DividendsReceived,
		DividendsByTicker: r.DividendsByTicker,
		Snapshot:          r.Snapshot,
	}
}

// CalculateDailyReturn 计算一个指数在目标日的加权除息收益与累计点位。
//
// prev 为截至计算时最近一条已持久化的历史点位；为 nil 时按创世日处理：
// 点位固定 100、涨跌为零，只计算股息率并落快照。
// 后续日以昨日权重加权今日收益：adjusted = priceToday + dividend，
// return = adjusted/priceYesterday - 1，使除权日恰好下跌股息额的股票贡献为零。
func CalculateDailyReturn(date time.Time, members []MemberData, prev *IndexHistoryPoint) (*DayResult, error) {
	if len(members) == 0 {
		return nil, ErrNoComposition
	}

	if prev == nil {
		return genesisResult(date, members), nil
	}

	weightedReturn := decimal.Zero
	totalWeight := decimal.Zero
	dividendsTotal := decimal.Zero
	dividendsByTicker := map[string]decimal.Decimal{}
	snapshot := CompositionSnapshot{}

	for _, m := range members {
		if m.PriceToday != nil && m.PriceToday.IsPositive() {
			snapshot = append(snapshot, SnapshotEntry{
				Ticker:     m.Ticker,
				Weight:     m.Weight,
				Price:      *m.PriceToday,
				EntryPrice: m.EntryPrice,
				EntryDate:  m.EntryDate,
			})
		}

		yesterday := resolveYesterdayPrice(date, m)
		if yesterday == nil || !yesterday.IsPositive() {
			continue
		}
		if m.PriceToday == nil || !m.PriceToday.IsPositive() {
			continue
		}

		adjusted := m.PriceToday.Add(m.Dividend)
		assetReturn := adjusted.Div(*yesterday).Sub(one)
		weightedReturn = weightedReturn.Add(m.Weight.Mul(assetReturn))
		totalWeight = totalWeight.Add(m.Weight)

		if m.Dividend.IsPositive() {
			points := m.Dividend.Div(*yesterday).Mul(m.Weight).Mul(prev.Points)
			dividendsTotal = dividendsTotal.Add(points)
			dividendsByTicker[m.Ticker] = m.Dividend
		}
	}

	if totalWeight.IsZero() {
		return nil, ErrNoPriceableAssets
	}

	return &DayResult{
		Date:              date,
		Points:            prev.Points.Mul(one.Add(weightedReturn)),
		DailyChange:       weightedReturn.Mul(hundred),
		CurrentYield:      weightedYield(members),
		DividendsReceived: dividendsTotal,
		DividendsByTicker: dividendsByTicker,
		Snapshot:          snapshot,
	}, nil
}

// resolveYesterdayPrice 解析昨日价格：
// 优先用前一自然日（含）之前最近的收盘价；若不存在且成分恰好在目标日
// 入选（刚被再平衡纳入），用今日价代替，使入选首日收益强制为零，避免
// 与过期价格比较造成虚假跳变；否则退回入选价。
func resolveYesterdayPrice(date time.Time, m MemberData) *decimal.Decimal {
	if m.CloseBefore != nil && m.CloseBefore.IsPositive() {
		return m.CloseBefore
	}
	if SameDay(m.EntryDate, date) && m.PriceToday != nil {
		return m.PriceToday
	}
	if m.EntryPrice.IsPositive() {
		p := m.EntryPrice
		return &p
	}
	return nil
}

// weightedYield 对提供了股息率的成分做加权平均；权重只取这部分成分，
// 与价格收益的 totalWeight 无关。
func weightedYield(members []MemberData) *decimal.Decimal {
	sum := decimal.Zero
	weight := decimal.Zero
	for _, m := range members {
		if m.TrailingYield == nil {
			continue
		}
		sum = sum.Add(m.Weight.Mul(*m.TrailingYield))
		weight = weight.Add(m.Weight)
	}
	if weight.IsZero() {
		return nil
	}
	y := sum.Div(weight)
	return &y
}

func genesisResult(date time.Time, members []MemberData) *DayResult {
	snapshot := CompositionSnapshot{}
	for _, m := range members {
		price := m.EntryPrice
		if m.PriceToday != nil && m.PriceToday.IsPositive() {
			price = *m.PriceToday
		}
		snapshot = append(snapshot, SnapshotEntry{
			Ticker:     m.Ticker,
			Weight:     m.Weight,
			Price:      price,
			EntryPrice: m.EntryPrice,
			EntryDate:  m.EntryDate,
		})
	}
	return &DayResult{
		Date:              date,
		Points:            BasePoints,
		DailyChange:       decimal.Zero,
		CurrentYield:      weightedYield(members),
		DividendsReceived: decimal.Zero,
		DividendsByTicker: map[string]decimal.Decimal{},
		Snapshot:          snapshot,
	}
}
