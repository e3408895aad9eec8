package application

import (
	"time"

	"github.com/wyfcoding/marketindex/internal/index/domain"
)

// IndexDTO 指数定义
type IndexDTO struct {
	IndexID      string          `json:"index_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	BaseCurrency string          `json:"base_currency"`
	CreatedAt    time.Time       `json:"created_at"`
	LatestPoint  *HistoryPointDTO `json:"latest_point,omitempty"`
}

// HistoryPointDTO 历史点位
type HistoryPointDTO struct {
	Date              string            `json:"date"`
	Points            string            `json:"points"`
	DailyChange       string            `json:"daily_change"`
	CurrentYield      *string           `json:"current_yield,omitempty"`
	DividendsReceived string            `json:"dividends_received"`
	DividendsByTicker map[string]string `json:"dividends_by_ticker,omitempty"`
	Snapshot          []SnapshotDTO     `json:"snapshot"`
}

// SnapshotDTO 成分快照条目
type SnapshotDTO struct {
	Ticker     string `json:"ticker"`
	Weight     string `json:"weight"`
	Price      string `json:"price"`
	EntryPrice string `json:"entry_price"`
	EntryDate  string `json:"entry_date"`
}

// RealTimeDTO 实时投影结果，只读不落库
type RealTimeDTO struct {
	IndexID           string `json:"index_id"`
	Points            string `json:"points"`
	DailyChange       string `json:"daily_change"`
	LastSessionChange string `json:"last_session_change"`
	LastOfficialDate  string `json:"last_official_date"`
	IsMarketOpen      bool   `json:"is_market_open"`
	IsProjection      bool   `json:"is_projection"`
	AsOf              time.Time `json:"as_of"`
}

// FillReport 缺口补算结果
type FillReport struct {
	IndexID   string   `json:"index_id"`
	Attempted int      `json:"attempted"`
	Filled    int      `json:"filled"`
	Errors    []string `json:"errors,omitempty"`
}

// RecalcChange 重算审计条目
type RecalcChange struct {
	Date      string `json:"date"`
	OldPoints string `json:"old_points"`
	NewPoints string `json:"new_points"`
}

// RecalcReport 股息重算结果
type RecalcReport struct {
	IndexID        string         `json:"index_id"`
	Recalculated   int            `json:"recalculated"`
	DividendsFound int            `json:"dividends_found"`
	Changes        []RecalcChange `json:"changes"`
	Errors         []string       `json:"errors,omitempty"`
}

// AssetPerformanceDTO 成分历史表现
type AssetPerformanceDTO struct {
	Ticker        string  `json:"ticker"`
	EntryDate     string  `json:"entry_date"`
	EntryPrice    string  `json:"entry_price"`
	ExitDate      *string `json:"exit_date,omitempty"`
	ExitPrice     *string `json:"exit_price,omitempty"`
	TotalReturn   *string `json:"total_return,omitempty"`
	Contribution  string  `json:"contribution"`
	AverageWeight string  `json:"average_weight"`
	DaysInIndex   int     `json:"days_in_index"`
	Active        bool    `json:"active"`
}

func toHistoryPointDTO(p *domain.IndexHistoryPoint) *HistoryPointDTO {
	dto := &HistoryPointDTO{
		Date:              p.Date.Format("2006-01-02"),
		Points:            p.Points.String(),
		DailyChange:       p.DailyChange.String(),
		DividendsReceived: p.DividendsReceived.String(),
		Snapshot:          make([]SnapshotDTO, 0, len(p.Snapshot)),
	}
	if p.CurrentYield != nil {
		y := p.CurrentYield.String()
		dto.CurrentYield = &y
	}
	if len(p.DividendsByTicker) > 0 {
		dto.DividendsByTicker = make(map[string]string, len(p.DividendsByTicker))
		for ticker, amount := range p.DividendsByTicker {
			dto.DividendsByTicker[ticker] = amount.String()
		}
	}
	for _, e := range p.Snapshot {
		dto.Snapshot = append(dto.Snapshot, SnapshotDTO{
			Ticker:     e.Ticker,
			Weight:     e.Weight.String(),
			Price:      e.Price.String(),
			EntryPrice: e.EntryPrice.String(),
			EntryDate:  e.EntryDate.Format("2006-01-02"),
		})
	}
	return dto
}

func toAssetPerformanceDTO(p *domain.AssetPerformance) *AssetPerformanceDTO {
	dto := &AssetPerformanceDTO{
		Ticker:        p.Ticker,
		EntryDate:     p.EntryDate.Format("2006-01-02"),
		EntryPrice:    p.EntryPrice.String(),
		Contribution:  p.Contribution.Round(8).String(),
		AverageWeight: p.AverageWeight.Round(8).String(),
		DaysInIndex:   p.DaysInIndex,
		Active:        p.Active,
	}
	if p.ExitDate != nil {
		d := p.ExitDate.Format("2006-01-02")
		dto.ExitDate = &d
	}
	if p.ExitPrice != nil {
		v := p.ExitPrice.String()
		dto.ExitPrice = &v
	}
	if p.TotalReturn != nil {
		v := p.TotalReturn.Round(8).String()
		dto.TotalReturn = &v
	}
	return dto
}
