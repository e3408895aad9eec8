package domain

import "time"

const (
	PointUpdatedEventType  = "index.point.updated"
	RecalculatedEventType  = "index.recalculated"
	HistoryFilledEventType = "index.history.filled"
)

// PointUpdatedEvent 历史点位写入/覆盖事件
type PointUpdatedEvent struct {
	IndexID           string    `json:"index_id"`
	Date              time.Time `json:"date"`
	Points            string    `json:"points"`
	DailyChange       string    `json:"daily_change"`
	DividendsReceived string    `json:"dividends_received"`
}

// RecalculatedEvent 股息重算完成事件
type RecalculatedEvent struct {
	IndexID        string     `json:"index_id"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	Recalculated   int        `json:"recalculated"`
	DividendsFound int        `json:"dividends_found"`
	Errors         int        `json:"errors"`
}

// HistoryFilledEvent 缺口补算完成事件
type HistoryFilledEvent struct {
	IndexID   string `json:"index_id"`
	Attempted int    `json:"attempted"`
	Filled    int    `json:"filled"`
}
