package domain

import (
	"fmt"
	"time"
)

// MarketCalendar 交易所日历：时区、交易时段与节假日。
// 实时层用它判断今天有没有交易、此刻是否开盘。
type MarketCalendar struct {
	loc       *time.Location
	openMins  int
	closeMins int
	holidays  map[string]struct{}
}

// NewMarketCalendar 创建日历。open/close 形如 "09:30"、"16:00"，
// holidays 形如 "2026-01-01"。
func NewMarketCalendar(timezone, open, close string, holidays []string) (*MarketCalendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid exchange timezone %q: %w", timezone, err)
	}
	openMins, err := parseClock(open)
	if err != nil {
		return nil, err
	}
	closeMins, err := parseClock(close)
	if err != nil {
		return nil, err
	}
	hs := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		hs[h] = struct{}{}
	}
	return &MarketCalendar{loc: loc, openMins: openMins, closeMins: closeMins, holidays: hs}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid session time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Now 交易所本地当前时间
func (c *MarketCalendar) Now() time.Time { return time.Now().In(c.loc) }

// Today 交易所本地今天的日期（UTC 零点规整）
func (c *MarketCalendar) Today() time.Time { return DateOnly(c.Now()) }

// LocalDate 将任意时刻换算到交易所本地日期
func (c *MarketCalendar) LocalDate(t time.Time) time.Time { return DateOnly(t.In(c.loc)) }

// IsTradingDay 是否交易日：工作日且非节假日
func (c *MarketCalendar) IsTradingDay(t time.Time) bool {
	if !IsBusinessDay(t) {
		return false
	}
	_, holiday := c.holidays[t.Format("2006-01-02")]
	return !holiday
}

// IsOpen 此刻是否处于交易时段内
func (c *MarketCalendar) IsOpen(now time.Time) bool {
	local := now.In(c.loc)
	if !c.IsTradingDay(local) {
		return false
	}
	mins := local.Hour()*60 + local.Minute()
	return mins >= c.openMins && mins < c.closeMins
}

// SessionEnded 今天的交易时段是否已经结束
func (c *MarketCalendar) SessionEnded(now time.Time) bool {
	local := now.In(c.loc)
	if !c.IsTradingDay(local) {
		return false
	}
	mins := local.Hour()*60 + local.Minute()
	return mins >= c.closeMins
}
