package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("X", 8*3600)
	got := DateOnly(time.Date(2026, 3, 3, 23, 45, 1, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), got)
}

func TestBusinessDaysBetween(t *testing.T) {
	// 2026-01-02 是周五；严格晚于 after，跳过周末
	days := BusinessDaysBetween(day("2026-01-02"), day("2026-01-07"))
	require.Len(t, days, 3)
	assert.Equal(t, day("2026-01-05"), days[0])
	assert.Equal(t, day("2026-01-06"), days[1])
	assert.Equal(t, day("2026-01-07"), days[2])

	assert.Empty(t, BusinessDaysBetween(day("2026-01-07"), day("2026-01-07")))
	assert.Empty(t, BusinessDaysBetween(day("2026-01-09"), day("2026-01-03")))
}

func TestRecomputeStepNeutralizesLateDividend(t *testing.T) {
	point := &IndexHistoryPoint{
		IndexID:     "IDX-1",
		Date:        day("2026-03-03"),
		Points:      d("98"), // 原来没算股息，被动下跌
		DailyChange: d("-2"),
		Snapshot: CompositionSnapshot{
			{Ticker: "KO", Weight: d("1"), Price: d("98"), EntryPrice: d("80"), EntryDate: day("2026-01-05")},
		},
	}
	prevSnapshot := CompositionSnapshot{
		{Ticker: "KO", Weight: d("1"), Price: d("100"), EntryPrice: d("80"), EntryDate: day("2026-01-05")},
	}

	recomputed, err := RecomputeStep(point, prevSnapshot, map[string]decimal.Decimal{"KO": d("2")}, d("100"))
	require.NoError(t, err)

	// 补上股息后该日收益归零
	assert.True(t, recomputed.DailyChange.IsZero(), "got %s", recomputed.DailyChange)
	assert.True(t, recomputed.Points.Equal(d("100")), "got %s", recomputed.Points)
	assert.True(t, recomputed.DividendsReceived.Equal(d("2")), "got %s", recomputed.DividendsReceived)
	assert.True(t, recomputed.DividendsByTicker["KO"].Equal(d("2")))
	// 快照与日期原样保留
	assert.Equal(t, point.Date, recomputed.Date)
	assert.Equal(t, point.Snapshot, recomputed.Snapshot)
}

func TestRecomputeStepWithoutDividendReproducesReturn(t *testing.T) {
	point := &IndexHistoryPoint{
		IndexID: "IDX-1",
		Date:    day("2026-03-03"),
		Points:  d("98"),
		Snapshot: CompositionSnapshot{
			{Ticker: "KO", Weight: d("1"), Price: d("98"), EntryPrice: d("80"), EntryDate: day("2026-01-05")},
		},
	}
	prevSnapshot := CompositionSnapshot{
		{Ticker: "KO", Weight: d("1"), Price: d("100"), EntryPrice: d("80"), EntryDate: day("2026-01-05")},
	}

	recomputed, err := RecomputeStep(point, prevSnapshot, nil, d("100"))
	require.NoError(t, err)

	assert.True(t, recomputed.DailyChange.Equal(d("-2")), "got %s", recomputed.DailyChange)
	assert.True(t, recomputed.Points.Equal(d("98")), "got %s", recomputed.Points)
}

func TestRecomputeStepFallsBackToEntryPrice(t *testing.T) {
	// 前一日快照缺该代码（中途入选），昨日价退回快照内的入选价
	point := &IndexHistoryPoint{
		IndexID: "IDX-1",
		Date:    day("2026-03-03"),
		Snapshot: CompositionSnapshot{
			{Ticker: "NVDA", Weight: d("1"), Price: d("550"), EntryPrice: d("500"), EntryDate: day("2026-03-01")},
		},
	}

	recomputed, err := RecomputeStep(point, nil, nil, d("100"))
	require.NoError(t, err)

	// 550/500 - 1 = 10%
	assert.True(t, recomputed.DailyChange.Equal(d("10")), "got %s", recomputed.DailyChange)
	assert.True(t, recomputed.Points.Equal(d("110")), "got %s", recomputed.Points)
}

func TestRecomputeStepEmptySnapshot(t *testing.T) {
	_, err := RecomputeStep(&IndexHistoryPoint{Date: day("2026-03-03")}, nil, nil, d("100"))
	assert.ErrorIs(t, err, ErrNoComposition)
}
