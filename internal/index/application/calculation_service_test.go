package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/marketindex/internal/index/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type calcFixture struct {
	svc       *IndexCalculationService
	indexRepo *fakeIndexRepo
	compRepo  *fakeCompositionRepo
	history   *fakeHistoryRepo
	market    *fakeMarket
	publisher *fakePublisher
	cache     *fakePointCache
}

func newCalcFixture() *calcFixture {
	calendar, err := domain.NewMarketCalendar("UTC", "09:30", "16:00", nil)
	if err != nil {
		panic(err)
	}
	f := &calcFixture{
		indexRepo: newFakeIndexRepo(),
		compRepo:  newFakeCompositionRepo(),
		history:   newFakeHistoryRepo(),
		market:    newFakeMarket(),
		publisher: &fakePublisher{},
		cache:     newFakePointCache(),
	}
	f.svc = NewIndexCalculationService(
		f.indexRepo, f.compRepo, f.history,
		f.market, f.market, f.publisher, f.cache, calendar, slog.Default(),
	)
	return f
}

func (f *calcFixture) seedIndex(t *testing.T, indexID string, members ...domain.IndexComposition) {
	t.Helper()
	require.NoError(t, f.svc.CreateIndex(context.Background(), indexID, "Test Index", "", "USD"))
	require.NoError(t, f.compRepo.ReplaceComposition(context.Background(), indexID, members))
}

func member(ticker, weight, entryPrice, entryDate string) domain.IndexComposition {
	return domain.IndexComposition{
		Ticker:       ticker,
		TargetWeight: d(weight),
		EntryPrice:   d(entryPrice),
		EntryDate:    day(entryDate),
	}
}

func TestUpdatePointsGenesisThenCompounds(t *testing.T) {
	f := newCalcFixture()
	f.seedIndex(t, "IDX-1",
		member("AAPL", "0.6", "100", "2026-01-05"),
		member("KO", "0.4", "50", "2026-01-05"),
	)
	f.market.setLatest("AAPL", "100")
	f.market.setLatest("KO", "50")

	updated, err := f.svc.UpdatePoints(context.Background(), "IDX-1", day("2026-03-02"))
	require.NoError(t, err)
	assert.True(t, updated)

	genesis, err := f.history.GetPoint(context.Background(), "IDX-1", day("2026-03-02"))
	require.NoError(t, err)
	require.NotNil(t, genesis)
	assert.True(t, genesis.Points.Equal(d("100")))
	assert.True(t, genesis.DailyChange.IsZero())

	// 次日：AAPL +5%，KO -2%
	f.market.setClose("AAPL", "2026-03-02", "100")
	f.market.setClose("KO", "2026-03-02", "50")
	f.market.setLatest("AAPL", "105")
	f.market.setLatest("KO", "49")

	_, err = f.svc.UpdatePoints(context.Background(), "IDX-1", day("2026-03-03"))
	require.NoError(t, err)

	next, err := f.history.GetPoint(context.Background(), "IDX-1", day("2026-03-03"))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Points.Equal(d("102.2")), "got %s", next.Points)
	assert.True(t, next.DailyChange.Equal(d("2.2")), "got %s", next.DailyChange)

	// 事件与读模型同步刷新
	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, domain.PointUpdatedEventType, f.publisher.events[0].topic)
	cached, _ := f.cache.GetLatest(context.Background(), "IDX-1")
	require.NotNil(t, cached)
	assert.True(t, cached.Points.Equal(d("102.2")))
}

func TestUpdatePointsIdempotentRerun(t *testing.T) {
	f := newCalcFixture()
	f.seedIndex(t, "IDX-1", member("AAPL", "1", "100", "2026-01-05"))
	f.market.setLatest("AAPL", "100")

	_, err := f.svc.UpdatePoints(context.Background(), "IDX-1", day("2026-03-02"))
	require.NoError(t, err)

	f.market.setClose("AAPL", "2026-03-02", "100")
	f.market.setLatest("AAPL", "110")
	_, err = f.svc.UpdatePoints(context.Background(), "IDX-1", day("2026-03-03"))
	require.NoError(t, err)

	first, _ := f.history.GetPoint(context.Background(), "IDX-1", day("2026-03-03"))

	// 同一天重跑：复利基数仍取前一日，结果一字不差
	_, err = f.svc.UpdatePoints(context.Background(), "IDX-1", day("2026-03-03"))
	require.NoError(t, err)

	rerun, _ := f.history.GetPoint(context.Background(), "IDX-1", day("2026-03-03"))
	assert.True(t, rerun.Points.Equal(first.Points), "got %s want %s", rerun.Points, first.Points)
	assert.True(t, rerun.Points.Equal(d("110")), "got %s", rerun.Points)

	all, _ := f.history.ListPoints(context.Background(), "IDX-1", nil, nil)
	assert.Len(t, all, 2)
}

func TestUpdatePointsRejectsDateBeforeGenesis(t *testing.T) {
	f := newCalcFixture()
	f.seedIndex(t, "IDX-1", member("AAPL", "1", "100", "2026-01-05"))
	f.market.setLatest("AAPL", "100")

	_, err := f.svc.UpdatePoints(context.Background(), "IDX-1", day("2026-03-02"))
	require.NoError(t, err)

	// 创世日之前没有可复利的基数，绝不能落一条假创世行
	_, err = f.svc.UpdatePoints(context.Background(), "IDX-1", day("2026-02-02"))
	assert.ErrorIs(t, err, domain.ErrMissingHistoryBase)

	rogue, _ := f.history.GetPoint(context.Background(), "IDX-1", day("2026-02-02"))
	assert.Nil(t, rogue)
	all, _ := f.history.ListPoints(context.Background(), "IDX-1", nil, nil)
	assert.Len(t, all, 1)
}

func TestUpdatePointsWithoutComposition(t *testing.T) {
	f := newCalcFixture()
	require.NoError(t, f.svc.CreateIndex(context.Background(), "IDX-1", "Empty", "", "USD"))

	_, err := f.svc.UpdatePoints(context.Background(), "IDX-1", day("2026-03-02"))
	assert.ErrorIs(t, err, domain.ErrNoComposition)
}

func TestReplaceCompositionRequiresIndex(t *testing.T) {
	f := newCalcFixture()
	err := f.svc.ReplaceComposition(context.Background(), "IDX-MISSING", []domain.IndexComposition{
		member("AAPL", "1", "100", "2026-01-05"),
	})
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestFillMissingHistoryCatchesUp(t *testing.T) {
	f := newCalcFixture()
	f.seedIndex(t, "IDX-1", member("AAPL", "1", "100", "2026-01-05"))

	// 最近点位停在 10 个自然日前
	seedDate := domain.DateOnly(time.Now().UTC()).AddDate(0, 0, -10)
	require.NoError(t, f.history.SavePoint(context.Background(), &domain.IndexHistoryPoint{
		IndexID: "IDX-1", Date: seedDate, Points: d("100"), DailyChange: decimal.Zero,
		Snapshot: domain.CompositionSnapshot{{Ticker: "AAPL", Weight: d("1"), Price: d("100"), EntryPrice: d("100"), EntryDate: day("2026-01-05")}},
	}))
	f.market.setClose("AAPL", dateKey(seedDate), "100")
	f.market.setLatest("AAPL", "110")

	report, err := f.svc.FillMissingHistory(context.Background(), "IDX-1")
	require.NoError(t, err)

	missing := domain.BusinessDaysBetween(seedDate, domain.DateOnly(time.Now().UTC()))
	assert.Equal(t, len(missing), report.Attempted)
	assert.Equal(t, len(missing), report.Filled)
	assert.Empty(t, report.Errors)

	// 收盘价停在 100、实时价 110：每个缺失日都计入 +10% 并逐日复利
	expected := d("100")
	for range missing {
		expected = expected.Mul(d("1.1"))
	}
	latest, _ := f.history.GetLatestPoint(context.Background(), "IDX-1")
	require.NotNil(t, latest)
	assert.Equal(t, domain.DateOnly(missing[len(missing)-1]), latest.Date)
	assert.True(t, latest.Points.Equal(expected), "got %s want %s", latest.Points, expected)
}

func TestFillMissingHistoryContinuesPastFailures(t *testing.T) {
	f := newCalcFixture()
	f.seedIndex(t, "IDX-1", member("AAPL", "1", "100", "2026-01-05"))

	seedDate := domain.DateOnly(time.Now().UTC()).AddDate(0, 0, -7)
	require.NoError(t, f.history.SavePoint(context.Background(), &domain.IndexHistoryPoint{
		IndexID: "IDX-1", Date: seedDate, Points: d("100"), DailyChange: decimal.Zero,
	}))
	f.market.setClose("AAPL", dateKey(seedDate), "100")
	f.market.setLatest("AAPL", "110")

	missing := domain.BusinessDaysBetween(seedDate, domain.DateOnly(time.Now().UTC()))
	require.NotEmpty(t, missing)
	// 第一个缺失日保存失败
	f.history.saveErr[dateKey(missing[0])] = errors.New("mysql down")

	report, err := f.svc.FillMissingHistory(context.Background(), "IDX-1")
	require.NoError(t, err)

	assert.Equal(t, len(missing), report.Attempted)
	assert.Equal(t, len(missing)-1, report.Filled)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], dateKey(missing[0]))

	// 失败日之后的日期没有被放弃
	if len(missing) > 1 {
		p, _ := f.history.GetPoint(context.Background(), "IDX-1", missing[1])
		assert.NotNil(t, p)
	}
}

func seedRecalcHistory(t *testing.T, f *calcFixture) {
	t.Helper()
	snapshotAt := func(price string) domain.CompositionSnapshot {
		return domain.CompositionSnapshot{
			{Ticker: "KO", Weight: d("1"), Price: d(price), EntryPrice: d("100"), EntryDate: day("2026-01-05")},
		}
	}
	require.NoError(t, f.history.SavePoint(context.Background(), &domain.IndexHistoryPoint{
		IndexID: "IDX-1", Date: day("2026-03-02"), Points: d("100"), DailyChange: decimal.Zero,
		DividendsReceived: decimal.Zero, Snapshot: snapshotAt("100"),
	}))
	// 除权日：当时没算股息，点位被动跌 2%
	require.NoError(t, f.history.SavePoint(context.Background(), &domain.IndexHistoryPoint{
		IndexID: "IDX-1", Date: day("2026-03-03"), Points: d("98"), DailyChange: d("-2"),
		DividendsReceived: decimal.Zero, Snapshot: snapshotAt("98"),
	}))
	// 次日价格持平
	require.NoError(t, f.history.SavePoint(context.Background(), &domain.IndexHistoryPoint{
		IndexID: "IDX-1", Date: day("2026-03-04"), Points: d("98"), DailyChange: decimal.Zero,
		DividendsReceived: decimal.Zero, Snapshot: snapshotAt("98"),
	}))
}

func TestRecalculateWithLateDividend(t *testing.T) {
	f := newCalcFixture()
	seedRecalcHistory(t, f)
	f.market.setDividend("2026-03-03", "KO", "2")

	report, err := f.svc.RecalculateWithDividends(context.Background(), "IDX-1", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Recalculated)
	assert.Equal(t, 1, report.DividendsFound)
	assert.Empty(t, report.Errors)

	// 除权日收益归零，之后每一天的基数都被抬回来
	exDay, _ := f.history.GetPoint(context.Background(), "IDX-1", day("2026-03-03"))
	assert.True(t, exDay.Points.Equal(d("100")), "got %s", exDay.Points)
	assert.True(t, exDay.DailyChange.IsZero())
	assert.True(t, exDay.DividendsByTicker["KO"].Equal(d("2")))

	after, _ := f.history.GetPoint(context.Background(), "IDX-1", day("2026-03-04"))
	assert.True(t, after.Points.Equal(d("100")), "got %s", after.Points)

	// 创世行不动
	genesis, _ := f.history.GetPoint(context.Background(), "IDX-1", day("2026-03-02"))
	assert.True(t, genesis.Points.Equal(d("100")))
	assert.True(t, genesis.DailyChange.IsZero())
}

func TestRecalculateWindowLocality(t *testing.T) {
	f := newCalcFixture()
	seedRecalcHistory(t, f)
	f.market.setDividend("2026-03-03", "KO", "2")

	// 窗口从 03-04 开始：03-03 保持原样，03-04 基于存量 03-03 重算
	from := day("2026-03-04")
	report, err := f.svc.RecalculateWithDividends(context.Background(), "IDX-1", &from)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Recalculated)

	exDay, _ := f.history.GetPoint(context.Background(), "IDX-1", day("2026-03-03"))
	assert.True(t, exDay.Points.Equal(d("98")), "got %s", exDay.Points)

	after, _ := f.history.GetPoint(context.Background(), "IDX-1", day("2026-03-04"))
	assert.True(t, after.Points.Equal(d("98")), "got %s", after.Points)
}

func TestRecalculateContinuesPastSaveFailure(t *testing.T) {
	f := newCalcFixture()
	seedRecalcHistory(t, f)
	f.market.setDividend("2026-03-03", "KO", "2")
	f.history.saveErr[dateKey(day("2026-03-03"))] = errors.New("mysql down")

	report, err := f.svc.RecalculateWithDividends(context.Background(), "IDX-1", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Recalculated)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "2026-03-03")

	// 后续日期从最后一次成功重算的基数继续，价格连续性取自存量快照
	after, _ := f.history.GetPoint(context.Background(), "IDX-1", day("2026-03-04"))
	assert.True(t, after.Points.Equal(d("100")), "got %s", after.Points)
}
