package application

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/marketindex/internal/index/domain"
)

// 内存假仓储，仅供测试

type fakeIndexRepo struct {
	defs map[string]*domain.IndexDefinition
}

func newFakeIndexRepo() *fakeIndexRepo {
	return &fakeIndexRepo{defs: map[string]*domain.IndexDefinition{}}
}

func (r *fakeIndexRepo) Save(_ context.Context, def *domain.IndexDefinition) error {
	r.defs[def.IndexID] = def
	return nil
}

func (r *fakeIndexRepo) GetByIndexID(_ context.Context, indexID string) (*domain.IndexDefinition, error) {
	def, ok := r.defs[indexID]
	if !ok {
		return nil, domain.ErrIndexNotFound
	}
	return def, nil
}

func (r *fakeIndexRepo) List(_ context.Context) ([]*domain.IndexDefinition, error) {
	out := make([]*domain.IndexDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndexID < out[j].IndexID })
	return out, nil
}

type fakeCompositionRepo struct {
	members map[string][]domain.IndexComposition
}

func newFakeCompositionRepo() *fakeCompositionRepo {
	return &fakeCompositionRepo{members: map[string][]domain.IndexComposition{}}
}

func (r *fakeCompositionRepo) GetComposition(_ context.Context, indexID string) ([]domain.IndexComposition, error) {
	return r.members[indexID], nil
}

func (r *fakeCompositionRepo) ReplaceComposition(_ context.Context, indexID string, members []domain.IndexComposition) error {
	r.members[indexID] = members
	return nil
}

type fakeHistoryRepo struct {
	points  map[string]map[string]*domain.IndexHistoryPoint // indexID -> date -> point
	saveErr map[string]error                                // date -> 注入的保存失败
	saves   int
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{
		points:  map[string]map[string]*domain.IndexHistoryPoint{},
		saveErr: map[string]error{},
	}
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

func (r *fakeHistoryRepo) SavePoint(_ context.Context, point *domain.IndexHistoryPoint) error {
	if err := r.saveErr[dateKey(point.Date)]; err != nil {
		return err
	}
	if r.points[point.IndexID] == nil {
		r.points[point.IndexID] = map[string]*domain.IndexHistoryPoint{}
	}
	r.points[point.IndexID][dateKey(point.Date)] = point
	r.saves++
	return nil
}

func (r *fakeHistoryRepo) GetPoint(_ context.Context, indexID string, date time.Time) (*domain.IndexHistoryPoint, error) {
	return r.points[indexID][dateKey(date)], nil
}

func (r *fakeHistoryRepo) GetLatestPoint(ctx context.Context, indexID string) (*domain.IndexHistoryPoint, error) {
	all, _ := r.ListPoints(ctx, indexID, nil, nil)
	if len(all) == 0 {
		return nil, nil
	}
	return all[len(all)-1], nil
}

func (r *fakeHistoryRepo) GetPointBefore(ctx context.Context, indexID string, date time.Time) (*domain.IndexHistoryPoint, error) {
	all, _ := r.ListPoints(ctx, indexID, nil, nil)
	var prev *domain.IndexHistoryPoint
	for _, p := range all {
		if p.Date.Before(domain.DateOnly(date)) {
			prev = p
		}
	}
	return prev, nil
}

func (r *fakeHistoryRepo) ListPoints(_ context.Context, indexID string, from, to *time.Time) ([]*domain.IndexHistoryPoint, error) {
	out := make([]*domain.IndexHistoryPoint, 0, len(r.points[indexID]))
	for _, p := range r.points[indexID] {
		if from != nil && p.Date.Before(domain.DateOnly(*from)) {
			continue
		}
		if to != nil && p.Date.After(domain.DateOnly(*to)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// fakeMarket 同时充当行情网关与股息事件源
type fakeMarket struct {
	latest    map[string]domain.PriceQuote
	closes    map[string]map[string]decimal.Decimal // ticker -> date -> close
	yields    map[string]decimal.Decimal
	dividends map[string]map[string]decimal.Decimal // date -> ticker -> amount
	pricesErr error
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		latest:    map[string]domain.PriceQuote{},
		closes:    map[string]map[string]decimal.Decimal{},
		yields:    map[string]decimal.Decimal{},
		dividends: map[string]map[string]decimal.Decimal{},
	}
}

func (m *fakeMarket) setLatest(ticker, price string) {
	m.latest[ticker] = domain.PriceQuote{Price: decimal.RequireFromString(price), AsOf: time.Now()}
}

func (m *fakeMarket) setClose(ticker, date, price string) {
	if m.closes[ticker] == nil {
		m.closes[ticker] = map[string]decimal.Decimal{}
	}
	m.closes[ticker][date] = decimal.RequireFromString(price)
}

func (m *fakeMarket) setDividend(date, ticker, amount string) {
	if m.dividends[date] == nil {
		m.dividends[date] = map[string]decimal.Decimal{}
	}
	m.dividends[date][ticker] = decimal.RequireFromString(amount)
}

func (m *fakeMarket) GetLatestPrices(_ context.Context, tickers []string) (map[string]domain.PriceQuote, error) {
	if m.pricesErr != nil {
		return nil, m.pricesErr
	}
	out := map[string]domain.PriceQuote{}
	for _, t := range tickers {
		if q, ok := m.latest[t]; ok {
			out[t] = q
		}
	}
	return out, nil
}

func (m *fakeMarket) GetPriceAsOf(_ context.Context, ticker string, date time.Time) (*decimal.Decimal, error) {
	var best *decimal.Decimal
	var bestDate string
	limit := dateKey(domain.DateOnly(date))
	for d, price := range m.closes[ticker] {
		if d <= limit && d >= bestDate {
			p := price
			best = &p
			bestDate = d
		}
	}
	return best, nil
}

func (m *fakeMarket) GetTrailingYield(_ context.Context, ticker string) (*decimal.Decimal, error) {
	if y, ok := m.yields[ticker]; ok {
		return &y, nil
	}
	return nil, nil
}

func (m *fakeMarket) GetDividends(_ context.Context, tickers []string, exDate time.Time) (map[string]decimal.Decimal, error) {
	byTicker := m.dividends[dateKey(domain.DateOnly(exDate))]
	out := map[string]decimal.Decimal{}
	for _, t := range tickers {
		if amount, ok := byTicker[t]; ok {
			out[t] = amount
		}
	}
	return out, nil
}

type publishedEvent struct {
	topic string
	key   string
}

type fakePublisher struct {
	events []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, _ any) error {
	p.events = append(p.events, publishedEvent{topic: topic, key: key})
	return nil
}

type fakePointCache struct {
	latest map[string]*domain.IndexHistoryPoint
}

func newFakePointCache() *fakePointCache {
	return &fakePointCache{latest: map[string]*domain.IndexHistoryPoint{}}
}

func (c *fakePointCache) Save(_ context.Context, point *domain.IndexHistoryPoint) error {
	c.latest[point.IndexID] = point
	return nil
}

func (c *fakePointCache) GetLatest(_ context.Context, indexID string) (*domain.IndexHistoryPoint, error) {
	return c.latest[indexID], nil
}

func (c *fakePointCache) Invalidate(_ context.Context, indexID string) error {
	delete(c.latest, indexID)
	return nil
}
