// Package mysql 行情读模型 MySQL 仓储实现
package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/marketindex/internal/marketdata/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuoteRepositoryImpl struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) domain.QuoteRepository {
	return &QuoteRepositoryImpl{db: db}
}

func (r *QuoteRepositoryImpl) Save(ctx context.Context, quote *domain.Quote) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticker"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "trailing_yield", "timestamp", "source", "updated_at"}),
	}).Create(quote).Error
}

func (r *QuoteRepositoryImpl) GetLatest(ctx context.Context, ticker string) (*domain.Quote, error) {
	var quote domain.Quote
	err := r.db.WithContext(ctx).Where("ticker = ?", ticker).First(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *QuoteRepositoryImpl) GetLatestBatch(ctx context.Context, tickers []string) (map[string]*domain.Quote, error) {
	var quotes []*domain.Quote
	if err := r.db.WithContext(ctx).Where("ticker IN ?", tickers).Find(&quotes).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*domain.Quote, len(quotes))
	for _, q := range quotes {
		out[q.Ticker] = q
	}
	return out, nil
}

type DailyCloseRepositoryImpl struct {
	db *gorm.DB
}

func NewDailyCloseRepository(db *gorm.DB) domain.DailyCloseRepository {
	return &DailyCloseRepositoryImpl{db: db}
}

func (r *DailyCloseRepositoryImpl) Save(ctx context.Context, close *domain.DailyClose) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticker"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"close", "updated_at"}),
	}).Create(close).Error
}

func (r *DailyCloseRepositoryImpl) GetCloseAsOf(ctx context.Context, ticker string, date time.Time) (*domain.DailyClose, error) {
	var close domain.DailyClose
	err := r.db.WithContext(ctx).
		Where("ticker = ? AND date <= ?", ticker, date.Format("2006-01-02")).
		Order("date DESC").
		First(&close).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &close, nil
}

type DividendRepositoryImpl struct {
	db *gorm.DB
}

func NewDividendRepository(db *gorm.DB) domain.DividendRepository {
	return &DividendRepositoryImpl{db: db}
}

func (r *DividendRepositoryImpl) Save(ctx context.Context, event *domain.DividendEvent) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticker"}, {Name: "ex_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(event).Error
}

func (r *DividendRepositoryImpl) GetByExDate(ctx context.Context, tickers []string, exDate time.Time) ([]*domain.DividendEvent, error) {
	var events []*domain.DividendEvent
	err := r.db.WithContext(ctx).
		Where("ticker IN ? AND ex_date = ?", tickers, exDate.Format("2006-01-02")).
		Find(&events).Error
	return events, err
}
