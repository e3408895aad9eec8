package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/marketindex/internal/index/domain"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IndexRepositoryImpl struct {
	db *gorm.DB
}

func NewIndexRepository(db *gorm.DB) domain.IndexRepository {
	return &IndexRepositoryImpl{db: db}
}

func (r *IndexRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *IndexRepositoryImpl) Save(ctx context.Context, def *domain.IndexDefinition) error {
	return r.getDB(ctx).Save(def).Error
}

func (r *IndexRepositoryImpl) GetByIndexID(ctx context.Context, indexID string) (*domain.IndexDefinition, error) {
	var def domain.IndexDefinition
	err := r.getDB(ctx).Where("index_id = ?", indexID).First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrIndexNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *IndexRepositoryImpl) List(ctx context.Context) ([]*domain.IndexDefinition, error) {
	var defs []*domain.IndexDefinition
	err := r.getDB(ctx).Order("index_id ASC").Find(&defs).Error
	return defs, err
}

type CompositionRepositoryImpl struct {
	db *gorm.DB
}

func NewCompositionRepository(db *gorm.DB) domain.CompositionRepository {
	return &CompositionRepositoryImpl{db: db}
}

func (r *CompositionRepositoryImpl) GetComposition(ctx context.Context, indexID string) ([]domain.IndexComposition, error) {
	var members []domain.IndexComposition
	err := r.db.WithContext(ctx).Where("index_id = ?", indexID).Order("ticker ASC").Find(&members).Error
	return members, err
}

// ReplaceComposition 整体替换成分，事务内先删后建。
// 成分选择逻辑在外部再平衡系统，这里只是存储。
func (r *CompositionRepositoryImpl) ReplaceComposition(ctx context.Context, indexID string, members []domain.IndexComposition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("index_id = ?", indexID).Delete(&domain.IndexComposition{}).Error; err != nil {
			return err
		}
		for i := range members {
			members[i].IndexID = indexID
			members[i].EntryDate = domain.DateOnly(members[i].EntryDate)
		}
		if len(members) == 0 {
			return nil
		}
		return tx.Create(&members).Error
	})
}

type HistoryRepositoryImpl struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) domain.HistoryRepository {
	return &HistoryRepositoryImpl{db: db}
}

func (r *HistoryRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

// SavePoint (index_id, date) 冲突时覆盖全部值列。同样的输入重复写幂等，
// 迟到股息触发的重算整行替换，不会只改部分字段。
func (r *HistoryRepositoryImpl) SavePoint(ctx context.Context, point *domain.IndexHistoryPoint) error {
	model, err := toHistoryPointModel(point)
	if err != nil {
		return err
	}
	return r.getDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "index_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"points", "daily_change", "current_yield",
			"dividends_received", "dividends_by_ticker", "snapshot", "updated_at",
		}),
	}).Create(model).Error
}

func (r *HistoryRepositoryImpl) GetPoint(ctx context.Context, indexID string, date time.Time) (*domain.IndexHistoryPoint, error) {
	var model HistoryPointModel
	err := r.getDB(ctx).
		Where("index_id = ? AND date = ?", indexID, date.Format("2006-01-02")).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toHistoryPoint(&model)
}

func (r *HistoryRepositoryImpl) GetLatestPoint(ctx context.Context, indexID string) (*domain.IndexHistoryPoint, error) {
	var model HistoryPointModel
	err := r.getDB(ctx).
		Where("index_id = ?", indexID).
		Order("date DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toHistoryPoint(&model)
}

func (r *HistoryRepositoryImpl) GetPointBefore(ctx context.Context, indexID string, date time.Time) (*domain.IndexHistoryPoint, error) {
	var model HistoryPointModel
	err := r.getDB(ctx).
		Where("index_id = ? AND date < ?", indexID, date.Format("2006-01-02")).
		Order("date DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toHistoryPoint(&model)
}

func (r *HistoryRepositoryImpl) ListPoints(ctx context.Context, indexID string, from, to *time.Time) ([]*domain.IndexHistoryPoint, error) {
	query := r.getDB(ctx).Where("index_id = ?", indexID)
	if from != nil {
		query = query.Where("date >= ?", from.Format("2006-01-02"))
	}
	if to != nil {
		query = query.Where("date <= ?", to.Format("2006-01-02"))
	}
	var models []HistoryPointModel
	if err := query.Order("date ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	points := make([]*domain.IndexHistoryPoint, 0, len(models))
	for i := range models {
		p, err := toHistoryPoint(&models[i])
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}
