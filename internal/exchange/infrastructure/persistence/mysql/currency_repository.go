package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
)

type currencyRepository struct {
	db *gorm.DB
}

func NewCurrencyRepository(db *gorm.DB) domain.CurrencyRepository {
	return &currencyRepository{db: db}
}

func (r *currencyRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *currencyRepository) Get(ctx context.Context, currencyID string) (*domain.Currency, error) {
	var currency domain.Currency
	if err := r.getDB(ctx).WithContext(ctx).Where("id_str = ?", currencyID).First(&currency).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCurrencyNotFound
		}
		return nil, err
	}
	return &currency, nil
}

func (r *currencyRepository) List(ctx context.Context) ([]*domain.Currency, error) {
	var currencies []*domain.Currency
	err := r.getDB(ctx).WithContext(ctx).Order("id_str ASC").Find(&currencies).Error
	return currencies, err
}

type methodRepository struct {
	db *gorm.DB
}

func NewMethodRepository(db *gorm.DB) domain.MethodRepository {
	return &methodRepository{db: db}
}

func (r *methodRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *methodRepository) Save(ctx context.Context, method *domain.Method) error {
	return r.getDB(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "method_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "rate", "commission_input_value", "commission_output_value",
			"commission_input_percent", "commission_output_percent",
			"field_schema", "input_field_schema", "is_active", "updated_at",
		}),
	}).Create(method).Error
}

func (r *methodRepository) Get(ctx context.Context, methodID string) (*domain.Method, error) {
	var method domain.Method
	if err := r.getDB(ctx).WithContext(ctx).Where("method_id = ?", methodID).First(&method).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMethodNotFound
		}
		return nil, err
	}
	return &method, nil
}

func (r *methodRepository) ListByCurrency(ctx context.Context, currencyID string) ([]*domain.Method, error) {
	var methods []*domain.Method
	err := r.getDB(ctx).WithContext(ctx).
		Where("currency_id = ? AND is_active = ?", currencyID, true).
		Order("method_id ASC").
		Find(&methods).Error
	return methods, err
}
