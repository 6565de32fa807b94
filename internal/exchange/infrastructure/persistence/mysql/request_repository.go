package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
)

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) domain.RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *requestRepository) Save(ctx context.Context, request *domain.Request) error {
	return r.getDB(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "request_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"state", "input_rate", "output_rate",
			"input_currency_value", "input_value",
			"output_currency_value", "output_value", "commission",
			"pending_currency_value", "pending_value",
			"output_field_values", "rate_fixed_until",
			"activated_at", "completed_at", "updated_at",
		}),
	}).Create(request).Error
}

func (r *requestRepository) Get(ctx context.Context, requestID string) (*domain.Request, error) {
	var request domain.Request
	if err := r.getDB(ctx).WithContext(ctx).Where("request_id = ?", requestID).First(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	return &request, nil
}

func (r *requestRepository) ListByWallet(ctx context.Context, walletID string, states []string) ([]*domain.Request, error) {
	db := r.getDB(ctx).WithContext(ctx).Where("wallet_id = ?", walletID)
	if len(states) > 0 {
		db = db.Where("state IN ?", states)
	}
	var requests []*domain.Request
	err := db.Order("id DESC").Find(&requests).Error
	return requests, err
}

func (r *requestRepository) ListByState(ctx context.Context, states []string, limit int) ([]*domain.Request, error) {
	if limit <= 0 {
		limit = 100
	}
	var requests []*domain.Request
	err := r.getDB(ctx).WithContext(ctx).
		Where("state IN ?", states).
		Order("id ASC").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}
