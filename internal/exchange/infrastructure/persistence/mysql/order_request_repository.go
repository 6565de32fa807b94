package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
)

type orderRequestRepository struct {
	db *gorm.DB
}

func NewOrderRequestRepository(db *gorm.DB) domain.OrderRequestRepository {
	return &orderRequestRepository{db: db}
}

func (r *orderRequestRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *orderRequestRepository) Save(ctx context.Context, orderRequest *domain.OrderRequest) error {
	return r.getDB(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_request_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "resolved_at", "updated_at"}),
	}).Create(orderRequest).Error
}

func (r *orderRequestRepository) Get(ctx context.Context, orderRequestID string) (*domain.OrderRequest, error) {
	var orderRequest domain.OrderRequest
	if err := r.getDB(ctx).WithContext(ctx).Where("order_request_id = ?", orderRequestID).First(&orderRequest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderRequestNotFound
		}
		return nil, err
	}
	return &orderRequest, nil
}

func (r *orderRequestRepository) GetPending(ctx context.Context, orderID string) (*domain.OrderRequest, error) {
	var orderRequest domain.OrderRequest
	err := r.getDB(ctx).WithContext(ctx).
		Where("order_id = ? AND state = ?", orderID, domain.OrderRequestStateWait).
		First(&orderRequest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderRequestNotFound
		}
		return nil, err
	}
	return &orderRequest, nil
}

func (r *orderRequestRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.OrderRequest, error) {
	var orderRequests []*domain.OrderRequest
	err := r.getDB(ctx).WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&orderRequests).Error
	return orderRequests, err
}
