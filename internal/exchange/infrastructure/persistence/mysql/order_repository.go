package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
)

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) domain.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *orderRepository) Save(ctx context.Context, order *domain.Order) error {
	return r.getDB(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"state", "currency_value", "value", "commission", "ban_id",
			"confirmation_fields", "paid_at", "completed_at", "updated_at",
		}),
	}).Create(order).Error
}

func (r *orderRepository) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	if err := r.getDB(ctx).WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := r.getDB(ctx).WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("id ASC").
		Find(&orders).Error
	return orders, err
}

func (r *orderRepository) ListByRequisiteWallet(ctx context.Context, walletID string, states []string) ([]*domain.Order, error) {
	db := r.getDB(ctx).WithContext(ctx).Where("requisite_wallet_id = ?", walletID)
	if len(states) > 0 {
		db = db.Where("state IN ?", states)
	}
	var orders []*domain.Order
	err := db.Order("id DESC").Find(&orders).Error
	return orders, err
}

func (r *orderRepository) ListLive(ctx context.Context, requestID string) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := r.getDB(ctx).WithContext(ctx).
		Where("request_id = ? AND state NOT IN ?", requestID,
			[]string{domain.OrderStateCompleted, domain.OrderStateCanceled}).
		Order("id ASC").
		Find(&orders).Error
	return orders, err
}
