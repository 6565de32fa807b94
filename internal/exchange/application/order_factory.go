package application

import (
	"context"
	"fmt"

	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
	"github.com/wyfcoding/p2pexchange/pkg/logger"
	"github.com/wyfcoding/p2pexchange/pkg/metrics"
)

// OrderFactory turns an allocation plan into persisted orders. It consumes
// requisite capacity, realizes flex rates, and releases the claims the
// allocator left on the plan's requisites. Runs inside the caller's
// transaction.
type OrderFactory struct {
	orders     domain.OrderRepository
	requisites domain.RequisiteRepository
	methods    domain.MethodRepository
	rateSource domain.RateSource
	notifier   domain.Notifier
	metrics    *metrics.Metrics
}

func NewOrderFactory(
	orders domain.OrderRepository,
	requisites domain.RequisiteRepository,
	methods domain.MethodRepository,
	rateSource domain.RateSource,
	notifier domain.Notifier,
	m *metrics.Metrics,
) *OrderFactory {
	return &OrderFactory{
		orders:     orders,
		requisites: requisites,
		methods:    methods,
		rateSource: rateSource,
		notifier:   notifier,
		metrics:    m,
	}
}

// CreateFromPlan builds one order per allocation. The plan's claims are
// released on every path out, success or failure; failed creations roll
// back with the surrounding transaction.
func (f *OrderFactory) CreateFromPlan(ctx context.Context, req *domain.Request, currency *domain.Currency, typ domain.OrderType, plan *domain.Plan) ([]*domain.Order, error) {
	defer func() {
		for _, alloc := range plan.Allocations {
			if err := f.requisites.Release(ctx, alloc.Requisite.RequisiteID); err != nil {
				logger.Error(ctx, "requisite claim release failed",
					"requisite_id", alloc.Requisite.RequisiteID, "error", err)
			}
		}
	}()

	orders := make([]*domain.Order, 0, len(plan.Allocations))
	for _, alloc := range plan.Allocations {
		requisite := alloc.Requisite
		rate := requisite.Rate
		if requisite.IsFlex {
			realized, err := f.rateSource.Rate(ctx, currency.IDStr)
			if err != nil {
				return nil, fmt.Errorf("realize flex rate for %s: %w", requisite.RequisiteID, err)
			}
			rate = realized
		}
		if err := requisite.Reserve(alloc.CurrencyValue, alloc.Value); err != nil {
			return nil, fmt.Errorf("reserve requisite %s: %w", requisite.RequisiteID, err)
		}
		if err := f.requisites.Save(ctx, requisite); err != nil {
			return nil, fmt.Errorf("save requisite %s: %w", requisite.RequisiteID, err)
		}
		method, err := f.methods.Get(ctx, requisite.MethodID)
		if err != nil {
			return nil, fmt.Errorf("load method %s: %w", requisite.MethodID, err)
		}
		order := &domain.Order{
			OrderID:           fmt.Sprintf("ORD-%d", idgen.GenID()),
			RequestID:         req.RequestID,
			RequisiteID:       requisite.RequisiteID,
			Type:              typ,
			State:             domain.OrderStateWaiting,
			WalletID:          req.WalletID,
			RequisiteWalletID: requisite.WalletID,
			MethodID:          requisite.MethodID,
			CurrencyID:        currency.IDStr,
			Rate:              rate,
			CurrencyValue:     alloc.CurrencyValue,
			Value:             alloc.Value,
			// frozen copies, later requisite or method edits stay out
			RequisiteFields:  requisite.FieldValues,
			InputFieldSchema: method.InputFieldSchema,
		}
		if err := f.orders.Save(ctx, order); err != nil {
			return nil, fmt.Errorf("save order: %w", err)
		}
		if err := f.notifier.Notify(ctx, &domain.Notification{
			Kind:     domain.NotifyOrderCreated,
			WalletID: requisite.WalletID,
			Payload: map[string]interface{}{
				"order_id":       order.OrderID,
				"request_id":     req.RequestID,
				"type":           string(typ),
				"currency_value": order.CurrencyValue.String(),
				"value":          order.Value.String(),
			},
		}); err != nil {
			return nil, err
		}
		if f.metrics != nil {
			f.metrics.OrdersCreatedTotal.Inc()
		}
		orders = append(orders, order)
		logger.Info(ctx, "order created",
			"order_id", order.OrderID,
			"request_id", req.RequestID,
			"requisite_id", requisite.RequisiteID,
			"type", string(typ),
			"currency_value", order.CurrencyValue.String(),
			"value", order.Value.String())
	}
	return orders, nil
}
