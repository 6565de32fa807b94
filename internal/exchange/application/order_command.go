package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
	"github.com/wyfcoding/p2pexchange/pkg/db"
	"github.com/wyfcoding/p2pexchange/pkg/logger"
	"github.com/wyfcoding/p2pexchange/pkg/metrics"
)

// OrderCommandService settles individual orders. Every transition checks
// the caller owns the side allowed to make it, moves funds through the
// ledger where due, and re-evaluates the parent request leg.
type OrderCommandService struct {
	db            *db.DB
	orders        domain.OrderRepository
	requests      domain.RequestRepository
	requisites    domain.RequisiteRepository
	methods       domain.MethodRepository
	orderRequests domain.OrderRequestRepository
	engine        *Engine
	ledger        domain.Ledger
	notifier      domain.Notifier
	actions       domain.ActionLogger
	metrics       *metrics.Metrics
}

func NewOrderCommandService(
	database *db.DB,
	orders domain.OrderRepository,
	requests domain.RequestRepository,
	requisites domain.RequisiteRepository,
	methods domain.MethodRepository,
	orderRequests domain.OrderRequestRepository,
	engine *Engine,
	ledger domain.Ledger,
	notifier domain.Notifier,
	actions domain.ActionLogger,
	m *metrics.Metrics,
) *OrderCommandService {
	return &OrderCommandService{
		db:            database,
		orders:        orders,
		requests:      requests,
		requisites:    requisites,
		methods:       methods,
		orderRequests: orderRequests,
		engine:        engine,
		ledger:        ledger,
		notifier:      notifier,
		actions:       actions,
		metrics:       m,
	}
}

func (s *OrderCommandService) getOwned(ctx context.Context, walletID, orderID string) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.WalletID != walletID && order.RequisiteWalletID != walletID {
		return nil, domain.ErrPermissionDenied
	}
	return order, nil
}

// Confirm records the payer's proof of payment and hands the order to the
// receiving side for acknowledgement.
func (s *OrderCommandService) Confirm(ctx context.Context, walletID, orderID, fields string) (*domain.Order, error) {
	var order *domain.Order
	err := s.db.Transact(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.getOwned(ctx, walletID, orderID)
		if err != nil {
			return err
		}
		if walletID != order.PayerWalletID() {
			return domain.ErrPermissionDenied
		}
		if err := order.Confirm(ctx, fields); err != nil {
			return err
		}
		if err := s.notifyCounterparty(ctx, order, domain.NotifyOrderConfirmed, walletID); err != nil {
			return err
		}
		if err := s.actions.Record(ctx, walletID, "order.confirm", "order", orderID, ""); err != nil {
			return err
		}
		s.countTransition(order.State)
		return s.orders.Save(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Complete finalizes the order once the receiving side acknowledges the
// funds arrived. Value settles between the wallets, commission is charged
// on input orders, and the parent request leg is re-evaluated in the same
// transaction.
func (s *OrderCommandService) Complete(ctx context.Context, walletID, orderID string) (*domain.Order, error) {
	var order *domain.Order
	err := s.db.Transact(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.getOwned(ctx, walletID, orderID)
		if err != nil {
			return err
		}
		if walletID != order.ReceiverWalletID() {
			return domain.ErrPermissionDenied
		}
		if err := order.Complete(ctx); err != nil {
			return err
		}
		if err := s.settle(ctx, order); err != nil {
			return err
		}
		if err := s.notifyCounterparty(ctx, order, domain.NotifyOrderCompleted, walletID); err != nil {
			return err
		}
		if err := s.actions.Record(ctx, walletID, "order.complete", "order", orderID, ""); err != nil {
			return err
		}
		s.countTransition(order.State)
		if err := s.orders.Save(ctx, order); err != nil {
			return err
		}
		return s.engine.ReevaluateLeg(ctx, order.RequestID)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// settle moves the order's value. Input orders pay the request wallet from
// the requisite wallet and charge commission; output orders consume the
// ban placed at payment time.
func (s *OrderCommandService) settle(ctx context.Context, order *domain.Order) error {
	switch order.Type {
	case domain.OrderTypeInput:
		if _, err := s.ledger.Transfer(ctx, order.RequisiteWalletID, order.WalletID, order.Value, "",
			fmt.Sprintf("input settlement for order %s", order.OrderID)); err != nil {
			return err
		}
		method, err := s.methods.Get(ctx, order.MethodID)
		if err != nil {
			return err
		}
		commission := method.CommissionValue(domain.OrderTypeInput, order.Value)
		if commission.Sign() > 0 {
			if _, err := s.ledger.Charge(ctx, order.WalletID, commission,
				fmt.Sprintf("commission for order %s", order.OrderID)); err != nil {
				return err
			}
			order.Commission = commission
		}
	case domain.OrderTypeOutput:
		if _, err := s.ledger.Transfer(ctx, order.WalletID, order.RequisiteWalletID, order.Value, order.BanID,
			fmt.Sprintf("output settlement for order %s", order.OrderID)); err != nil {
			return err
		}
	}
	return nil
}

// Cancel aborts a live order at the holder's request. The slice returns to
// the parent request's unmatched amounts and the requisite regains its
// capacity.
func (s *OrderCommandService) Cancel(ctx context.Context, walletID, orderID, reason string) error {
	return s.db.Transact(ctx, func(ctx context.Context) error {
		order, err := s.getOwned(ctx, walletID, orderID)
		if err != nil {
			return err
		}
		if _, err := s.orderRequests.GetPending(ctx, orderID); err == nil {
			return domain.ErrOrderRequestPending
		} else if !errors.Is(err, domain.ErrOrderRequestNotFound) {
			return err
		}
		if err := s.cancelSlice(ctx, order, domain.CanceledOneSided, reason); err != nil {
			return err
		}
		if err := s.actions.Record(ctx, walletID, "order.cancel", "order", orderID, reason); err != nil {
			return err
		}
		req, err := s.requests.Get(ctx, order.RequestID)
		if err != nil {
			return err
		}
		if !req.IsTerminal() {
			req.PendingCurrencyValue = req.PendingCurrencyValue.Add(order.CurrencyValue)
			req.PendingValue = req.PendingValue.Add(order.Value)
			if err := s.requests.Save(ctx, req); err != nil {
				return err
			}
		}
		return s.engine.ReevaluateLeg(ctx, order.RequestID)
	})
}

// cancelSlice cancels one order and undoes its side effects: the ban on
// the payout backing lifts and the requisite's capacity is restored.
func (s *OrderCommandService) cancelSlice(ctx context.Context, order *domain.Order, canceledBy, reason string) error {
	if err := order.Cancel(ctx); err != nil {
		return err
	}
	order.CanceledReason = canceledBy
	if order.BanID != "" {
		if err := s.ledger.ReleaseBan(ctx, order.BanID); err != nil {
			return err
		}
		order.BanID = ""
	}
	requisite, err := s.requisites.Get(ctx, order.RequisiteID)
	if err == nil {
		requisite.Restore(order.CurrencyValue, order.Value)
		if err := s.requisites.Save(ctx, requisite); err != nil {
			return err
		}
	} else if !errors.Is(err, domain.ErrRequisiteNotFound) {
		return err
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return err
	}
	s.countTransition(order.State)
	logger.Info(ctx, "order canceled", "order_id", order.OrderID, "reason", reason)
	return s.notifier.Notify(ctx, &domain.Notification{
		Kind:     domain.NotifyOrderCanceled,
		WalletID: order.RequisiteWalletID,
		Payload: map[string]interface{}{
			"order_id": order.OrderID,
			"reason":   reason,
		},
	})
}

func (s *OrderCommandService) notifyCounterparty(ctx context.Context, order *domain.Order, kind, actorWalletID string) error {
	target := order.WalletID
	if actorWalletID == order.WalletID {
		target = order.RequisiteWalletID
	}
	return s.notifier.Notify(ctx, &domain.Notification{
		Kind:     kind,
		WalletID: target,
		Payload: map[string]interface{}{
			"order_id": order.OrderID,
			"state":    order.State,
		},
	})
}

func (s *OrderCommandService) countTransition(state string) {
	if s.metrics != nil {
		s.metrics.OrderTransitionsTotal.WithLabelValues(state).Inc()
	}
}
