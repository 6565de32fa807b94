package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
	"github.com/wyfcoding/p2pexchange/pkg/db"
	"github.com/wyfcoding/p2pexchange/pkg/logger"
)

// CreateOrderRequestCommand proposes an amendment to a live order.
type CreateOrderRequestCommand struct {
	WalletID      string
	OrderID       string
	Type          domain.OrderRequestType
	CurrencyValue decimal.Decimal
	Reason        string
}

// OrderRequestCommandService runs the amendment protocol: one side
// proposes, the other resolves, at most one pending proposal per order.
type OrderRequestCommandService struct {
	db            *db.DB
	orderRequests domain.OrderRequestRepository
	orders        domain.OrderRepository
	requests      domain.RequestRepository
	requisites    domain.RequisiteRepository
	currencies    domain.CurrencyRepository
	blacklist     domain.BlacklistRepository
	ordersvc      *OrderCommandService
	engine        *Engine
	notifier      domain.Notifier
	actions       domain.ActionLogger
}

func NewOrderRequestCommandService(
	database *db.DB,
	orderRequests domain.OrderRequestRepository,
	orders domain.OrderRepository,
	requests domain.RequestRepository,
	requisites domain.RequisiteRepository,
	currencies domain.CurrencyRepository,
	blacklist domain.BlacklistRepository,
	ordersvc *OrderCommandService,
	engine *Engine,
	notifier domain.Notifier,
	actions domain.ActionLogger,
) *OrderRequestCommandService {
	return &OrderRequestCommandService{
		db:            database,
		orderRequests: orderRequests,
		orders:        orders,
		requests:      requests,
		requisites:    requisites,
		currencies:    currencies,
		blacklist:     blacklist,
		ordersvc:      ordersvc,
		engine:        engine,
		notifier:      notifier,
		actions:       actions,
	}
}

// Create raises an amendment. The order must be live and free of pending
// amendments.
func (s *OrderRequestCommandService) Create(ctx context.Context, cmd CreateOrderRequestCommand) (*domain.OrderRequest, error) {
	switch cmd.Type {
	case domain.OrderRequestCancel, domain.OrderRequestRecreate, domain.OrderRequestUpdateValue:
	default:
		return nil, domain.ErrAmendmentNotApprovable
	}
	var orderRequest *domain.OrderRequest
	err := s.db.Transact(ctx, func(ctx context.Context) error {
		order, err := s.orders.Get(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if order.WalletID != cmd.WalletID && order.RequisiteWalletID != cmd.WalletID {
			return domain.ErrPermissionDenied
		}
		if order.IsTerminal() {
			return domain.NewStateError("order", order.OrderID, "live", order.State)
		}
		if _, err := s.orderRequests.GetPending(ctx, cmd.OrderID); err == nil {
			return domain.ErrOrderRequestPending
		} else if !errors.Is(err, domain.ErrOrderRequestNotFound) {
			return err
		}

		orderRequest = &domain.OrderRequest{
			OrderRequestID:   fmt.Sprintf("ORQ-%d", idgen.GenID()),
			OrderID:          cmd.OrderID,
			Type:             cmd.Type,
			State:            domain.OrderRequestStateWait,
			ProposerWalletID: cmd.WalletID,
			Reason:           cmd.Reason,
		}
		if cmd.Type == domain.OrderRequestUpdateValue {
			cv, value, err := s.amendedAmounts(ctx, order, cmd.CurrencyValue)
			if err != nil {
				return err
			}
			orderRequest.CurrencyValue = cv
			orderRequest.Value = value
		}
		if err := s.orderRequests.Save(ctx, orderRequest); err != nil {
			return err
		}
		if err := s.actions.Record(ctx, cmd.WalletID, "order_request.create", "order_request",
			orderRequest.OrderRequestID, string(cmd.Type)); err != nil {
			return err
		}
		target := order.WalletID
		if cmd.WalletID == order.WalletID {
			target = order.RequisiteWalletID
		}
		return s.notifier.Notify(ctx, &domain.Notification{
			Kind:     domain.NotifyAmendmentRaised,
			WalletID: target,
			Payload: map[string]interface{}{
				"order_request_id": orderRequest.OrderRequestID,
				"order_id":         cmd.OrderID,
				"type":             string(cmd.Type),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return orderRequest, nil
}

// amendedAmounts validates the UPDATE_VALUE target and derives its value
// at the order's frozen rate.
func (s *OrderRequestCommandService) amendedAmounts(ctx context.Context, order *domain.Order, target decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	currency, err := s.currencies.Get(ctx, order.CurrencyID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	cv := domain.SnapToDiv(target, currency.Div)
	if cv.Sign() <= 0 || cv.Equal(order.CurrencyValue) {
		return decimal.Zero, decimal.Zero, domain.ErrAmendmentNotApprovable
	}
	value, err := domain.ValueFromCurrency(cv, order.Rate, currency.RateDecimal, order.Type)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if value.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, domain.ErrAmendmentNotApprovable
	}
	return cv, value, nil
}

// Approve accepts the amendment and applies its effect. Only the side that
// did not propose may approve.
func (s *OrderRequestCommandService) Approve(ctx context.Context, walletID, orderRequestID string) error {
	return s.db.Transact(ctx, func(ctx context.Context) error {
		orderRequest, err := s.orderRequests.Get(ctx, orderRequestID)
		if err != nil {
			return err
		}
		order, err := s.orders.Get(ctx, orderRequest.OrderID)
		if err != nil {
			return err
		}
		if err := s.checkResolver(walletID, order, orderRequest); err != nil {
			return err
		}
		if err := orderRequest.Approve(ctx); err != nil {
			return err
		}
		switch orderRequest.Type {
		case domain.OrderRequestCancel:
			err = s.applyCancel(ctx, order, false)
		case domain.OrderRequestRecreate:
			err = s.applyCancel(ctx, order, true)
		case domain.OrderRequestUpdateValue:
			err = s.applyUpdateValue(ctx, order, orderRequest)
		default:
			err = domain.ErrAmendmentNotApprovable
		}
		if err != nil {
			return err
		}
		if err := s.orderRequests.Save(ctx, orderRequest); err != nil {
			return err
		}
		if err := s.actions.Record(ctx, walletID, "order_request.approve", "order_request",
			orderRequestID, string(orderRequest.Type)); err != nil {
			return err
		}
		return s.notifyResolution(ctx, order, orderRequest)
	})
}

// Reject declines the amendment and leaves the order untouched.
func (s *OrderRequestCommandService) Reject(ctx context.Context, walletID, orderRequestID string) error {
	return s.db.Transact(ctx, func(ctx context.Context) error {
		orderRequest, err := s.orderRequests.Get(ctx, orderRequestID)
		if err != nil {
			return err
		}
		order, err := s.orders.Get(ctx, orderRequest.OrderID)
		if err != nil {
			return err
		}
		if err := s.checkResolver(walletID, order, orderRequest); err != nil {
			return err
		}
		if err := orderRequest.Reject(ctx); err != nil {
			return err
		}
		if err := s.orderRequests.Save(ctx, orderRequest); err != nil {
			return err
		}
		if err := s.actions.Record(ctx, walletID, "order_request.reject", "order_request",
			orderRequestID, string(orderRequest.Type)); err != nil {
			return err
		}
		return s.notifyResolution(ctx, order, orderRequest)
	})
}

func (s *OrderRequestCommandService) checkResolver(walletID string, order *domain.Order, orderRequest *domain.OrderRequest) error {
	if walletID == orderRequest.ProposerWalletID {
		return domain.ErrPermissionDenied
	}
	if walletID != order.WalletID && walletID != order.RequisiteWalletID {
		return domain.ErrPermissionDenied
	}
	return nil
}

// applyCancel cancels the order and sends the slice back through matching.
// A recreate additionally blacklists the requisite for the parent request
// so the slice lands elsewhere.
func (s *OrderRequestCommandService) applyCancel(ctx context.Context, order *domain.Order, blacklist bool) error {
	if order.IsTerminal() {
		return domain.ErrAmendmentNotApprovable
	}
	reason := "cancel approved"
	if blacklist {
		reason = "recreate approved"
	}
	if err := s.ordersvc.cancelSlice(ctx, order, domain.CanceledTwoSided, reason); err != nil {
		return err
	}
	if blacklist {
		if err := s.blacklist.Add(ctx, order.RequestID, order.RequisiteID); err != nil {
			return err
		}
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
}

// applyUpdateValue resizes the order at its frozen rate. A shrink frees
// requisite capacity and returns the difference to matching; a grow eats
// into the request's unmatched remainder and must fit the requisite's
// remaining capacity.
func (s *OrderRequestCommandService) applyUpdateValue(ctx context.Context, order *domain.Order, orderRequest *domain.OrderRequest) error {
	if order.IsTerminal() {
		return domain.ErrAmendmentNotApprovable
	}
	cvDelta := order.CurrencyValue.Sub(orderRequest.CurrencyValue)
	valueDelta := order.Value.Sub(orderRequest.Value)
	if cvDelta.Sign() == 0 {
		return domain.ErrAmendmentNotApprovable
	}
	if cvDelta.Sign() < 0 {
		return s.growOrder(ctx, order, orderRequest, cvDelta.Neg(), valueDelta.Neg())
	}
	order.CurrencyValue = orderRequest.CurrencyValue
	order.Value = orderRequest.Value
	if err := s.orders.Save(ctx, order); err != nil {
		return err
	}

	requisite, err := s.requisites.Get(ctx, order.RequisiteID)
	if err == nil {
		requisite.Restore(cvDelta, valueDelta)
		if err := s.requisites.Save(ctx, requisite); err != nil {
			return err
		}
	} else if !errors.Is(err, domain.ErrRequisiteNotFound) {
		return err
	}

	req, err := s.requests.Get(ctx, order.RequestID)
	if err != nil {
		return err
	}
	if !req.IsTerminal() {
		req.PendingCurrencyValue = req.PendingCurrencyValue.Add(cvDelta)
		req.PendingValue = req.PendingValue.Add(valueDelta)
		if err := s.requests.Save(ctx, req); err != nil {
			return err
		}
		if err := req.Rematch(ctx); err == nil {
			if err := s.requests.Save(ctx, req); err != nil {
				return err
			}
		}
	}
	logger.Info(ctx, "order resized",
		"order_id", order.OrderID,
		"currency_value", order.CurrencyValue.String(),
		"value", order.Value.String())
	return nil
}

// growOrder enlarges the order by the given deltas. The extra slice comes
// out of the request's unmatched remainder and the requisite's remaining
// capacity.
func (s *OrderRequestCommandService) growOrder(ctx context.Context, order *domain.Order, orderRequest *domain.OrderRequest, cvExtra, valueExtra decimal.Decimal) error {
	req, err := s.requests.Get(ctx, order.RequestID)
	if err != nil {
		return err
	}
	if req.IsTerminal() || cvExtra.GreaterThan(req.PendingCurrencyValue) {
		return domain.ErrAmendmentNotApprovable
	}
	requisite, err := s.requisites.Get(ctx, order.RequisiteID)
	if err != nil {
		return err
	}
	if err := requisite.Reserve(cvExtra, valueExtra); err != nil {
		return err
	}
	if err := s.requisites.Save(ctx, requisite); err != nil {
		return err
	}

	order.CurrencyValue = orderRequest.CurrencyValue
	order.Value = orderRequest.Value
	if err := s.orders.Save(ctx, order); err != nil {
		return err
	}

	req.PendingCurrencyValue = req.PendingCurrencyValue.Sub(cvExtra)
	req.PendingValue = req.PendingValue.Sub(valueExtra)
	if req.PendingValue.Sign() < 0 {
		req.PendingValue = decimal.Zero
	}
	if err := s.requests.Save(ctx, req); err != nil {
		return err
	}
	logger.Info(ctx, "order resized",
		"order_id", order.OrderID,
		"currency_value", order.CurrencyValue.String(),
		"value", order.Value.String())
	return nil
}

func (s *OrderRequestCommandService) notifyResolution(ctx context.Context, order *domain.Order, orderRequest *domain.OrderRequest) error {
	return s.notifier.Notify(ctx, &domain.Notification{
		Kind:     domain.NotifyAmendmentDone,
		WalletID: orderRequest.ProposerWalletID,
		Payload: map[string]interface{}{
			"order_request_id": orderRequest.OrderRequestID,
			"order_id":         order.OrderID,
			"state":            orderRequest.State,
		},
	})
}
