package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
	"github.com/wyfcoding/p2pexchange/pkg/db"
	"github.com/wyfcoding/p2pexchange/pkg/logger"
	"github.com/wyfcoding/p2pexchange/pkg/metrics"
)

// Engine drives requests through their lifecycle: quoting, matching each
// leg against requisites, and advancing state as the leg's orders settle.
// Every mutation runs in one transaction per request.
type Engine struct {
	db         *db.DB
	requests   domain.RequestRepository
	orders     domain.OrderRepository
	currencies domain.CurrencyRepository
	methods    domain.MethodRepository
	allocator  *domain.Allocator
	factory    *OrderFactory
	rateSource domain.RateSource
	notifier   domain.Notifier
	ledger     domain.Ledger
	actions    domain.ActionLogger
	metrics    *metrics.Metrics

	rateFixWindow  time.Duration
	waitingTimeout time.Duration
}

func NewEngine(
	database *db.DB,
	requests domain.RequestRepository,
	orders domain.OrderRepository,
	currencies domain.CurrencyRepository,
	methods domain.MethodRepository,
	allocator *domain.Allocator,
	factory *OrderFactory,
	rateSource domain.RateSource,
	notifier domain.Notifier,
	ledger domain.Ledger,
	actions domain.ActionLogger,
	m *metrics.Metrics,
	rateFixWindow, waitingTimeout time.Duration,
) *Engine {
	return &Engine{
		db:             database,
		requests:       requests,
		orders:         orders,
		currencies:     currencies,
		methods:        methods,
		allocator:      allocator,
		factory:        factory,
		rateSource:     rateSource,
		notifier:       notifier,
		ledger:         ledger,
		actions:        actions,
		metrics:        m,
		rateFixWindow:  rateFixWindow,
		waitingTimeout: waitingTimeout,
	}
}

// legContext bundles the reference data of one request leg.
type legContext struct {
	method   *domain.Method
	currency *domain.Currency
	rate     decimal.Decimal
}

func (e *Engine) legFor(ctx context.Context, methodID string) (*legContext, error) {
	method, err := e.methods.Get(ctx, methodID)
	if err != nil {
		return nil, err
	}
	currency, err := e.currencies.Get(ctx, method.CurrencyID)
	if err != nil {
		return nil, err
	}
	rate := method.Rate
	if rate.Sign() == 0 {
		rate, err = e.rateSource.Rate(ctx, currency.IDStr)
		if err != nil {
			return nil, err
		}
	}
	return &legContext{method: method, currency: currency, rate: rate}, nil
}

// Quote prices a LOADING request: fixes both rates, derives the amounts of
// the unfixed side, and opens the activation window.
func (e *Engine) Quote(ctx context.Context, requestID string) error {
	return e.db.Transact(ctx, func(ctx context.Context) error {
		req, err := e.requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.State != domain.RequestStateLoading {
			return domain.NewStateError("request", req.RequestID, domain.RequestStateLoading, req.State)
		}
		if err := e.reprice(ctx, req); err != nil {
			return err
		}
		if err := req.Quote(ctx, time.Now().Add(e.rateFixWindow)); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.RequestTransitionsTotal.WithLabelValues(req.State).Inc()
		}
		logger.Info(ctx, "request quoted",
			"request_id", req.RequestID,
			"input_currency_value", req.InputCurrencyValue.String(),
			"input_value", req.InputValue.String(),
			"output_currency_value", req.OutputCurrencyValue.String(),
			"output_value", req.OutputValue.String(),
			"commission", req.Commission.String())
		return e.requests.Save(ctx, req)
	})
}

// reprice loads the reference data for the request's legs and fills the
// rates and derived amounts. Single-leg requests only touch their own side.
func (e *Engine) reprice(ctx context.Context, req *domain.Request) error {
	var input, output *legContext
	var err error
	if req.Type != domain.RequestTypeOutput {
		if input, err = e.legFor(ctx, req.InputMethodID); err != nil {
			return err
		}
	}
	if req.Type != domain.RequestTypeInput {
		if output, err = e.legFor(ctx, req.OutputMethodID); err != nil {
			return err
		}
	}
	return e.price(req, input, output)
}

// price fills the request's rates and derived amounts from the fixed side.
func (e *Engine) price(req *domain.Request, input, output *legContext) error {
	switch req.Type {
	case domain.RequestTypeInput:
		if req.FirstLine != domain.FirstLineInput {
			return domain.ErrFirstLineInvalid
		}
		req.InputRate = input.rate
		icv := domain.SnapToDiv(req.InputCurrencyValue, input.currency.Div)
		if icv.Sign() <= 0 {
			return domain.ErrFirstLineInvalid
		}
		req.InputCurrencyValue = icv
		inputValue, err := domain.ValueFromCurrency(icv, input.rate, input.currency.RateDecimal, domain.OrderTypeInput)
		if err != nil {
			return err
		}
		req.InputValue = inputValue
		req.Commission = input.method.CommissionValue(domain.OrderTypeInput, inputValue)
		return nil
	case domain.RequestTypeOutput:
		if req.FirstLine != domain.FirstLineOutput {
			return domain.ErrFirstLineInvalid
		}
		req.OutputRate = output.rate
		ocv := domain.SnapToDiv(req.OutputCurrencyValue, output.currency.Div)
		if ocv.Sign() <= 0 {
			return domain.ErrFirstLineInvalid
		}
		req.OutputCurrencyValue = ocv
		outputValue, err := domain.ValueFromCurrency(ocv, output.rate, output.currency.RateDecimal, domain.OrderTypeOutput)
		if err != nil {
			return err
		}
		req.OutputValue = outputValue
		req.Commission = output.method.CommissionValue(domain.OrderTypeOutput, outputValue)
		return nil
	}

	req.InputRate = input.rate
	req.OutputRate = output.rate

	switch req.FirstLine {
	case domain.FirstLineInput:
		icv := domain.SnapToDiv(req.InputCurrencyValue, input.currency.Div)
		if icv.Sign() <= 0 {
			return domain.ErrFirstLineInvalid
		}
		req.InputCurrencyValue = icv
		inputValue, err := domain.ValueFromCurrency(icv, input.rate, input.currency.RateDecimal, domain.OrderTypeInput)
		if err != nil {
			return err
		}
		req.InputValue = inputValue
		net := inputValue.Sub(input.method.CommissionValue(domain.OrderTypeInput, inputValue))
		outputValue := net.Sub(output.method.CommissionValue(domain.OrderTypeOutput, net))
		if outputValue.Sign() <= 0 {
			return domain.ErrFirstLineInvalid
		}
		req.OutputValue = outputValue
		req.Commission = inputValue.Sub(outputValue)
		ocv, err := domain.CurrencyFromValue(outputValue, output.rate, output.currency.RateDecimal, domain.OrderTypeOutput)
		if err != nil {
			return err
		}
		req.OutputCurrencyValue = domain.SnapToDiv(ocv, output.currency.Div)
	case domain.FirstLineOutput:
		ocv := domain.SnapToDiv(req.OutputCurrencyValue, output.currency.Div)
		if ocv.Sign() <= 0 {
			return domain.ErrFirstLineInvalid
		}
		req.OutputCurrencyValue = ocv
		outputValue, err := domain.ValueFromCurrency(ocv, output.rate, output.currency.RateDecimal, domain.OrderTypeOutput)
		if err != nil {
			return err
		}
		req.OutputValue = outputValue
		// invert the commissions, flat parts exactly and percent parts on
		// the net amount
		gross := outputValue.Add(output.method.CommissionValue(domain.OrderTypeOutput, outputValue))
		inputValue := gross.Add(input.method.CommissionValue(domain.OrderTypeInput, gross))
		req.InputValue = inputValue
		req.Commission = inputValue.Sub(outputValue)
		icv, err := domain.CurrencyFromValue(inputValue, input.rate, input.currency.RateDecimal, domain.OrderTypeInput)
		if err != nil {
			return err
		}
		req.InputCurrencyValue = domain.SnapToDiv(icv, input.currency.Div)
		if req.InputCurrencyValue.Sign() <= 0 {
			return domain.ErrFirstLineInvalid
		}
	default:
		return domain.ErrFirstLineInvalid
	}
	return nil
}

// MatchLeg runs one allocation pass for a request sitting in a reservation
// state. Full coverage creates the leg's orders and advances the request;
// a shortfall leaves the request in place and signals for liquidity.
func (e *Engine) MatchLeg(ctx context.Context, requestID string) error {
	return e.db.Transact(ctx, func(ctx context.Context) error {
		req, err := e.requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		leg := req.ActiveLeg()
		if req.State != domain.RequestStateInputReservation && req.State != domain.RequestStateOutputReservation {
			return domain.NewStateError("request", req.RequestID, "reservation", req.State)
		}

		var legCtx *legContext
		var plan *domain.Plan
		if leg == domain.OrderTypeInput {
			legCtx, err = e.legFor(ctx, req.InputMethodID)
			if err != nil {
				return err
			}
			plan, err = e.allocator.AllocateByCurrency(ctx, req, legCtx.currency, req.PendingCurrencyValue)
		} else {
			legCtx, err = e.legFor(ctx, req.OutputMethodID)
			if err != nil {
				return err
			}
			plan, err = e.allocator.AllocateByValue(ctx, req, legCtx.currency, req.PendingValue)
		}
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientLiquidity) {
				return e.signalLiquidity(ctx, req, leg)
			}
			return err
		}

		orders, err := e.factory.CreateFromPlan(ctx, req, legCtx.currency, leg, plan)
		if err != nil {
			return err
		}
		for _, order := range orders {
			req.PendingCurrencyValue = req.PendingCurrencyValue.Sub(order.CurrencyValue)
			req.PendingValue = req.PendingValue.Sub(order.Value)
		}
		if plan.ResidualCurrencyValue.Sign() > 0 {
			// dust too small to carry any value, written off
			req.PendingCurrencyValue = req.PendingCurrencyValue.Sub(plan.ResidualCurrencyValue)
		}
		if plan.ResidualValue.Sign() > 0 {
			req.PendingValue = req.PendingValue.Sub(plan.ResidualValue)
			// the written-off value stays on the request wallet until the
			// difference settles on completion
			req.Difference = req.Difference.Add(plan.ResidualValue)
		}
		if req.PendingCurrencyValue.Sign() < 0 {
			req.PendingCurrencyValue = decimal.Zero
		}
		if req.PendingValue.Sign() < 0 {
			req.PendingValue = decimal.Zero
		}

		covered := req.PendingCurrencyValue.Sign() == 0
		if leg == domain.OrderTypeOutput {
			covered = req.PendingValue.Sign() == 0
		}
		if covered {
			req.PendingCurrencyValue = decimal.Zero
			req.PendingValue = decimal.Zero
			// orders enter PAYMENT before the request leaves reservation, so
			// no WAITING order can outlive its request's matching phase
			if err := e.advanceToPayment(ctx, req, leg); err != nil {
				return err
			}
			if leg == domain.OrderTypeInput {
				err = req.FinishInputMatching(ctx)
			} else {
				err = req.FinishOutputMatching(ctx)
			}
			if err != nil {
				return err
			}
			if e.metrics != nil {
				e.metrics.RequestTransitionsTotal.WithLabelValues(req.State).Inc()
				e.metrics.AllocationsTotal.Inc()
			}
			logger.Info(ctx, "leg matched",
				"request_id", req.RequestID, "leg", string(leg), "orders", len(orders))
		}
		return e.requests.Save(ctx, req)
	})
}

// advanceToPayment moves every WAITING order of the covered leg into
// PAYMENT. Output orders get their payout value frozen on the request
// wallet here, and each payer is told payment is due.
func (e *Engine) advanceToPayment(ctx context.Context, req *domain.Request, leg domain.OrderType) error {
	live, err := e.orders.ListLive(ctx, req.RequestID)
	if err != nil {
		return err
	}
	for _, order := range live {
		if order.Type != leg || order.State != domain.OrderStateWaiting {
			continue
		}
		if err := order.Pay(ctx); err != nil {
			return err
		}
		if order.Type == domain.OrderTypeOutput {
			banID, err := e.ledger.Ban(ctx, order.WalletID, order.Value,
				fmt.Sprintf("payout backing for order %s", order.OrderID))
			if err != nil {
				return err
			}
			order.BanID = banID
		}
		if err := e.notifier.Notify(ctx, &domain.Notification{
			Kind:     domain.NotifyOrderPayment,
			WalletID: order.PayerWalletID(),
			Payload: map[string]interface{}{
				"order_id":   order.OrderID,
				"request_id": order.RequestID,
			},
		}); err != nil {
			return err
		}
		if err := e.orders.Save(ctx, order); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.OrderTransitionsTotal.WithLabelValues(order.State).Inc()
		}
	}
	return nil
}

// signalLiquidity queues a deduplicated liquidity-needed notification so
// market makers learn about uncoverable demand exactly once per leg.
func (e *Engine) signalLiquidity(ctx context.Context, req *domain.Request, leg domain.OrderType) error {
	if e.metrics != nil {
		e.metrics.AllocationsAbandonedTotal.Inc()
	}
	return e.notifier.Notify(ctx, &domain.Notification{
		Kind:     domain.NotifyLiquidityNeeded,
		WalletID: domain.BroadcastWalletID,
		DedupKey: fmt.Sprintf("liquidity:%s:%s", req.RequestID, leg),
		Payload: map[string]interface{}{
			"request_id":     req.RequestID,
			"leg":            string(leg),
			"currency_value": req.PendingCurrencyValue.String(),
			"value":          req.PendingValue.String(),
		},
	})
}

// ReevaluateLeg advances a request after one of its orders reached a
// terminal state. All orders settled moves the leg forward; a canceled
// order's slice returns to matching.
func (e *Engine) ReevaluateLeg(ctx context.Context, requestID string) error {
	return e.db.Transact(ctx, func(ctx context.Context) error {
		req, err := e.requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		switch req.State {
		case domain.RequestStateInput, domain.RequestStateOutput:
		default:
			return nil
		}
		live, err := e.orders.ListLive(ctx, req.RequestID)
		if err != nil {
			return err
		}
		if len(live) > 0 {
			return nil
		}
		if req.PendingCurrencyValue.Sign() > 0 || req.PendingValue.Sign() > 0 {
			// a canceled order left unmatched residue, go match it again
			if err := req.Rematch(ctx); err != nil {
				return err
			}
			if e.metrics != nil {
				e.metrics.RequestTransitionsTotal.WithLabelValues(req.State).Inc()
			}
			return e.requests.Save(ctx, req)
		}
		if req.State == domain.RequestStateInput && req.Type != domain.RequestTypeInput {
			if err := req.StartOutput(ctx); err != nil {
				return err
			}
		} else {
			if err := e.settleDifference(ctx, req); err != nil {
				return err
			}
			if err := req.Complete(ctx); err != nil {
				return err
			}
			if err := e.notifier.Notify(ctx, &domain.Notification{
				Kind:     domain.NotifyRequestCompleted,
				WalletID: req.WalletID,
				Payload:  map[string]interface{}{"request_id": req.RequestID},
			}); err != nil {
				return err
			}
		}
		if e.metrics != nil {
			e.metrics.RequestTransitionsTotal.WithLabelValues(req.State).Inc()
		}
		logger.Info(ctx, "request advanced", "request_id", req.RequestID, "state", req.State)
		return e.requests.Save(ctx, req)
	})
}

// settleDifference sweeps what the request still owes the system to the
// system wallet: the quoted commission not yet collected through input
// orders, plus any value written off as rounding dust during matching.
func (e *Engine) settleDifference(ctx context.Context, req *domain.Request) error {
	all, err := e.orders.ListByRequest(ctx, req.RequestID)
	if err != nil {
		return err
	}
	collected := decimal.Zero
	for _, order := range all {
		if order.Type == domain.OrderTypeInput && order.State == domain.OrderStateCompleted {
			collected = collected.Add(order.Commission)
		}
	}
	residue := req.Commission.Sub(collected).Add(req.Difference)
	if residue.Sign() <= 0 {
		return nil
	}
	if _, err := e.ledger.Charge(ctx, req.WalletID, residue,
		fmt.Sprintf("difference settlement for request %s", req.RequestID)); err != nil {
		return err
	}
	logger.Info(ctx, "difference settled",
		"request_id", req.RequestID, "value", residue.String())
	return nil
}

// ExpireQuote requotes a WAITING request whose rate window lapsed.
func (e *Engine) ExpireQuote(ctx context.Context, requestID string) error {
	return e.db.Transact(ctx, func(ctx context.Context) error {
		req, err := e.requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if !req.QuoteExpired(time.Now()) {
			return nil
		}
		if err := e.reprice(ctx, req); err != nil {
			return err
		}
		until := time.Now().Add(e.rateFixWindow)
		req.RateFixedUntil = &until
		logger.Info(ctx, "quote refreshed", "request_id", req.RequestID)
		return e.requests.Save(ctx, req)
	})
}

// CancelStale cancels a WAITING request the owner has not touched within
// the waiting timeout. The clock runs from the latest audit record for
// the request, so requoting or editing keeps it alive.
func (e *Engine) CancelStale(ctx context.Context, requestID string) error {
	return e.db.Transact(ctx, func(ctx context.Context) error {
		req, err := e.requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.State != domain.RequestStateWaiting {
			return nil
		}
		last, err := e.actions.LastActionAt(ctx, "request", req.RequestID)
		if err != nil {
			return err
		}
		if last.IsZero() {
			last = req.CreatedAt
		}
		if time.Since(last) < e.waitingTimeout {
			return nil
		}
		if err := req.Cancel(ctx); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.RequestTransitionsTotal.WithLabelValues(req.State).Inc()
		}
		logger.Info(ctx, "stale request canceled", "request_id", req.RequestID)
		if err := e.notifier.Notify(ctx, &domain.Notification{
			Kind:     domain.NotifyRequestCanceled,
			WalletID: req.WalletID,
			Payload:  map[string]interface{}{"request_id": req.RequestID, "reason": "waiting timeout"},
		}); err != nil {
			return err
		}
		return e.requests.Save(ctx, req)
	})
}
