package application

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
	"github.com/wyfcoding/p2pexchange/pkg/db"
	"github.com/wyfcoding/p2pexchange/pkg/logger"
)

// CreateRequestCommand carries the client's exchange intent. Exactly one
// of the two amounts is set, matching FirstLine. Type defaults to ALL;
// single-leg requests name only the method of the leg they run.
type CreateRequestCommand struct {
	WalletID            string
	Type                domain.RequestType
	InputMethodID       string
	OutputMethodID      string
	FirstLine           domain.FirstLine
	InputCurrencyValue  decimal.Decimal
	OutputCurrencyValue decimal.Decimal
	OutputFieldValues   string
}

// RequestCommandService handles the client-facing request operations.
// Quoting and matching run through the engine; the sweep jobs retry
// anything that fails here.
type RequestCommandService struct {
	db       *db.DB
	requests domain.RequestRepository
	orders   domain.OrderRepository
	methods  domain.MethodRepository
	engine   *Engine
	ordersvc *OrderCommandService
	actions  domain.ActionLogger
}

func NewRequestCommandService(
	database *db.DB,
	requests domain.RequestRepository,
	orders domain.OrderRepository,
	methods domain.MethodRepository,
	engine *Engine,
	ordersvc *OrderCommandService,
	actions domain.ActionLogger,
) *RequestCommandService {
	return &RequestCommandService{
		db:       database,
		requests: requests,
		orders:   orders,
		methods:  methods,
		engine:   engine,
		ordersvc: ordersvc,
		actions:  actions,
	}
}

// Create registers the request and prices it. The request comes back in
// WAITING with its quote, or in LOADING when pricing is not yet possible.
func (s *RequestCommandService) Create(ctx context.Context, cmd CreateRequestCommand) (*domain.Request, error) {
	if cmd.Type == "" {
		cmd.Type = domain.RequestTypeAll
	}
	switch cmd.Type {
	case domain.RequestTypeInput:
		if cmd.InputMethodID == "" || cmd.FirstLine != domain.FirstLineInput {
			return nil, domain.ErrRequestTypeInvalid
		}
	case domain.RequestTypeOutput:
		if cmd.OutputMethodID == "" || cmd.FirstLine != domain.FirstLineOutput {
			return nil, domain.ErrRequestTypeInvalid
		}
	case domain.RequestTypeAll:
		if cmd.InputMethodID == "" || cmd.OutputMethodID == "" {
			return nil, domain.ErrRequestTypeInvalid
		}
	default:
		return nil, domain.ErrRequestTypeInvalid
	}

	req := &domain.Request{
		RequestID:           fmt.Sprintf("REQ-%d", idgen.GenID()),
		WalletID:            cmd.WalletID,
		Type:                cmd.Type,
		State:               domain.RequestStateLoading,
		FirstLine:           cmd.FirstLine,
		InputCurrencyValue:  cmd.InputCurrencyValue,
		OutputCurrencyValue: cmd.OutputCurrencyValue,
		OutputFieldValues:   cmd.OutputFieldValues,
	}
	if cmd.Type != domain.RequestTypeOutput {
		inputMethod, err := s.methods.Get(ctx, cmd.InputMethodID)
		if err != nil {
			return nil, err
		}
		req.InputMethodID = inputMethod.MethodID
		req.InputCurrencyID = inputMethod.CurrencyID
	}
	if cmd.Type != domain.RequestTypeInput {
		outputMethod, err := s.methods.Get(ctx, cmd.OutputMethodID)
		if err != nil {
			return nil, err
		}
		req.OutputMethodID = outputMethod.MethodID
		req.OutputCurrencyID = outputMethod.CurrencyID
	}
	switch cmd.FirstLine {
	case domain.FirstLineInput:
		if cmd.InputCurrencyValue.Sign() <= 0 {
			return nil, domain.ErrFirstLineInvalid
		}
	case domain.FirstLineOutput:
		if cmd.OutputCurrencyValue.Sign() <= 0 {
			return nil, domain.ErrFirstLineInvalid
		}
	default:
		return nil, domain.ErrFirstLineInvalid
	}

	if err := s.requests.Save(ctx, req); err != nil {
		return nil, fmt.Errorf("save request: %w", err)
	}
	if err := s.actions.Record(ctx, cmd.WalletID, "request.create", "request", req.RequestID, ""); err != nil {
		return nil, err
	}
	logger.Info(ctx, "request created", "request_id", req.RequestID, "wallet_id", cmd.WalletID)

	// price inline when reference data allows, the loading sweep retries
	// the rest
	if err := s.engine.Quote(ctx, req.RequestID); err != nil {
		logger.Warn(ctx, "inline quote failed, left in loading",
			"request_id", req.RequestID, "error", err)
		return req, nil
	}
	return s.requests.Get(ctx, req.RequestID)
}

// Activate commits the caller to the quote and starts input matching.
func (s *RequestCommandService) Activate(ctx context.Context, walletID, requestID string) (*domain.Request, error) {
	var req *domain.Request
	err := s.db.Transact(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.WalletID != walletID {
			return domain.ErrPermissionDenied
		}
		if err := req.Activate(ctx); err != nil {
			return err
		}
		if err := s.actions.Record(ctx, walletID, "request.activate", "request", requestID, ""); err != nil {
			return err
		}
		return s.requests.Save(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	// first matching attempt right away, the reservation sweep retries
	if err := s.engine.MatchLeg(ctx, requestID); err != nil {
		logger.Warn(ctx, "inline match failed", "request_id", requestID, "error", err)
	}
	return s.requests.Get(ctx, requestID)
}

// Cancel aborts the caller's request. Forbidden once any order settled.
func (s *RequestCommandService) Cancel(ctx context.Context, walletID, requestID string) error {
	return s.db.Transact(ctx, func(ctx context.Context) error {
		req, err := s.requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.WalletID != walletID {
			return domain.ErrPermissionDenied
		}
		orders, err := s.orders.ListByRequest(ctx, requestID)
		if err != nil {
			return err
		}
		for _, order := range orders {
			if order.State == domain.OrderStateCompleted {
				return domain.NewStateError("request", requestID, "no settled orders", req.State)
			}
		}
		if err := req.Cancel(ctx); err != nil {
			return err
		}
		for _, order := range orders {
			if order.IsTerminal() {
				continue
			}
			if err := s.ordersvc.cancelSlice(ctx, order, domain.CanceledOneSided, "request canceled"); err != nil {
				return err
			}
		}
		if err := s.actions.Record(ctx, walletID, "request.cancel", "request", requestID, ""); err != nil {
			return err
		}
		logger.Info(ctx, "request canceled", "request_id", requestID)
		return s.requests.Save(ctx, req)
	})
}
