package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/fsm"
	"gorm.io/gorm"
)

// Request lifecycle states. A request moves strictly forward: quote the
// amounts, wait for activation, then settle the input leg and the output
// leg in turn. Each leg has a reservation phase (matching) and an active
// phase (orders settling).
const (
	RequestStateLoading           = "LOADING"
	RequestStateWaiting           = "WAITING"
	RequestStateInputReservation  = "INPUT_RESERVATION"
	RequestStateInput             = "INPUT"
	RequestStateOutputReservation = "OUTPUT_RESERVATION"
	RequestStateOutput            = "OUTPUT"
	RequestStateCompleted         = "COMPLETED"
	RequestStateCanceled          = "CANCELED"
)

// Request state machine events.
const (
	RequestEventQuote          = "quote"
	RequestEventActivate       = "activate"
	RequestEventActivateOutput = "activate_output"
	RequestEventInputDone      = "input_done"
	RequestEventOutputStart    = "output_start"
	RequestEventOutputDone     = "output_done"
	RequestEventComplete       = "complete"
	RequestEventRematch        = "rematch"
	RequestEventCancel         = "cancel"
)

// RequestType selects which legs a request runs. ALL converts currency to
// currency through both legs; INPUT and OUTPUT run a single leg.
type RequestType string

const (
	RequestTypeInput  RequestType = "INPUT"
	RequestTypeOutput RequestType = "OUTPUT"
	RequestTypeAll    RequestType = "ALL"
)

// FirstLine marks which side the client fixed when creating the request.
type FirstLine string

const (
	FirstLineInput  FirstLine = "INPUT"
	FirstLineOutput FirstLine = "OUTPUT"
)

// Request is a client's exchange intent: take currency in via one method and
// pay currency out via another, at rates fixed when the quote is computed.
type Request struct {
	gorm.Model
	RequestID string      `gorm:"column:request_id;type:varchar(32);uniqueIndex;not null" json:"request_id"`
	WalletID  string      `gorm:"column:wallet_id;type:varchar(32);index;not null" json:"wallet_id"`
	Type      RequestType `gorm:"column:type;type:varchar(10);not null;default:'ALL'" json:"type"`
	State     string      `gorm:"column:state;type:varchar(24);index;not null" json:"state"`
	FirstLine FirstLine   `gorm:"column:first_line;type:varchar(10);not null" json:"first_line"`

	InputMethodID    string `gorm:"column:input_method_id;type:varchar(32);not null" json:"input_method_id"`
	InputCurrencyID  string `gorm:"column:input_currency_id;type:varchar(32);not null" json:"input_currency_id"`
	OutputMethodID   string `gorm:"column:output_method_id;type:varchar(32);not null" json:"output_method_id"`
	OutputCurrencyID string `gorm:"column:output_currency_id;type:varchar(32);not null" json:"output_currency_id"`

	// Rates fixed at quote time, scaled by each currency's rate_decimal
	InputRate  decimal.Decimal `gorm:"column:input_rate;type:decimal(32,0);not null;default:0" json:"input_rate"`
	OutputRate decimal.Decimal `gorm:"column:output_rate;type:decimal(32,0);not null;default:0" json:"output_rate"`
	// Quoted totals per leg
	InputCurrencyValue  decimal.Decimal `gorm:"column:input_currency_value;type:decimal(32,0);not null;default:0" json:"input_currency_value"`
	InputValue          decimal.Decimal `gorm:"column:input_value;type:decimal(32,0);not null;default:0" json:"input_value"`
	OutputCurrencyValue decimal.Decimal `gorm:"column:output_currency_value;type:decimal(32,0);not null;default:0" json:"output_currency_value"`
	OutputValue         decimal.Decimal `gorm:"column:output_value;type:decimal(32,0);not null;default:0" json:"output_value"`
	Commission          decimal.Decimal `gorm:"column:commission;type:decimal(32,0);not null;default:0" json:"commission"`
	// Rounding residue written off during matching, settled to the system
	// wallet on completion
	Difference decimal.Decimal `gorm:"column:difference;type:decimal(32,0);not null;default:0" json:"difference"`
	// Remaining unmatched amount of the leg currently in reservation
	PendingCurrencyValue decimal.Decimal `gorm:"column:pending_currency_value;type:decimal(32,0);not null;default:0" json:"pending_currency_value"`
	PendingValue         decimal.Decimal `gorm:"column:pending_value;type:decimal(32,0);not null;default:0" json:"pending_value"`
	// JSON payout details the client supplied, per output method schema
	OutputFieldValues string `gorm:"column:output_field_values;type:text" json:"output_field_values,omitempty"`

	// Quote validity window; an unactivated request past this is requoted
	RateFixedUntil *time.Time `gorm:"column:rate_fixed_until" json:"rate_fixed_until,omitempty"`
	ActivatedAt    *time.Time `gorm:"column:activated_at" json:"activated_at,omitempty"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (r *Request) stateMachine() *fsm.Machine[string, string] {
	m := fsm.NewMachine[string, string](r.State)
	m.AddTransition(RequestStateLoading, RequestEventQuote, RequestStateWaiting)
	m.AddTransition(RequestStateWaiting, RequestEventActivate, RequestStateInputReservation)
	m.AddTransition(RequestStateWaiting, RequestEventActivateOutput, RequestStateOutputReservation)
	m.AddTransition(RequestStateInputReservation, RequestEventInputDone, RequestStateInput)
	m.AddTransition(RequestStateInput, RequestEventOutputStart, RequestStateOutputReservation)
	m.AddTransition(RequestStateOutputReservation, RequestEventOutputDone, RequestStateOutput)
	m.AddTransition(RequestStateOutput, RequestEventComplete, RequestStateCompleted)
	// single-leg INPUT requests complete straight out of their only leg
	m.AddTransition(RequestStateInput, RequestEventComplete, RequestStateCompleted)
	m.AddTransition(RequestStateInput, RequestEventRematch, RequestStateInputReservation)
	m.AddTransition(RequestStateOutput, RequestEventRematch, RequestStateOutputReservation)
	m.AddTransition(RequestStateLoading, RequestEventCancel, RequestStateCanceled)
	m.AddTransition(RequestStateWaiting, RequestEventCancel, RequestStateCanceled)
	m.AddTransition(RequestStateInputReservation, RequestEventCancel, RequestStateCanceled)
	return m
}

func (r *Request) trigger(ctx context.Context, event string) error {
	m := r.stateMachine()
	if err := m.Trigger(ctx, event); err != nil {
		return NewStateError("request", r.RequestID, event, r.State)
	}
	r.State = m.Current()
	return nil
}

// Quote fixes the rates and derived totals and opens the activation window.
func (r *Request) Quote(ctx context.Context, until time.Time) error {
	if err := r.trigger(ctx, RequestEventQuote); err != nil {
		return err
	}
	r.RateFixedUntil = &until
	return nil
}

// Activate commits the client to the quote and arms the first leg of its
// type: OUTPUT-only requests go straight to output matching, everything
// else starts on the input side.
func (r *Request) Activate(ctx context.Context) error {
	if r.Type == RequestTypeOutput {
		if err := r.trigger(ctx, RequestEventActivateOutput); err != nil {
			return err
		}
		now := time.Now()
		r.ActivatedAt = &now
		r.PendingCurrencyValue = r.OutputCurrencyValue
		r.PendingValue = r.OutputValue
		return nil
	}
	if err := r.trigger(ctx, RequestEventActivate); err != nil {
		return err
	}
	now := time.Now()
	r.ActivatedAt = &now
	r.PendingCurrencyValue = r.InputCurrencyValue
	r.PendingValue = r.InputValue
	return nil
}

// FinishInputMatching moves to INPUT once the input leg is fully allocated.
func (r *Request) FinishInputMatching(ctx context.Context) error {
	return r.trigger(ctx, RequestEventInputDone)
}

// StartOutput arms the output leg after every input order completed.
func (r *Request) StartOutput(ctx context.Context) error {
	if err := r.trigger(ctx, RequestEventOutputStart); err != nil {
		return err
	}
	r.PendingCurrencyValue = r.OutputCurrencyValue
	r.PendingValue = r.OutputValue
	return nil
}

// FinishOutputMatching moves to OUTPUT once the output leg is fully allocated.
func (r *Request) FinishOutputMatching(ctx context.Context) error {
	return r.trigger(ctx, RequestEventOutputDone)
}

// Complete finalizes the request after its last leg settled. Only an
// INPUT-only request may complete out of the INPUT state; everything else
// must pass through the output leg.
func (r *Request) Complete(ctx context.Context) error {
	if r.State == RequestStateInput && r.Type != RequestTypeInput {
		return NewStateError("request", r.RequestID, RequestEventComplete, r.State)
	}
	if err := r.trigger(ctx, RequestEventComplete); err != nil {
		return err
	}
	now := time.Now()
	r.CompletedAt = &now
	return nil
}

// Rematch returns an active leg to its reservation phase after an order
// gave its slice back.
func (r *Request) Rematch(ctx context.Context) error {
	return r.trigger(ctx, RequestEventRematch)
}

// Cancel aborts the request. Allowed only before any order has settled
// funds, that is up to and including input matching.
func (r *Request) Cancel(ctx context.Context) error {
	return r.trigger(ctx, RequestEventCancel)
}

// IsTerminal reports whether the request can no longer change state.
func (r *Request) IsTerminal() bool {
	return r.State == RequestStateCompleted || r.State == RequestStateCanceled
}

// ActiveLeg returns the order direction the current state settles, or ""
// when no leg is active.
func (r *Request) ActiveLeg() OrderType {
	switch r.State {
	case RequestStateInputReservation, RequestStateInput:
		return OrderTypeInput
	case RequestStateOutputReservation, RequestStateOutput:
		return OrderTypeOutput
	}
	return ""
}

// QuoteExpired reports whether an unactivated quote has outlived its window.
func (r *Request) QuoteExpired(now time.Time) bool {
	return r.State == RequestStateWaiting && r.RateFixedUntil != nil && now.After(*r.RateFixedUntil)
}

// RequestRepository persists requests.
type RequestRepository interface {
	Save(ctx context.Context, request *Request) error
	Get(ctx context.Context, requestID string) (*Request, error)
	ListByWallet(ctx context.Context, walletID string, states []string) ([]*Request, error)
	// ListByState returns requests in any of the given states, oldest first.
	ListByState(ctx context.Context, states []string, limit int) ([]*Request, error)
}
