package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/fsm"
	"gorm.io/gorm"
)

// OrderType names the direction of a leg relative to the platform: INPUT
// brings currency in, OUTPUT pays currency out.
type OrderType string

const (
	OrderTypeInput  OrderType = "INPUT"
	OrderTypeOutput OrderType = "OUTPUT"
)

// Opposite returns the other direction.
func (t OrderType) Opposite() OrderType {
	if t == OrderTypeInput {
		return OrderTypeOutput
	}
	return OrderTypeInput
}

// Order lifecycle states.
const (
	OrderStateWaiting      = "WAITING"
	OrderStatePayment      = "PAYMENT"
	OrderStateConfirmation = "CONFIRMATION"
	OrderStateCompleted    = "COMPLETED"
	OrderStateCanceled     = "CANCELED"
)

// Order state machine events.
const (
	OrderEventAccept   = "accept"
	OrderEventPay      = "pay"
	OrderEventConfirm  = "confirm"
	OrderEventComplete = "complete"
	OrderEventCancel   = "cancel"
)

// Who ended a canceled order.
const (
	CanceledOneSided = "ONE_SIDED"
	CanceledTwoSided = "TWO_SIDED"
	CanceledByAdmin  = "BY_ADMIN"
)

// Order is one matched slice of a request against a requisite. It settles
// independently of its siblings through WAITING, PAYMENT, CONFIRMATION and
// COMPLETED, or dies in CANCELED.
type Order struct {
	gorm.Model
	OrderID     string    `gorm:"column:order_id;type:varchar(32);uniqueIndex;not null" json:"order_id"`
	RequestID   string    `gorm:"column:request_id;type:varchar(32);index;not null" json:"request_id"`
	RequisiteID string    `gorm:"column:requisite_id;type:varchar(32);index;not null" json:"requisite_id"`
	Type        OrderType `gorm:"column:type;type:varchar(10);not null" json:"type"`
	State       string    `gorm:"column:state;type:varchar(20);index;not null" json:"state"`
	// Request-side and requisite-side wallets
	WalletID          string `gorm:"column:wallet_id;type:varchar(32);index;not null" json:"wallet_id"`
	RequisiteWalletID string `gorm:"column:requisite_wallet_id;type:varchar(32);index;not null" json:"requisite_wallet_id"`
	MethodID          string `gorm:"column:method_id;type:varchar(32);not null" json:"method_id"`
	CurrencyID        string `gorm:"column:currency_id;type:varchar(32);not null" json:"currency_id"`
	// Amounts fixed at creation
	Rate          decimal.Decimal `gorm:"column:rate;type:decimal(32,0);not null" json:"rate"`
	CurrencyValue decimal.Decimal `gorm:"column:currency_value;type:decimal(32,0);not null" json:"currency_value"`
	Value         decimal.Decimal `gorm:"column:value;type:decimal(32,0);not null" json:"value"`
	Commission    decimal.Decimal `gorm:"column:commission;type:decimal(32,0);not null;default:0" json:"commission"`
	// Ban placed on the request wallet for OUTPUT orders, released on exit
	BanID          string `gorm:"column:ban_id;type:varchar(32)" json:"ban_id,omitempty"`
	CanceledReason string `gorm:"column:canceled_reason;type:varchar(16)" json:"canceled_reason,omitempty"`
	// Counterpart payment details and the payer's proof schema, frozen at
	// creation so later requisite or method edits cannot touch the order
	RequisiteFields  string `gorm:"column:requisite_fields;type:text" json:"requisite_fields,omitempty"`
	InputFieldSchema string `gorm:"column:input_field_schema;type:text" json:"input_field_schema,omitempty"`
	// Payment proof fields filled by the paying side, JSON per method schema
	ConfirmationFields string `gorm:"column:confirmation_fields;type:text" json:"confirmation_fields,omitempty"`
	PaidAt             *time.Time `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CompletedAt        *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (o *Order) stateMachine() *fsm.Machine[string, string] {
	m := fsm.NewMachine[string, string](o.State)
	m.AddTransition(OrderStateWaiting, OrderEventPay, OrderStatePayment)
	m.AddTransition(OrderStatePayment, OrderEventConfirm, OrderStateConfirmation)
	m.AddTransition(OrderStateConfirmation, OrderEventComplete, OrderStateCompleted)
	m.AddTransition(OrderStateWaiting, OrderEventCancel, OrderStateCanceled)
	m.AddTransition(OrderStatePayment, OrderEventCancel, OrderStateCanceled)
	m.AddTransition(OrderStateConfirmation, OrderEventCancel, OrderStateCanceled)
	return m
}

func (o *Order) trigger(ctx context.Context, event string) error {
	m := o.stateMachine()
	if err := m.Trigger(ctx, event); err != nil {
		return NewStateError("order", o.OrderID, event, o.State)
	}
	o.State = m.Current()
	return nil
}

// Pay moves the order into PAYMENT once the counterparty engages.
func (o *Order) Pay(ctx context.Context) error {
	return o.trigger(ctx, OrderEventPay)
}

// Confirm records the payer's proof and moves the order into CONFIRMATION.
// The supplied fields must satisfy the input schema frozen at creation.
func (o *Order) Confirm(ctx context.Context, fields string) error {
	if err := ValidateFields(o.InputFieldSchema, fields); err != nil {
		return err
	}
	if err := o.trigger(ctx, OrderEventConfirm); err != nil {
		return err
	}
	now := time.Now()
	o.PaidAt = &now
	o.ConfirmationFields = fields
	return nil
}

// Complete finalizes the order after the receiving side acknowledges funds.
func (o *Order) Complete(ctx context.Context) error {
	if err := o.trigger(ctx, OrderEventComplete); err != nil {
		return err
	}
	now := time.Now()
	o.CompletedAt = &now
	return nil
}

// Cancel aborts the order from any live state.
func (o *Order) Cancel(ctx context.Context) error {
	return o.trigger(ctx, OrderEventCancel)
}

// IsTerminal reports whether the order can no longer change state.
func (o *Order) IsTerminal() bool {
	return o.State == OrderStateCompleted || o.State == OrderStateCanceled
}

// PayerWalletID returns the wallet that sends funds on this order: the
// request side pays on INPUT, the requisite side pays on OUTPUT.
func (o *Order) PayerWalletID() string {
	if o.Type == OrderTypeInput {
		return o.WalletID
	}
	return o.RequisiteWalletID
}

// ReceiverWalletID returns the wallet that acknowledges receipt.
func (o *Order) ReceiverWalletID() string {
	if o.Type == OrderTypeInput {
		return o.RequisiteWalletID
	}
	return o.WalletID
}

// OrderRepository persists orders.
type OrderRepository interface {
	Save(ctx context.Context, order *Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	ListByRequest(ctx context.Context, requestID string) ([]*Order, error)
	ListByRequisiteWallet(ctx context.Context, walletID string, states []string) ([]*Order, error)
	// ListLive returns orders of the request that are not in a terminal state.
	ListLive(ctx context.Context, requestID string) ([]*Order, error)
}
