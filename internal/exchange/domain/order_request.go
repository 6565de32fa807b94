package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/fsm"
	"gorm.io/gorm"
)

// OrderRequestType names what an amendment asks for.
type OrderRequestType string

const (
	// Cancel the order and return its slice to matching
	OrderRequestCancel OrderRequestType = "CANCEL"
	// Cancel plus a blacklist entry so the slice lands elsewhere
	OrderRequestRecreate OrderRequestType = "RECREATE"
	// Resize the order to the amount the proposer can actually cover
	OrderRequestUpdateValue OrderRequestType = "UPDATE_VALUE"
)

// OrderRequest lifecycle states.
const (
	OrderRequestStateWait      = "WAIT"
	OrderRequestStateCompleted = "COMPLETED"
	OrderRequestStateCanceled  = "CANCELED"
)

// OrderRequest state machine events.
const (
	OrderRequestEventApprove = "approve"
	OrderRequestEventReject  = "reject"
)

// OrderRequest is a proposed amendment to a live order, raised by one side
// and resolved by the other. At most one may be pending per order.
type OrderRequest struct {
	gorm.Model
	OrderRequestID string           `gorm:"column:order_request_id;type:varchar(32);uniqueIndex;not null" json:"order_request_id"`
	OrderID        string           `gorm:"column:order_id;type:varchar(32);index;not null" json:"order_id"`
	Type           OrderRequestType `gorm:"column:type;type:varchar(16);not null" json:"type"`
	State          string           `gorm:"column:state;type:varchar(20);index;not null" json:"state"`
	// Wallet that raised the amendment; the opposite side resolves it
	ProposerWalletID string `gorm:"column:proposer_wallet_id;type:varchar(32);not null" json:"proposer_wallet_id"`
	// Target amounts for UPDATE_VALUE, empty otherwise
	CurrencyValue decimal.Decimal `gorm:"column:currency_value;type:decimal(32,0);not null;default:0" json:"currency_value"`
	Value         decimal.Decimal `gorm:"column:value;type:decimal(32,0);not null;default:0" json:"value"`
	Reason        string          `gorm:"column:reason;type:varchar(255)" json:"reason,omitempty"`
	ResolvedAt    *time.Time      `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

func (or *OrderRequest) trigger(ctx context.Context, event string) error {
	m := fsm.NewMachine[string, string](or.State)
	m.AddTransition(OrderRequestStateWait, OrderRequestEventApprove, OrderRequestStateCompleted)
	m.AddTransition(OrderRequestStateWait, OrderRequestEventReject, OrderRequestStateCanceled)
	if err := m.Trigger(ctx, event); err != nil {
		return NewStateError("order_request", or.OrderRequestID, event, or.State)
	}
	or.State = m.Current()
	now := time.Now()
	or.ResolvedAt = &now
	return nil
}

// Approve accepts the amendment.
func (or *OrderRequest) Approve(ctx context.Context) error {
	return or.trigger(ctx, OrderRequestEventApprove)
}

// Reject declines the amendment, leaving the order unchanged.
func (or *OrderRequest) Reject(ctx context.Context) error {
	return or.trigger(ctx, OrderRequestEventReject)
}

// IsPending reports whether the amendment still awaits resolution.
func (or *OrderRequest) IsPending() bool {
	return or.State == OrderRequestStateWait
}

// OrderRequestRepository persists amendments.
type OrderRequestRepository interface {
	Save(ctx context.Context, orderRequest *OrderRequest) error
	Get(ctx context.Context, orderRequestID string) (*OrderRequest, error)
	// GetPending returns the pending amendment for an order, or
	// ErrOrderRequestNotFound when none exists.
	GetPending(ctx context.Context, orderID string) (*OrderRequest, error)
	ListByOrder(ctx context.Context, orderID string) ([]*OrderRequest, error)
}
