package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Notification kinds published to interested parties.
const (
	NotifyOrderCreated     = "order.created"
	NotifyOrderPayment     = "order.payment"
	NotifyOrderConfirmed   = "order.confirmed"
	NotifyOrderCompleted   = "order.completed"
	NotifyOrderCanceled    = "order.canceled"
	NotifyRequestCompleted = "request.completed"
	NotifyRequestCanceled  = "request.canceled"
	NotifyLiquidityNeeded  = "liquidity.needed"
	NotifyAmendmentRaised  = "order_request.raised"
	NotifyAmendmentDone    = "order_request.resolved"
)

// BroadcastWalletID addresses a notification to every liquidity provider
// instead of one wallet.
const BroadcastWalletID = "*"

// Notification is an event addressed to a wallet's owner.
type Notification struct {
	Kind     string                 `json:"kind"`
	WalletID string                 `json:"wallet_id"`
	// Dedup key; at most one pending notification per key is kept
	DedupKey string                 `json:"dedup_key,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// Notifier hands notifications to the delivery pipeline. Implementations
// must be safe to call inside a database transaction.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// ActionLogger records who did what to which entity, for audit. The
// liveness timers read the history back to see when an entity was last
// touched.
type ActionLogger interface {
	Record(ctx context.Context, actorWalletID, action, entity, entityID, detail string) error
	// LastActionAt returns the time of the newest record for the entity,
	// or the zero time when it was never touched.
	LastActionAt(ctx context.Context, entity, entityID string) (time.Time, error)
}

// Ledger is the money-moving collaborator. Bans freeze a slice of a wallet
// balance; transfers move settled funds between wallets.
type Ledger interface {
	// Ban freezes amount on the wallet and returns the ban id.
	Ban(ctx context.Context, walletID string, amount decimal.Decimal, reason string) (string, error)
	// ReleaseBan lifts a ban without moving funds.
	ReleaseBan(ctx context.Context, banID string) error
	// Transfer moves amount between wallets, consuming banID when set.
	Transfer(ctx context.Context, fromWalletID, toWalletID string, amount decimal.Decimal, banID, reason string) (string, error)
	// Deposit credits amount to the wallet from the system wallet.
	Deposit(ctx context.Context, walletID string, amount decimal.Decimal, reason string) (string, error)
	// Charge debits amount from the wallet to the system wallet.
	Charge(ctx context.Context, walletID string, amount decimal.Decimal, reason string) (string, error)
}

// RateSource quotes the current market rate of a currency, scaled by its
// rate_decimal. Flex requisites realize their rate through it.
type RateSource interface {
	Rate(ctx context.Context, currencyID string) (decimal.Decimal, error)
}
