package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Requisite is a standing liquidity offer: a counterparty's advertised
// willingness to trade a currency at a rate, with capacity bounds. Capacity
// shrinks as orders consume it and grows back on cancellation.
type Requisite struct {
	gorm.Model
	RequisiteID string `gorm:"column:requisite_id;type:varchar(32);uniqueIndex;not null" json:"requisite_id"`
	// INPUT accepts currency in, OUTPUT pays currency out
	Type       OrderType `gorm:"column:type;type:varchar(10);index;not null" json:"type"`
	WalletID   string    `gorm:"column:wallet_id;type:varchar(32);index;not null" json:"wallet_id"`
	MethodID   string    `gorm:"column:method_id;type:varchar(32);index;not null" json:"method_id"`
	CurrencyID string    `gorm:"column:currency_id;type:varchar(32);index;not null" json:"currency_id"`
	// Fixed price, scaled by the currency's rate_decimal
	Rate decimal.Decimal `gorm:"column:rate;type:decimal(32,0);not null" json:"rate"`
	// Remaining capacity in currency units and in value units
	CurrencyValue decimal.Decimal `gorm:"column:currency_value;type:decimal(32,0);not null;default:0" json:"currency_value"`
	Value         decimal.Decimal `gorm:"column:value;type:decimal(32,0);not null;default:0" json:"value"`
	// Optional per-allocation bounds; zero means unbounded
	CurrencyValueMin decimal.Decimal `gorm:"column:currency_value_min;type:decimal(32,0);not null;default:0" json:"currency_value_min"`
	CurrencyValueMax decimal.Decimal `gorm:"column:currency_value_max;type:decimal(32,0);not null;default:0" json:"currency_value_max"`
	ValueMin         decimal.Decimal `gorm:"column:value_min;type:decimal(32,0);not null;default:0" json:"value_min"`
	ValueMax         decimal.Decimal `gorm:"column:value_max;type:decimal(32,0);not null;default:0" json:"value_max"`
	// Flex requisites realize their rate per order instead of holding it fixed
	IsFlex bool `gorm:"column:is_flex;not null;default:0" json:"is_flex"`
	// Busy flag held while an allocation pass evaluates this requisite
	InProcess bool `gorm:"column:in_process;index;not null;default:0" json:"in_process"`
	// Disabled requisites keep their capacity but never match
	IsActive bool `gorm:"column:is_active;not null;default:1" json:"is_active"`
	// JSON payment details presented to the counterparty
	FieldValues string `gorm:"column:field_values;type:text" json:"field_values"`
}

// Reserve consumes capacity when an order is created against this requisite.
func (r *Requisite) Reserve(currencyValue, value decimal.Decimal) error {
	if r.CurrencyValue.LessThan(currencyValue) || r.Value.LessThan(value) {
		return ErrRequisiteCapacity
	}
	r.CurrencyValue = r.CurrencyValue.Sub(currencyValue)
	r.Value = r.Value.Sub(value)
	return nil
}

// Restore returns capacity when an order against this requisite is canceled.
func (r *Requisite) Restore(currencyValue, value decimal.Decimal) {
	r.CurrencyValue = r.CurrencyValue.Add(currencyValue)
	r.Value = r.Value.Add(value)
}

// RateOrder selects candidate ordering for an allocation scan.
type RateOrder string

const (
	RateAscending  RateOrder = "ASC"
	RateDescending RateOrder = "DESC"
)

// RequisiteRepository persists requisites and implements the claim protocol
// used by allocation passes.
type RequisiteRepository interface {
	Save(ctx context.Context, requisite *Requisite) error
	Get(ctx context.Context, requisiteID string) (*Requisite, error)
	ListByWallet(ctx context.Context, walletID string) ([]*Requisite, error)
	// Candidates returns unclaimed, non-deleted requisites of the given type
	// for a currency, sorted by rate, excluding the given ids.
	Candidates(ctx context.Context, currencyID string, typ OrderType, order RateOrder, exclude []string) ([]*Requisite, error)
	// TryClaim atomically sets in_process when it is currently unset and
	// reports whether the claim was won.
	TryClaim(ctx context.Context, requisiteID string) (bool, error)
	// Release clears in_process.
	Release(ctx context.Context, requisiteID string) error
	Delete(ctx context.Context, requisiteID string) error
}

// RequisiteBlacklist pins a (request, requisite) pair that allocation passes
// for the request must skip after an approved recreate amendment.
type RequisiteBlacklist struct {
	gorm.Model
	RequestID   string `gorm:"column:request_id;type:varchar(32);index:idx_request_requisite,unique;not null" json:"request_id"`
	RequisiteID string `gorm:"column:requisite_id;type:varchar(32);index:idx_request_requisite,unique;not null" json:"requisite_id"`
}

// BlacklistRepository records requisites excluded from matching per request.
type BlacklistRepository interface {
	Add(ctx context.Context, requestID, requisiteID string) error
	ListByRequest(ctx context.Context, requestID string) ([]string, error)
}
