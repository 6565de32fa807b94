// Package domain contains the exchange engine's entities: currencies and
// payment methods, standing requisites, client requests, matched orders and
// their amendment protocol, plus the allocation and quoting services that
// drive them.
package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Currency is immutable reference data for one tradable token.
type Currency struct {
	gorm.Model
	// Symbol, e.g. "usdtbep20"
	IDStr string `gorm:"column:id_str;type:varchar(32);uniqueIndex;not null" json:"id_str"`
	// Display precision
	Decimal int32 `gorm:"column:decimal;not null" json:"decimal"`
	// Precision of stored rates; rates are kept scaled by 10^rate_decimal
	RateDecimal int32 `gorm:"column:rate_decimal;not null" json:"rate_decimal"`
	// Minimum tradable increment; all allocated amounts snap down to it
	Div decimal.Decimal `gorm:"column:div;type:decimal(32,0);not null" json:"div"`
}

// Method is a payment rail bound to one currency, carrying commission rates
// and the field schemas used to collect payment details.
type Method struct {
	gorm.Model
	MethodID   string `gorm:"column:method_id;type:varchar(32);uniqueIndex;not null" json:"method_id"`
	CurrencyID string `gorm:"column:currency_id;type:varchar(32);index;not null" json:"currency_id"`
	Name       string `gorm:"column:name;type:varchar(128);not null" json:"name"`
	// Current quoted rate, scaled by the currency's rate_decimal.
	// Attached by the rate subsystem; the engine only reads it.
	Rate decimal.Decimal `gorm:"column:rate;type:decimal(32,0);not null;default:0" json:"rate"`
	// Flat commission in value units per leg direction
	CommissionInputValue  decimal.Decimal `gorm:"column:commission_input_value;type:decimal(32,0);not null;default:0" json:"commission_input_value"`
	CommissionOutputValue decimal.Decimal `gorm:"column:commission_output_value;type:decimal(32,0);not null;default:0" json:"commission_output_value"`
	// Percent commission per leg direction
	CommissionInputPercent  decimal.Decimal `gorm:"column:commission_input_percent;type:decimal(10,4);not null;default:0" json:"commission_input_percent"`
	CommissionOutputPercent decimal.Decimal `gorm:"column:commission_output_percent;type:decimal(10,4);not null;default:0" json:"commission_output_percent"`
	// JSON field schema shown to a counterparty paying through this rail
	FieldSchema string `gorm:"column:field_schema;type:text" json:"field_schema"`
	// JSON field schema for the payment proof the paying side must supply
	InputFieldSchema string `gorm:"column:input_field_schema;type:text" json:"input_field_schema"`
	IsActive         bool   `gorm:"column:is_active;not null;default:1" json:"is_active"`
}

// CommissionValue computes the commission in value units for a leg.
func (m *Method) CommissionValue(typ OrderType, value decimal.Decimal) decimal.Decimal {
	var flat, percent decimal.Decimal
	switch typ {
	case OrderTypeInput:
		flat, percent = m.CommissionInputValue, m.CommissionInputPercent
	case OrderTypeOutput:
		flat, percent = m.CommissionOutputValue, m.CommissionOutputPercent
	default:
		return decimal.Zero
	}
	return flat.Add(value.Mul(percent).Div(decimal.NewFromInt(100)).Ceil())
}

// CurrencyRepository reads currency reference data.
type CurrencyRepository interface {
	Get(ctx context.Context, idStr string) (*Currency, error)
	List(ctx context.Context) ([]*Currency, error)
}

// MethodRepository reads and manages payment methods.
type MethodRepository interface {
	Save(ctx context.Context, method *Method) error
	Get(ctx context.Context, methodID string) (*Method, error)
	ListByCurrency(ctx context.Context, currencyID string) ([]*Method, error)
}
