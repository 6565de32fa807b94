package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInsufficientLiquidity means the candidate set could not cover the
// target amount and the allocation pass was abandoned.
var ErrInsufficientLiquidity = errors.New("insufficient liquidity")

// Allocation is one slice of an allocation plan: a claimed requisite and
// the exact amounts an order against it will carry.
type Allocation struct {
	Requisite     *Requisite
	CurrencyValue decimal.Decimal
	Value         decimal.Decimal
}

// Plan is the outcome of a successful allocation pass. Every requisite in
// it is still claimed; the caller must release the claims after persisting
// the orders built from it.
type Plan struct {
	Allocations []Allocation
	// Dust left over when the residual rounds to zero value, or to a
	// currency amount below the div
	ResidualCurrencyValue decimal.Decimal
	ResidualValue         decimal.Decimal
}

// Allocator matches a request leg against standing requisites. It scans
// candidates best rate first, claims each one before evaluating it, and
// either covers the whole target or abandons the pass with every claim
// released. Partial plans are never returned.
type Allocator struct {
	requisites RequisiteRepository
	blacklist  BlacklistRepository
}

func NewAllocator(requisites RequisiteRepository, blacklist BlacklistRepository) *Allocator {
	return &Allocator{requisites: requisites, blacklist: blacklist}
}

// AllocateByCurrency covers a target expressed in currency units. Used for
// the input leg, where the client's pay-in amount is the fixed side.
func (a *Allocator) AllocateByCurrency(ctx context.Context, req *Request, currency *Currency, target decimal.Decimal) (*Plan, error) {
	return a.allocate(ctx, req, currency, OrderTypeInput, target, true)
}

// AllocateByValue covers a target expressed in value units. Used for the
// output leg, where the remaining internal balance is the fixed side.
func (a *Allocator) AllocateByValue(ctx context.Context, req *Request, currency *Currency, target decimal.Decimal) (*Plan, error) {
	return a.allocate(ctx, req, currency, OrderTypeOutput, target, false)
}

func (a *Allocator) allocate(ctx context.Context, req *Request, currency *Currency, typ OrderType, target decimal.Decimal, byCurrency bool) (*Plan, error) {
	if target.Sign() <= 0 {
		return &Plan{}, nil
	}
	exclude, err := a.blacklist.ListByRequest(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	order := RateAscending
	if typ == OrderTypeOutput {
		order = RateDescending
	}
	candidates, err := a.requisites.Candidates(ctx, currency.IDStr, typ, order, exclude)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	plan := &Plan{}
	need := target
	for _, cand := range candidates {
		if need.Sign() <= 0 {
			break
		}
		if cand.WalletID == req.WalletID {
			continue
		}
		claimed, err := a.requisites.TryClaim(ctx, cand.RequisiteID)
		if err != nil {
			a.releaseAll(ctx, plan)
			return nil, fmt.Errorf("claim requisite %s: %w", cand.RequisiteID, err)
		}
		if !claimed {
			continue
		}
		alloc, err := a.slice(cand, currency, typ, need, byCurrency)
		if err != nil && !errors.Is(err, ErrZeroRate) {
			a.releaseAll(ctx, plan)
			_ = a.requisites.Release(ctx, cand.RequisiteID)
			return nil, err
		}
		if err != nil || alloc == nil {
			// cannot contribute, or carries a zero rate; give it back
			if err := a.requisites.Release(ctx, cand.RequisiteID); err != nil {
				a.releaseAll(ctx, plan)
				return nil, fmt.Errorf("release requisite %s: %w", cand.RequisiteID, err)
			}
			continue
		}
		plan.Allocations = append(plan.Allocations, *alloc)
		if byCurrency {
			need = need.Sub(alloc.CurrencyValue)
		} else {
			need = need.Sub(alloc.Value)
		}
	}

	if need.Sign() > 0 {
		if !a.residualIsDust(currency, plan, need, byCurrency) {
			a.releaseAll(ctx, plan)
			return nil, ErrInsufficientLiquidity
		}
		if byCurrency {
			plan.ResidualCurrencyValue = need
		} else {
			plan.ResidualValue = need
		}
	}
	return plan, nil
}

// slice computes the contribution of one claimed requisite, or nil when the
// requisite cannot contribute under its own bounds.
func (a *Allocator) slice(cand *Requisite, currency *Currency, typ OrderType, need decimal.Decimal, byCurrency bool) (*Allocation, error) {
	var cv decimal.Decimal
	if byCurrency {
		cv = need
	} else {
		derived, err := CurrencyFromValue(need, cand.Rate, currency.RateDecimal, typ)
		if err != nil {
			return nil, err
		}
		cv = derived
	}
	if cv.GreaterThan(cand.CurrencyValue) {
		cv = cand.CurrencyValue
	}
	if cand.CurrencyValueMax.Sign() > 0 && cv.GreaterThan(cand.CurrencyValueMax) {
		cv = cand.CurrencyValueMax
	}
	cv = SnapToDiv(cv, currency.Div)
	if cv.Sign() <= 0 {
		return nil, nil
	}
	if cand.CurrencyValueMin.Sign() > 0 && cv.LessThan(cand.CurrencyValueMin) {
		return nil, nil
	}
	value, err := ValueFromCurrency(cv, cand.Rate, currency.RateDecimal, typ)
	if err != nil {
		return nil, err
	}
	if value.GreaterThan(cand.Value) {
		return nil, nil
	}
	if cand.ValueMax.Sign() > 0 && value.GreaterThan(cand.ValueMax) {
		return nil, nil
	}
	if value.Sign() <= 0 {
		return nil, nil
	}
	if cand.ValueMin.Sign() > 0 && value.LessThan(cand.ValueMin) {
		return nil, nil
	}
	if !byCurrency && value.GreaterThan(need) {
		value = need
	}
	return &Allocation{Requisite: cand, CurrencyValue: cv, Value: value}, nil
}

// residualIsDust accepts a shortfall too small to ever match: a currency
// residual below the div, or a value residual whose currency equivalent at
// the mean allocated rate snaps below the div.
func (a *Allocator) residualIsDust(currency *Currency, plan *Plan, need decimal.Decimal, byCurrency bool) bool {
	if byCurrency {
		return need.LessThan(currency.Div)
	}
	if len(plan.Allocations) == 0 {
		return false
	}
	rates := make([]decimal.Decimal, 0, len(plan.Allocations))
	for _, alloc := range plan.Allocations {
		rates = append(rates, alloc.Requisite.Rate)
	}
	mean := MeanRate(rates)
	if mean.Sign() <= 0 {
		return false
	}
	cv, err := CurrencyFromValue(need, mean, currency.RateDecimal, OrderTypeInput)
	if err != nil {
		return false
	}
	return SnapToDiv(cv, currency.Div).Sign() == 0
}

func (a *Allocator) releaseAll(ctx context.Context, plan *Plan) {
	for _, alloc := range plan.Allocations {
		_ = a.requisites.Release(ctx, alloc.Requisite.RequisiteID)
	}
}
