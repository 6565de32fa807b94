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

// CreateRequisiteCommand registers a standing liquidity offer.
type CreateRequisiteCommand struct {
	WalletID         string
	Type             domain.OrderType
	MethodID         string
	Rate             decimal.Decimal
	CurrencyValue    decimal.Decimal
	Value            decimal.Decimal
	CurrencyValueMin decimal.Decimal
	CurrencyValueMax decimal.Decimal
	ValueMin         decimal.Decimal
	ValueMax         decimal.Decimal
	IsFlex           bool
	FieldValues      string
}

// RequisiteCommandService manages liquidity providers' requisites.
type RequisiteCommandService struct {
	db         *db.DB
	requisites domain.RequisiteRepository
	methods    domain.MethodRepository
	orders     domain.OrderRepository
	actions    domain.ActionLogger
}

func NewRequisiteCommandService(
	database *db.DB,
	requisites domain.RequisiteRepository,
	methods domain.MethodRepository,
	orders domain.OrderRepository,
	actions domain.ActionLogger,
) *RequisiteCommandService {
	return &RequisiteCommandService{
		db:         database,
		requisites: requisites,
		methods:    methods,
		orders:     orders,
		actions:    actions,
	}
}

// Create registers the requisite. Flex requisites may omit the rate, fixed
// ones must set it.
func (s *RequisiteCommandService) Create(ctx context.Context, cmd CreateRequisiteCommand) (*domain.Requisite, error) {
	method, err := s.methods.Get(ctx, cmd.MethodID)
	if err != nil {
		return nil, err
	}
	if !cmd.IsFlex && cmd.Rate.Sign() <= 0 {
		return nil, domain.ErrZeroRate
	}
	if cmd.CurrencyValue.Sign() <= 0 || cmd.Value.Sign() <= 0 {
		return nil, domain.ErrRequisiteCapacity
	}
	requisite := &domain.Requisite{
		RequisiteID:      fmt.Sprintf("RQS-%d", idgen.GenID()),
		Type:             cmd.Type,
		WalletID:         cmd.WalletID,
		MethodID:         method.MethodID,
		CurrencyID:       method.CurrencyID,
		Rate:             cmd.Rate,
		CurrencyValue:    cmd.CurrencyValue,
		Value:            cmd.Value,
		CurrencyValueMin: cmd.CurrencyValueMin,
		CurrencyValueMax: cmd.CurrencyValueMax,
		ValueMin:         cmd.ValueMin,
		ValueMax:         cmd.ValueMax,
		IsFlex:           cmd.IsFlex,
		IsActive:         true,
		FieldValues:      cmd.FieldValues,
	}
	if err := s.db.Transact(ctx, func(ctx context.Context) error {
		if err := s.requisites.Save(ctx, requisite); err != nil {
			return err
		}
		return s.actions.Record(ctx, cmd.WalletID, "requisite.create", "requisite", requisite.RequisiteID, "")
	}); err != nil {
		return nil, err
	}
	logger.Info(ctx, "requisite created",
		"requisite_id", requisite.RequisiteID,
		"wallet_id", cmd.WalletID,
		"type", string(cmd.Type))
	return requisite, nil
}

// TopUp adds capacity to the caller's requisite.
func (s *RequisiteCommandService) TopUp(ctx context.Context, walletID, requisiteID string, currencyValue, value decimal.Decimal) (*domain.Requisite, error) {
	var requisite *domain.Requisite
	err := s.db.Transact(ctx, func(ctx context.Context) error {
		var err error
		requisite, err = s.requisites.Get(ctx, requisiteID)
		if err != nil {
			return err
		}
		if requisite.WalletID != walletID {
			return domain.ErrPermissionDenied
		}
		if currencyValue.Sign() < 0 || value.Sign() < 0 {
			return domain.ErrRequisiteCapacity
		}
		requisite.Restore(currencyValue, value)
		if err := s.requisites.Save(ctx, requisite); err != nil {
			return err
		}
		return s.actions.Record(ctx, walletID, "requisite.topup", "requisite", requisiteID, "")
	})
	if err != nil {
		return nil, err
	}
	return requisite, nil
}

// SetActive toggles the caller's requisite in and out of matching without
// touching its capacity.
func (s *RequisiteCommandService) SetActive(ctx context.Context, walletID, requisiteID string, active bool) (*domain.Requisite, error) {
	var requisite *domain.Requisite
	err := s.db.Transact(ctx, func(ctx context.Context) error {
		var err error
		requisite, err = s.requisites.Get(ctx, requisiteID)
		if err != nil {
			return err
		}
		if requisite.WalletID != walletID {
			return domain.ErrPermissionDenied
		}
		requisite.IsActive = active
		if err := s.requisites.Save(ctx, requisite); err != nil {
			return err
		}
		action := "requisite.disable"
		if active {
			action = "requisite.enable"
		}
		return s.actions.Record(ctx, walletID, action, "requisite", requisiteID, "")
	})
	if err != nil {
		return nil, err
	}
	return requisite, nil
}

// Withdraw removes the caller's requisite from the book. Orders already
// created against it keep settling.
func (s *RequisiteCommandService) Withdraw(ctx context.Context, walletID, requisiteID string) error {
	return s.db.Transact(ctx, func(ctx context.Context) error {
		requisite, err := s.requisites.Get(ctx, requisiteID)
		if err != nil {
			return err
		}
		if requisite.WalletID != walletID {
			return domain.ErrPermissionDenied
		}
		if err := s.requisites.Delete(ctx, requisiteID); err != nil {
			return err
		}
		logger.Info(ctx, "requisite withdrawn", "requisite_id", requisiteID)
		return s.actions.Record(ctx, walletID, "requisite.withdraw", "requisite", requisiteID, "")
	})
}
