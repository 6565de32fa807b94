package application

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/p2pexchange/internal/wallet/domain"
	"github.com/wyfcoding/p2pexchange/pkg/logger"
)

// Service exposes wallet operations. It runs inside the caller's database
// transaction when one is present in the context, so exchange settlement
// and the wallet movement it causes commit or roll back together.
type Service struct {
	wallets   domain.WalletRepository
	bans      domain.BanRepository
	transfers domain.TransferRepository
}

func NewService(wallets domain.WalletRepository, bans domain.BanRepository, transfers domain.TransferRepository) *Service {
	return &Service{wallets: wallets, bans: bans, transfers: transfers}
}

// Ban freezes amount on the wallet and returns the ban id.
func (s *Service) Ban(ctx context.Context, walletID string, amount decimal.Decimal, reason string) (string, error) {
	wallet, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return "", fmt.Errorf("get wallet %s: %w", walletID, err)
	}
	if err := wallet.ApplyBan(amount); err != nil {
		return "", err
	}
	if err := s.wallets.Save(ctx, wallet); err != nil {
		return "", fmt.Errorf("save wallet %s: %w", walletID, err)
	}
	ban := &domain.BanRecord{
		BanID:    fmt.Sprintf("BAN-%d", idgen.GenID()),
		WalletID: walletID,
		Amount:   amount,
		Reason:   reason,
	}
	if err := s.bans.Save(ctx, ban); err != nil {
		return "", fmt.Errorf("save ban: %w", err)
	}
	logger.Info(ctx, "ban applied", "ban_id", ban.BanID, "wallet_id", walletID, "amount", amount.String())
	return ban.BanID, nil
}

// ReleaseBan lifts a ban without moving funds.
func (s *Service) ReleaseBan(ctx context.Context, banID string) error {
	ban, err := s.bans.Get(ctx, banID)
	if err != nil {
		return fmt.Errorf("get ban %s: %w", banID, err)
	}
	if err := ban.Release(); err != nil {
		return err
	}
	wallet, err := s.wallets.Get(ctx, ban.WalletID)
	if err != nil {
		return fmt.Errorf("get wallet %s: %w", ban.WalletID, err)
	}
	wallet.LiftBan(ban.Amount)
	if err := s.wallets.Save(ctx, wallet); err != nil {
		return fmt.Errorf("save wallet %s: %w", ban.WalletID, err)
	}
	if err := s.bans.Save(ctx, ban); err != nil {
		return fmt.Errorf("save ban %s: %w", banID, err)
	}
	logger.Info(ctx, "ban released", "ban_id", banID, "wallet_id", ban.WalletID)
	return nil
}

// Transfer moves amount between wallets. When banID is set, the frozen
// slice backs the debit and the ban is consumed.
func (s *Service) Transfer(ctx context.Context, fromWalletID, toWalletID string, amount decimal.Decimal, banID, reason string) (string, error) {
	from, err := s.wallets.Get(ctx, fromWalletID)
	if err != nil {
		return "", fmt.Errorf("get wallet %s: %w", fromWalletID, err)
	}
	to, err := s.wallets.Get(ctx, toWalletID)
	if err != nil {
		return "", fmt.Errorf("get wallet %s: %w", toWalletID, err)
	}
	if banID != "" {
		ban, err := s.bans.Get(ctx, banID)
		if err != nil {
			return "", fmt.Errorf("get ban %s: %w", banID, err)
		}
		if ban.WalletID != fromWalletID || ban.Amount.LessThan(amount) {
			return "", domain.ErrInsufficientFunds
		}
		if err := ban.Release(); err != nil {
			return "", err
		}
		// excess of the ban beyond the moved amount thaws back
		if excess := ban.Amount.Sub(amount); excess.Sign() > 0 {
			from.LiftBan(excess)
		}
		if err := s.bans.Save(ctx, ban); err != nil {
			return "", fmt.Errorf("save ban %s: %w", banID, err)
		}
	}
	if fromWalletID == domain.SystemWalletID && banID == "" {
		if err := from.DebitOverdraft(amount); err != nil {
			return "", err
		}
	} else if err := from.Debit(amount, banID != ""); err != nil {
		return "", err
	}
	if err := to.Credit(amount); err != nil {
		return "", err
	}
	if err := s.wallets.Save(ctx, from); err != nil {
		return "", fmt.Errorf("save wallet %s: %w", fromWalletID, err)
	}
	if err := s.wallets.Save(ctx, to); err != nil {
		return "", fmt.Errorf("save wallet %s: %w", toWalletID, err)
	}
	transfer := &domain.Transfer{
		TransferID:   fmt.Sprintf("TRF-%d", idgen.GenID()),
		FromWalletID: fromWalletID,
		ToWalletID:   toWalletID,
		Amount:       amount,
		BanID:        banID,
		Reason:       reason,
	}
	if err := s.transfers.Save(ctx, transfer); err != nil {
		return "", fmt.Errorf("save transfer: %w", err)
	}
	logger.Info(ctx, "transfer done",
		"transfer_id", transfer.TransferID,
		"from", fromWalletID, "to", toWalletID,
		"amount", amount.String())
	return transfer.TransferID, nil
}

// Deposit credits the wallet from the system wallet.
func (s *Service) Deposit(ctx context.Context, walletID string, amount decimal.Decimal, reason string) (string, error) {
	return s.Transfer(ctx, domain.SystemWalletID, walletID, amount, "", reason)
}

// Charge debits the wallet to the system wallet.
func (s *Service) Charge(ctx context.Context, walletID string, amount decimal.Decimal, reason string) (string, error) {
	return s.Transfer(ctx, walletID, domain.SystemWalletID, amount, "", reason)
}

// Balance returns the wallet's current balance and frozen amount.
func (s *Service) Balance(ctx context.Context, walletID string) (*domain.Wallet, error) {
	return s.wallets.Get(ctx, walletID)
}

// History lists recent transfers touching the wallet.
func (s *Service) History(ctx context.Context, walletID string, limit int) ([]*domain.Transfer, error) {
	return s.transfers.ListByWallet(ctx, walletID, limit)
}
