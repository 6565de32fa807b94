// Package domain holds the wallet bounded context: internal balances, bans
// that freeze a slice of a balance, and transfers between wallets.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SystemWalletID is the platform's own wallet. Commission lands here and
// internal credits originate here.
const SystemWalletID = "SYSTEM"

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrBanNotFound       = errors.New("ban record not found")
	ErrInsufficientFunds = errors.New("insufficient available funds")
	ErrBanReleased       = errors.New("ban already released")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Wallet is an internal value account. Banned tracks the sum of active
// bans; only Balance minus Banned is spendable.
type Wallet struct {
	gorm.Model
	WalletID string          `gorm:"column:wallet_id;type:varchar(32);uniqueIndex;not null" json:"wallet_id"`
	Balance  decimal.Decimal `gorm:"column:balance;type:decimal(32,0);not null;default:0" json:"balance"`
	Banned   decimal.Decimal `gorm:"column:banned;type:decimal(32,0);not null;default:0" json:"banned"`
}

// Available returns the spendable balance.
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.Banned)
}

// ApplyBan freezes amount of the available balance.
func (w *Wallet) ApplyBan(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if w.Available().LessThan(amount) {
		return ErrInsufficientFunds
	}
	w.Banned = w.Banned.Add(amount)
	return nil
}

// LiftBan unfreezes amount previously banned.
func (w *Wallet) LiftBan(amount decimal.Decimal) {
	w.Banned = w.Banned.Sub(amount)
	if w.Banned.Sign() < 0 {
		w.Banned = decimal.Zero
	}
}

// Debit removes amount from the balance. When fromBanned is set the amount
// was frozen and the ban is consumed together with the funds.
func (w *Wallet) Debit(amount decimal.Decimal, fromBanned bool) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if fromBanned {
		if w.Banned.LessThan(amount) {
			return ErrInsufficientFunds
		}
		w.Banned = w.Banned.Sub(amount)
	} else if w.Available().LessThan(amount) {
		return ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

// DebitOverdraft removes amount without the available-funds check. Only the
// system wallet issues funds this way.
func (w *Wallet) DebitOverdraft(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

// Credit adds amount to the balance.
func (w *Wallet) Credit(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	w.Balance = w.Balance.Add(amount)
	return nil
}

// BanRecord is one freeze on a wallet. Released marks it lifted, either by
// an explicit release or by the transfer that consumed it.
type BanRecord struct {
	gorm.Model
	BanID      string          `gorm:"column:ban_id;type:varchar(32);uniqueIndex;not null" json:"ban_id"`
	WalletID   string          `gorm:"column:wallet_id;type:varchar(32);index;not null" json:"wallet_id"`
	Amount     decimal.Decimal `gorm:"column:amount;type:decimal(32,0);not null" json:"amount"`
	Reason     string          `gorm:"column:reason;type:varchar(255)" json:"reason,omitempty"`
	Released   bool            `gorm:"column:released;not null;default:0" json:"released"`
	ReleasedAt *time.Time      `gorm:"column:released_at" json:"released_at,omitempty"`
}

// Release marks the ban lifted.
func (b *BanRecord) Release() error {
	if b.Released {
		return ErrBanReleased
	}
	b.Released = true
	now := time.Now()
	b.ReleasedAt = &now
	return nil
}

// Transfer is a completed value movement between two wallets.
type Transfer struct {
	gorm.Model
	TransferID   string          `gorm:"column:transfer_id;type:varchar(32);uniqueIndex;not null" json:"transfer_id"`
	FromWalletID string          `gorm:"column:from_wallet_id;type:varchar(32);index;not null" json:"from_wallet_id"`
	ToWalletID   string          `gorm:"column:to_wallet_id;type:varchar(32);index;not null" json:"to_wallet_id"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(32,0);not null" json:"amount"`
	BanID        string          `gorm:"column:ban_id;type:varchar(32)" json:"ban_id,omitempty"`
	Reason       string          `gorm:"column:reason;type:varchar(255)" json:"reason,omitempty"`
}

// WalletRepository persists wallets.
type WalletRepository interface {
	Save(ctx context.Context, wallet *Wallet) error
	// Get returns the wallet, creating a zero-balance one when absent.
	Get(ctx context.Context, walletID string) (*Wallet, error)
}

// BanRepository persists ban records.
type BanRepository interface {
	Save(ctx context.Context, ban *BanRecord) error
	Get(ctx context.Context, banID string) (*BanRecord, error)
	ListActiveByWallet(ctx context.Context, walletID string) ([]*BanRecord, error)
}

// TransferRepository persists transfers.
type TransferRepository interface {
	Save(ctx context.Context, transfer *Transfer) error
	ListByWallet(ctx context.Context, walletID string, limit int) ([]*Transfer, error)
}
