package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestWalletBanLifecycle(t *testing.T) {
	w := &Wallet{WalletID: "W-1", Balance: dec("1000")}

	require.NoError(t, w.ApplyBan(dec("400")))
	assert.True(t, w.Available().Equal(dec("600")))

	// banned funds are not spendable
	assert.ErrorIs(t, w.Debit(dec("700"), false), ErrInsufficientFunds)
	require.NoError(t, w.Debit(dec("600"), false))
	assert.True(t, w.Balance.Equal(dec("400")))

	w.LiftBan(dec("400"))
	assert.True(t, w.Available().Equal(dec("400")))
}

func TestWalletDebitFromBanned(t *testing.T) {
	w := &Wallet{WalletID: "W-1", Balance: dec("1000")}
	require.NoError(t, w.ApplyBan(dec("400")))

	require.NoError(t, w.Debit(dec("400"), true))
	assert.True(t, w.Balance.Equal(dec("600")))
	assert.True(t, w.Banned.IsZero())
}

func TestWalletRejectsNonPositiveAmounts(t *testing.T) {
	w := &Wallet{WalletID: "W-1", Balance: dec("1000")}
	assert.ErrorIs(t, w.ApplyBan(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, w.Credit(dec("-5")), ErrInvalidAmount)
	assert.ErrorIs(t, w.Debit(decimal.Zero, false), ErrInvalidAmount)
}

func TestBanRecordReleaseOnce(t *testing.T) {
	ban := &BanRecord{BanID: "BAN-1", WalletID: "W-1", Amount: dec("100")}
	require.NoError(t, ban.Release())
	assert.True(t, ban.Released)
	assert.ErrorIs(t, ban.Release(), ErrBanReleased)
}
