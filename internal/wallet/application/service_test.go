package application

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/p2pexchange/internal/wallet/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeWalletRepo struct {
	wallets map[string]*domain.Wallet
}

func (f *fakeWalletRepo) Save(_ context.Context, w *domain.Wallet) error {
	f.wallets[w.WalletID] = w
	return nil
}

func (f *fakeWalletRepo) Get(_ context.Context, id string) (*domain.Wallet, error) {
	if w, ok := f.wallets[id]; ok {
		return w, nil
	}
	w := &domain.Wallet{WalletID: id}
	f.wallets[id] = w
	return w, nil
}

type fakeBanRepo struct {
	bans map[string]*domain.BanRecord
}

func (f *fakeBanRepo) Save(_ context.Context, b *domain.BanRecord) error {
	f.bans[b.BanID] = b
	return nil
}

func (f *fakeBanRepo) Get(_ context.Context, id string) (*domain.BanRecord, error) {
	if b, ok := f.bans[id]; ok {
		return b, nil
	}
	return nil, domain.ErrBanNotFound
}

func (f *fakeBanRepo) ListActiveByWallet(_ context.Context, walletID string) ([]*domain.BanRecord, error) {
	var out []*domain.BanRecord
	for _, b := range f.bans {
		if b.WalletID == walletID && !b.Released {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeTransferRepo struct {
	transfers []*domain.Transfer
}

func (f *fakeTransferRepo) Save(_ context.Context, t *domain.Transfer) error {
	f.transfers = append(f.transfers, t)
	return nil
}

func (f *fakeTransferRepo) ListByWallet(_ context.Context, walletID string, _ int) ([]*domain.Transfer, error) {
	var out []*domain.Transfer
	for _, t := range f.transfers {
		if t.FromWalletID == walletID || t.ToWalletID == walletID {
			out = append(out, t)
		}
	}
	return out, nil
}

func newTestService() (*Service, *fakeWalletRepo, *fakeBanRepo, *fakeTransferRepo) {
	wallets := &fakeWalletRepo{wallets: make(map[string]*domain.Wallet)}
	bans := &fakeBanRepo{bans: make(map[string]*domain.BanRecord)}
	transfers := &fakeTransferRepo{}
	return NewService(wallets, bans, transfers), wallets, bans, transfers
}

func TestTransferMovesFunds(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _, transfers := newTestService()
	wallets.wallets["W-a"] = &domain.Wallet{WalletID: "W-a", Balance: dec("1000")}

	transferID, err := svc.Transfer(ctx, "W-a", "W-b", dec("300"), "", "settlement")
	require.NoError(t, err)
	assert.NotEmpty(t, transferID)

	assert.True(t, wallets.wallets["W-a"].Balance.Equal(dec("700")))
	assert.True(t, wallets.wallets["W-b"].Balance.Equal(dec("300")))
	require.Len(t, transfers.transfers, 1)
}

func TestTransferInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _, _ := newTestService()
	wallets.wallets["W-a"] = &domain.Wallet{WalletID: "W-a", Balance: dec("100")}

	_, err := svc.Transfer(ctx, "W-a", "W-b", dec("300"), "", "settlement")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestTransferConsumesBan(t *testing.T) {
	ctx := context.Background()
	svc, wallets, bans, _ := newTestService()
	wallets.wallets["W-a"] = &domain.Wallet{WalletID: "W-a", Balance: dec("1000")}

	banID, err := svc.Ban(ctx, "W-a", dec("500"), "payout backing")
	require.NoError(t, err)
	assert.True(t, wallets.wallets["W-a"].Available().Equal(dec("500")))

	// moving less than the ban thaws the excess back
	_, err = svc.Transfer(ctx, "W-a", "W-b", dec("400"), banID, "settlement")
	require.NoError(t, err)

	from := wallets.wallets["W-a"]
	assert.True(t, from.Balance.Equal(dec("600")))
	assert.True(t, from.Banned.IsZero())
	assert.True(t, bans.bans[banID].Released)
	assert.True(t, wallets.wallets["W-b"].Balance.Equal(dec("400")))
}

func TestReleaseBan(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _, _ := newTestService()
	wallets.wallets["W-a"] = &domain.Wallet{WalletID: "W-a", Balance: dec("1000")}

	banID, err := svc.Ban(ctx, "W-a", dec("500"), "payout backing")
	require.NoError(t, err)
	require.NoError(t, svc.ReleaseBan(ctx, banID))

	assert.True(t, wallets.wallets["W-a"].Available().Equal(dec("1000")))
	assert.ErrorIs(t, svc.ReleaseBan(ctx, banID), domain.ErrBanReleased)
}

func TestDepositOverdraftsSystemWallet(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _, _ := newTestService()

	_, err := svc.Deposit(ctx, "W-a", dec("1000"), "seed")
	require.NoError(t, err)
	assert.True(t, wallets.wallets["W-a"].Balance.Equal(dec("1000")))
	assert.True(t, wallets.wallets[domain.SystemWalletID].Balance.Equal(dec("-1000")))
}

func TestChargeToSystemWallet(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _, _ := newTestService()
	wallets.wallets["W-a"] = &domain.Wallet{WalletID: "W-a", Balance: dec("1000")}

	_, err := svc.Charge(ctx, "W-a", dec("25"), "commission")
	require.NoError(t, err)
	assert.True(t, wallets.wallets["W-a"].Balance.Equal(dec("975")))
	assert.True(t, wallets.wallets[domain.SystemWalletID].Balance.Equal(dec("25")))
}
