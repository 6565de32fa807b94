package domain

import (
	"context"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequisiteRepo struct {
	requisites map[string]*Requisite
	claimed    map[string]bool
	releases   []string
}

func newFakeRequisiteRepo(requisites ...*Requisite) *fakeRequisiteRepo {
	repo := &fakeRequisiteRepo{
		requisites: make(map[string]*Requisite),
		claimed:    make(map[string]bool),
	}
	for _, r := range requisites {
		repo.requisites[r.RequisiteID] = r
	}
	return repo
}

func (f *fakeRequisiteRepo) Save(_ context.Context, requisite *Requisite) error {
	f.requisites[requisite.RequisiteID] = requisite
	return nil
}

func (f *fakeRequisiteRepo) Get(_ context.Context, id string) (*Requisite, error) {
	r, ok := f.requisites[id]
	if !ok {
		return nil, ErrRequisiteNotFound
	}
	return r, nil
}

func (f *fakeRequisiteRepo) ListByWallet(_ context.Context, walletID string) ([]*Requisite, error) {
	var out []*Requisite
	for _, r := range f.requisites {
		if r.WalletID == walletID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequisiteRepo) Candidates(_ context.Context, currencyID string, typ OrderType, order RateOrder, exclude []string) ([]*Requisite, error) {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []*Requisite
	for _, r := range f.requisites {
		if r.CurrencyID != currencyID || r.Type != typ || !r.IsActive || f.claimed[r.RequisiteID] || skip[r.RequisiteID] {
			continue
		}
		if r.CurrencyValue.Sign() <= 0 || r.Value.Sign() <= 0 {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if order == RateDescending {
			return out[i].Rate.GreaterThan(out[j].Rate)
		}
		return out[i].Rate.LessThan(out[j].Rate)
	})
	return out, nil
}

func (f *fakeRequisiteRepo) TryClaim(_ context.Context, id string) (bool, error) {
	if f.claimed[id] {
		return false, nil
	}
	f.claimed[id] = true
	return true, nil
}

func (f *fakeRequisiteRepo) Release(_ context.Context, id string) error {
	delete(f.claimed, id)
	f.releases = append(f.releases, id)
	return nil
}

func (f *fakeRequisiteRepo) Delete(_ context.Context, id string) error {
	delete(f.requisites, id)
	return nil
}

type fakeBlacklistRepo struct {
	entries map[string][]string
}

func newFakeBlacklistRepo() *fakeBlacklistRepo {
	return &fakeBlacklistRepo{entries: make(map[string][]string)}
}

func (f *fakeBlacklistRepo) Add(_ context.Context, requestID, requisiteID string) error {
	f.entries[requestID] = append(f.entries[requestID], requisiteID)
	return nil
}

func (f *fakeBlacklistRepo) ListByRequest(_ context.Context, requestID string) ([]string, error) {
	return f.entries[requestID], nil
}

func testCurrency() *Currency {
	return &Currency{IDStr: "BTC", Decimal: 8, RateDecimal: 2, Div: dec("100")}
}

func inputRequisite(id, wallet, rate, capacityCV, capacityValue string) *Requisite {
	return &Requisite{
		RequisiteID:   id,
		Type:          OrderTypeInput,
		WalletID:      wallet,
		CurrencyID:    "BTC",
		Rate:          dec(rate),
		CurrencyValue: dec(capacityCV),
		Value:         dec(capacityValue),
		IsActive:      true,
	}
}

func TestAllocateByCurrencyCoversTarget(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRequisiteRepo(
		inputRequisite("RQS-1", "W-a", "9800", "300000", "100000"),
		inputRequisite("RQS-2", "W-b", "10000", "300000", "100000"),
	)
	alloc := NewAllocator(repo, newFakeBlacklistRepo())
	req := &Request{RequestID: "REQ-1", WalletID: "W-client"}

	plan, err := alloc.AllocateByCurrency(ctx, req, testCurrency(), dec("500000"))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)

	// best rate first, then the remainder
	assert.Equal(t, "RQS-1", plan.Allocations[0].Requisite.RequisiteID)
	assert.True(t, plan.Allocations[0].CurrencyValue.Equal(dec("300000")))
	assert.Equal(t, "RQS-2", plan.Allocations[1].Requisite.RequisiteID)
	assert.True(t, plan.Allocations[1].CurrencyValue.Equal(dec("200000")))

	total := decimal.Zero
	for _, a := range plan.Allocations {
		total = total.Add(a.CurrencyValue)
	}
	assert.True(t, total.Equal(dec("500000")))

	// claims stay held for the order factory
	assert.True(t, repo.claimed["RQS-1"])
	assert.True(t, repo.claimed["RQS-2"])
}

func TestAllocateSkipsBelowMinimum(t *testing.T) {
	ctx := context.Background()
	small := inputRequisite("RQS-min", "W-a", "9700", "300000", "100000")
	small.CurrencyValueMin = dec("250000")
	repo := newFakeRequisiteRepo(
		small,
		inputRequisite("RQS-2", "W-b", "9800", "300000", "100000"),
	)
	alloc := NewAllocator(repo, newFakeBlacklistRepo())
	req := &Request{RequestID: "REQ-1", WalletID: "W-client"}

	// only 200000 is needed, under RQS-min's floor
	plan, err := alloc.AllocateByCurrency(ctx, req, testCurrency(), dec("200000"))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, "RQS-2", plan.Allocations[0].Requisite.RequisiteID)

	// the unusable requisite was claimed, evaluated and given back
	assert.False(t, repo.claimed["RQS-min"])
	assert.Contains(t, repo.releases, "RQS-min")
}

func TestAllocateHonorsClaims(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRequisiteRepo(
		inputRequisite("RQS-1", "W-a", "9800", "300000", "100000"),
		inputRequisite("RQS-2", "W-b", "10000", "300000", "100000"),
	)
	repo.claimed["RQS-1"] = true
	alloc := NewAllocator(repo, newFakeBlacklistRepo())
	req := &Request{RequestID: "REQ-1", WalletID: "W-client"}

	plan, err := alloc.AllocateByCurrency(ctx, req, testCurrency(), dec("200000"))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, "RQS-2", plan.Allocations[0].Requisite.RequisiteID)
}

func TestAllocateAbandonsOnShortfall(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRequisiteRepo(
		inputRequisite("RQS-1", "W-a", "9800", "300000", "100000"),
	)
	alloc := NewAllocator(repo, newFakeBlacklistRepo())
	req := &Request{RequestID: "REQ-1", WalletID: "W-client"}

	_, err := alloc.AllocateByCurrency(ctx, req, testCurrency(), dec("900000"))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	// abandonment returns every claim
	assert.Empty(t, repo.claimed)
	assert.Contains(t, repo.releases, "RQS-1")
}

func TestAllocateSkipsOwnWalletAndBlacklist(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRequisiteRepo(
		inputRequisite("RQS-own", "W-client", "9000", "900000", "900000"),
		inputRequisite("RQS-black", "W-a", "9100", "900000", "900000"),
		inputRequisite("RQS-ok", "W-b", "9800", "900000", "900000"),
	)
	blacklist := newFakeBlacklistRepo()
	require.NoError(t, blacklist.Add(ctx, "REQ-1", "RQS-black"))
	alloc := NewAllocator(repo, blacklist)
	req := &Request{RequestID: "REQ-1", WalletID: "W-client"}

	plan, err := alloc.AllocateByCurrency(ctx, req, testCurrency(), dec("200000"))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, "RQS-ok", plan.Allocations[0].Requisite.RequisiteID)
}

func TestAllocateAcceptsDustResidual(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRequisiteRepo(
		inputRequisite("RQS-1", "W-a", "9800", "1000000", "900000"),
	)
	alloc := NewAllocator(repo, newFakeBlacklistRepo())
	req := &Request{RequestID: "REQ-1", WalletID: "W-client"}

	// residual 50 is below the div and can never match
	plan, err := alloc.AllocateByCurrency(ctx, req, testCurrency(), dec("1000050"))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.True(t, plan.Allocations[0].CurrencyValue.Equal(dec("1000000")))
	assert.True(t, plan.ResidualCurrencyValue.Equal(dec("50")))
}

func TestAllocateByValueDustResidual(t *testing.T) {
	ctx := context.Background()
	payout := &Requisite{
		RequisiteID:   "RQS-out",
		Type:          OrderTypeOutput,
		WalletID:      "W-maker",
		CurrencyID:    "BTC",
		Rate:          dec("250"),
		CurrencyValue: dec("12700"),
		Value:         dec("5080"),
		IsActive:      true,
	}
	repo := newFakeRequisiteRepo(payout)
	alloc := NewAllocator(repo, newFakeBlacklistRepo())
	req := &Request{RequestID: "REQ-1", WalletID: "W-client"}

	// the 22 value left over snaps below the div and is written off
	plan, err := alloc.AllocateByValue(ctx, req, testCurrency(), dec("5102"))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.True(t, plan.Allocations[0].Value.Equal(dec("5080")))
	assert.True(t, plan.ResidualValue.Equal(dec("22")))
}

func TestAllocateByValue(t *testing.T) {
	ctx := context.Background()
	payout := &Requisite{
		RequisiteID:   "RQS-out",
		Type:          OrderTypeOutput,
		WalletID:      "W-maker",
		CurrencyID:    "BTC",
		Rate:          dec("10000"),
		CurrencyValue: dec("600000"),
		Value:         dec("6000"),
		IsActive:      true,
	}
	repo := newFakeRequisiteRepo(payout)
	alloc := NewAllocator(repo, newFakeBlacklistRepo())
	req := &Request{RequestID: "REQ-1", WalletID: "W-client"}

	plan, err := alloc.AllocateByValue(ctx, req, testCurrency(), dec("5000"))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.True(t, plan.Allocations[0].Value.Equal(dec("5000")), "got %s", plan.Allocations[0].Value)
	assert.True(t, plan.Allocations[0].CurrencyValue.Equal(dec("500000")), "got %s", plan.Allocations[0].CurrencyValue)
}

func TestAllocateSkipsZeroRateCandidate(t *testing.T) {
	ctx := context.Background()
	broken := inputRequisite("RQS-broken", "W-a", "0", "900000", "900000")
	broken.IsFlex = true
	repo := newFakeRequisiteRepo(
		broken,
		inputRequisite("RQS-ok", "W-b", "9800", "900000", "900000"),
	)
	alloc := NewAllocator(repo, newFakeBlacklistRepo())
	req := &Request{RequestID: "REQ-1", WalletID: "W-client"}

	// the unpriced requisite is skipped, not fatal to the pass
	plan, err := alloc.AllocateByCurrency(ctx, req, testCurrency(), dec("500000"))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, "RQS-ok", plan.Allocations[0].Requisite.RequisiteID)
	assert.False(t, repo.claimed["RQS-broken"])
	assert.Contains(t, repo.releases, "RQS-broken")
}

func TestAllocateAbandonsFullDivResidual(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRequisiteRepo(
		inputRequisite("RQS-1", "W-a", "25000", "499900", "900000"),
	)
	alloc := NewAllocator(repo, newFakeBlacklistRepo())
	req := &Request{RequestID: "REQ-1", WalletID: "W-client"}

	// the 100 shortfall is a full div, even though it is worth zero value
	// at this rate
	_, err := alloc.AllocateByCurrency(ctx, req, testCurrency(), dec("500000"))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.Empty(t, repo.claimed)
}
