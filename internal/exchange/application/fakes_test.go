package application

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeRequestRepo struct {
	requests map[string]*domain.Request
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[string]*domain.Request)}
}

func (f *fakeRequestRepo) Save(_ context.Context, r *domain.Request) error {
	f.requests[r.RequestID] = r
	return nil
}

func (f *fakeRequestRepo) Get(_ context.Context, id string) (*domain.Request, error) {
	if r, ok := f.requests[id]; ok {
		return r, nil
	}
	return nil, domain.ErrRequestNotFound
}

func (f *fakeRequestRepo) ListByWallet(_ context.Context, walletID string, states []string) ([]*domain.Request, error) {
	var out []*domain.Request
	for _, r := range f.requests {
		if r.WalletID == walletID && stateMatch(r.State, states) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) ListByState(_ context.Context, states []string, _ int) ([]*domain.Request, error) {
	var out []*domain.Request
	for _, r := range f.requests {
		if stateMatch(r.State, states) {
			out = append(out, r)
		}
	}
	return out, nil
}

func stateMatch(state string, states []string) bool {
	if len(states) == 0 {
		return true
	}
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

type fakeOrderRepo struct {
	orders map[string]*domain.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*domain.Order)}
}

func (f *fakeOrderRepo) Save(_ context.Context, o *domain.Order) error {
	f.orders[o.OrderID] = o
	return nil
}

func (f *fakeOrderRepo) Get(_ context.Context, id string) (*domain.Order, error) {
	if o, ok := f.orders[id]; ok {
		return o, nil
	}
	return nil, domain.ErrOrderNotFound
}

func (f *fakeOrderRepo) ListByRequest(_ context.Context, requestID string) ([]*domain.Order, error) {
	return f.filter(func(o *domain.Order) bool { return o.RequestID == requestID }), nil
}

func (f *fakeOrderRepo) ListByRequisiteWallet(_ context.Context, walletID string, states []string) ([]*domain.Order, error) {
	return f.filter(func(o *domain.Order) bool {
		return o.RequisiteWalletID == walletID && stateMatch(o.State, states)
	}), nil
}

func (f *fakeOrderRepo) ListLive(_ context.Context, requestID string) ([]*domain.Order, error) {
	return f.filter(func(o *domain.Order) bool {
		return o.RequestID == requestID && !o.IsTerminal()
	}), nil
}

func (f *fakeOrderRepo) filter(keep func(*domain.Order) bool) []*domain.Order {
	var out []*domain.Order
	for _, o := range f.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

type fakeCurrencyRepo struct {
	currencies map[string]*domain.Currency
}

func (f *fakeCurrencyRepo) Get(_ context.Context, id string) (*domain.Currency, error) {
	if c, ok := f.currencies[id]; ok {
		return c, nil
	}
	return nil, domain.ErrCurrencyNotFound
}

func (f *fakeCurrencyRepo) List(_ context.Context) ([]*domain.Currency, error) {
	var out []*domain.Currency
	for _, c := range f.currencies {
		out = append(out, c)
	}
	return out, nil
}

type fakeMethodRepo struct {
	methods map[string]*domain.Method
}

func (f *fakeMethodRepo) Save(_ context.Context, m *domain.Method) error {
	f.methods[m.MethodID] = m
	return nil
}

func (f *fakeMethodRepo) Get(_ context.Context, id string) (*domain.Method, error) {
	if m, ok := f.methods[id]; ok {
		return m, nil
	}
	return nil, domain.ErrMethodNotFound
}

func (f *fakeMethodRepo) ListByCurrency(_ context.Context, currencyID string) ([]*domain.Method, error) {
	var out []*domain.Method
	for _, m := range f.methods {
		if m.CurrencyID == currencyID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeRequisiteRepo struct {
	requisites map[string]*domain.Requisite
	claimed    map[string]bool
}

func newFakeRequisiteRepo() *fakeRequisiteRepo {
	return &fakeRequisiteRepo{
		requisites: make(map[string]*domain.Requisite),
		claimed:    make(map[string]bool),
	}
}

func (f *fakeRequisiteRepo) Save(_ context.Context, r *domain.Requisite) error {
	f.requisites[r.RequisiteID] = r
	return nil
}

func (f *fakeRequisiteRepo) Get(_ context.Context, id string) (*domain.Requisite, error) {
	if r, ok := f.requisites[id]; ok {
		return r, nil
	}
	return nil, domain.ErrRequisiteNotFound
}

func (f *fakeRequisiteRepo) ListByWallet(_ context.Context, walletID string) ([]*domain.Requisite, error) {
	var out []*domain.Requisite
	for _, r := range f.requisites {
		if r.WalletID == walletID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequisiteRepo) Candidates(_ context.Context, currencyID string, typ domain.OrderType, order domain.RateOrder, exclude []string) ([]*domain.Requisite, error) {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []*domain.Requisite
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
		if order == domain.RateDescending {
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

type fakeOrderRequestRepo struct {
	orderRequests map[string]*domain.OrderRequest
}

func newFakeOrderRequestRepo() *fakeOrderRequestRepo {
	return &fakeOrderRequestRepo{orderRequests: make(map[string]*domain.OrderRequest)}
}

func (f *fakeOrderRequestRepo) Save(_ context.Context, or *domain.OrderRequest) error {
	f.orderRequests[or.OrderRequestID] = or
	return nil
}

func (f *fakeOrderRequestRepo) Get(_ context.Context, id string) (*domain.OrderRequest, error) {
	if or, ok := f.orderRequests[id]; ok {
		return or, nil
	}
	return nil, domain.ErrOrderRequestNotFound
}

func (f *fakeOrderRequestRepo) GetPending(_ context.Context, orderID string) (*domain.OrderRequest, error) {
	for _, or := range f.orderRequests {
		if or.OrderID == orderID && or.IsPending() {
			return or, nil
		}
	}
	return nil, domain.ErrOrderRequestNotFound
}

func (f *fakeOrderRequestRepo) ListByOrder(_ context.Context, orderID string) ([]*domain.OrderRequest, error) {
	var out []*domain.OrderRequest
	for _, or := range f.orderRequests {
		if or.OrderID == orderID {
			out = append(out, or)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	notifications []*domain.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n *domain.Notification) error {
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recordingNotifier) byKind(kind string) []*domain.Notification {
	var out []*domain.Notification
	for _, n := range r.notifications {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type ledgerCall struct {
	op     string
	from   string
	to     string
	amount decimal.Decimal
	banID  string
}

type recordingLedger struct {
	calls []ledgerCall
	seq   int
}

func (l *recordingLedger) Ban(_ context.Context, walletID string, amount decimal.Decimal, _ string) (string, error) {
	l.seq++
	banID := "BAN-" + walletID
	l.calls = append(l.calls, ledgerCall{op: "ban", from: walletID, amount: amount, banID: banID})
	return banID, nil
}

func (l *recordingLedger) ReleaseBan(_ context.Context, banID string) error {
	l.calls = append(l.calls, ledgerCall{op: "release", banID: banID})
	return nil
}

func (l *recordingLedger) Transfer(_ context.Context, from, to string, amount decimal.Decimal, banID, _ string) (string, error) {
	l.seq++
	l.calls = append(l.calls, ledgerCall{op: "transfer", from: from, to: to, amount: amount, banID: banID})
	return "TRF-test", nil
}

func (l *recordingLedger) Deposit(_ context.Context, walletID string, amount decimal.Decimal, _ string) (string, error) {
	l.calls = append(l.calls, ledgerCall{op: "deposit", to: walletID, amount: amount})
	return "TRF-test", nil
}

func (l *recordingLedger) Charge(_ context.Context, walletID string, amount decimal.Decimal, _ string) (string, error) {
	l.calls = append(l.calls, ledgerCall{op: "charge", from: walletID, amount: amount})
	return "TRF-test", nil
}

func (l *recordingLedger) byOp(op string) []ledgerCall {
	var out []ledgerCall
	for _, c := range l.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

type fakeActionLog struct {
	touched map[string]time.Time
}

func newFakeActionLog() *fakeActionLog {
	return &fakeActionLog{touched: make(map[string]time.Time)}
}

func (l *fakeActionLog) Record(_ context.Context, _, _, entity, entityID, _ string) error {
	l.touched[entity+":"+entityID] = time.Now()
	return nil
}

func (l *fakeActionLog) LastActionAt(_ context.Context, entity, entityID string) (time.Time, error) {
	return l.touched[entity+":"+entityID], nil
}

type mapRateSource struct {
	rates map[string]decimal.Decimal
}

func (m *mapRateSource) Rate(_ context.Context, currencyID string) (decimal.Decimal, error) {
	if r, ok := m.rates[currencyID]; ok {
		return r, nil
	}
	return decimal.Zero, domain.ErrRateUnavailable
}
