package application

import (
	"context"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
)

// RequestDetail is a request with its orders.
type RequestDetail struct {
	Request *domain.Request `json:"request"`
	Orders  []*domain.Order `json:"orders"`
}

// QueryService serves the read side: requests, orders, requisites and
// reference data, always scoped to the calling wallet where ownership
// applies.
type QueryService struct {
	requests      domain.RequestRepository
	orders        domain.OrderRepository
	orderRequests domain.OrderRequestRepository
	requisites    domain.RequisiteRepository
	currencies    domain.CurrencyRepository
	methods       domain.MethodRepository
}

func NewQueryService(
	requests domain.RequestRepository,
	orders domain.OrderRepository,
	orderRequests domain.OrderRequestRepository,
	requisites domain.RequisiteRepository,
	currencies domain.CurrencyRepository,
	methods domain.MethodRepository,
) *QueryService {
	return &QueryService{
		requests:      requests,
		orders:        orders,
		orderRequests: orderRequests,
		requisites:    requisites,
		currencies:    currencies,
		methods:       methods,
	}
}

// GetRequest returns the caller's request with its orders.
func (s *QueryService) GetRequest(ctx context.Context, walletID, requestID string) (*RequestDetail, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.WalletID != walletID {
		return nil, domain.ErrPermissionDenied
	}
	orders, err := s.orders.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &RequestDetail{Request: req, Orders: orders}, nil
}

// ListRequests returns the caller's requests, optionally filtered by state.
func (s *QueryService) ListRequests(ctx context.Context, walletID string, states []string) ([]*domain.Request, error) {
	return s.requests.ListByWallet(ctx, walletID, states)
}

// GetOrder returns an order either side of which the caller is.
func (s *QueryService) GetOrder(ctx context.Context, walletID, orderID string) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.WalletID != walletID && order.RequisiteWalletID != walletID {
		return nil, domain.ErrPermissionDenied
	}
	return order, nil
}

// ListProviderOrders returns orders hitting the caller's requisites.
func (s *QueryService) ListProviderOrders(ctx context.Context, walletID string, states []string) ([]*domain.Order, error) {
	return s.orders.ListByRequisiteWallet(ctx, walletID, states)
}

// ListOrderRequests returns the amendments on an order visible to the
// caller.
func (s *QueryService) ListOrderRequests(ctx context.Context, walletID, orderID string) ([]*domain.OrderRequest, error) {
	if _, err := s.GetOrder(ctx, walletID, orderID); err != nil {
		return nil, err
	}
	return s.orderRequests.ListByOrder(ctx, orderID)
}

// ListRequisites returns the caller's requisites.
func (s *QueryService) ListRequisites(ctx context.Context, walletID string) ([]*domain.Requisite, error) {
	return s.requisites.ListByWallet(ctx, walletID)
}

// ListCurrencies returns the currency catalog.
func (s *QueryService) ListCurrencies(ctx context.Context) ([]*domain.Currency, error) {
	return s.currencies.List(ctx)
}

// ListMethods returns the active methods of a currency.
func (s *QueryService) ListMethods(ctx context.Context, currencyID string) ([]*domain.Method, error) {
	return s.methods.ListByCurrency(ctx, currencyID)
}
