package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
)

func TestRecreateApprovedMovesSliceToAnotherRequisite(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addInputRequisite("RQS-A", "W-lp1", "9800", "600000", "99999")
	env.addInputRequisite("RQS-B", "W-lp2", "9900", "600000", "99999")

	req := env.createActivatedRequest(t)
	require.Equal(t, domain.RequestStateInput, req.State)
	orders, _ := env.orders.ListByRequest(ctx, req.RequestID)
	require.Len(t, orders, 1)
	// the cheaper rate wins the first pass
	require.Equal(t, "RQS-A", orders[0].RequisiteID)

	orderRequest, err := env.orderRequestSvc.Create(ctx, CreateOrderRequestCommand{
		WalletID: "W-lp1",
		OrderID:  orders[0].OrderID,
		Type:     domain.OrderRequestRecreate,
		Reason:   "account frozen",
	})
	require.NoError(t, err)
	assert.Len(t, env.notifier.byKind(domain.NotifyAmendmentRaised), 1)

	require.NoError(t, env.orderRequestSvc.Approve(ctx, "W-client", orderRequest.OrderRequestID))

	// the old slice returned to matching with the requisite barred
	canceled, _ := env.orders.Get(ctx, orders[0].OrderID)
	assert.Equal(t, domain.OrderStateCanceled, canceled.State)
	assert.True(t, env.requisites.requisites["RQS-A"].CurrencyValue.Equal(dec("600000")))
	barred, _ := env.blacklist.ListByRequest(ctx, req.RequestID)
	assert.Contains(t, barred, "RQS-A")

	req, _ = env.requests.Get(ctx, req.RequestID)
	require.Equal(t, domain.RequestStateInputReservation, req.State)
	require.NoError(t, env.engine.MatchLeg(ctx, req.RequestID))

	live, _ := env.orders.ListLive(ctx, req.RequestID)
	require.Len(t, live, 1)
	assert.Equal(t, "RQS-B", live[0].RequisiteID)
}

func TestUpdateValueShrinkRematchesRemainder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addInputRequisite("RQS-A", "W-lp1", "9800", "600000", "99999")

	req := env.createActivatedRequest(t)
	orders, _ := env.orders.ListByRequest(ctx, req.RequestID)
	require.Len(t, orders, 1)
	order := orders[0]
	require.True(t, order.CurrencyValue.Equal(dec("500000")))

	orderRequest, err := env.orderRequestSvc.Create(ctx, CreateOrderRequestCommand{
		WalletID:      "W-lp1",
		OrderID:       order.OrderID,
		Type:          domain.OrderRequestUpdateValue,
		CurrencyValue: dec("300000"),
		Reason:        "daily limit reached",
	})
	require.NoError(t, err)
	assert.True(t, orderRequest.CurrencyValue.Equal(dec("300000")))
	assert.True(t, orderRequest.Value.Equal(dec("3061")))

	require.NoError(t, env.orderRequestSvc.Approve(ctx, "W-client", orderRequest.OrderRequestID))

	order, _ = env.orders.Get(ctx, order.OrderID)
	assert.True(t, order.CurrencyValue.Equal(dec("300000")))
	assert.True(t, order.Value.Equal(dec("3061")))
	// the freed capacity went back to the requisite
	assert.True(t, env.requisites.requisites["RQS-A"].CurrencyValue.Equal(dec("300000")))

	req, _ = env.requests.Get(ctx, req.RequestID)
	require.Equal(t, domain.RequestStateInputReservation, req.State)
	assert.True(t, req.PendingCurrencyValue.Equal(dec("200000")))

	// the remainder matches into a second order on the same requisite
	require.NoError(t, env.engine.MatchLeg(ctx, req.RequestID))
	req, _ = env.requests.Get(ctx, req.RequestID)
	assert.Equal(t, domain.RequestStateInput, req.State)
	live, _ := env.orders.ListLive(ctx, req.RequestID)
	require.Len(t, live, 2)
}

func TestUpdateValueTargetMustChangeTheOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addInputRequisite("RQS-A", "W-lp1", "9800", "600000", "99999")

	req := env.createActivatedRequest(t)
	orders, _ := env.orders.ListByRequest(ctx, req.RequestID)
	require.Len(t, orders, 1)

	_, err := env.orderRequestSvc.Create(ctx, CreateOrderRequestCommand{
		WalletID:      "W-lp1",
		OrderID:       orders[0].OrderID,
		Type:          domain.OrderRequestUpdateValue,
		CurrencyValue: dec("500000"),
	})
	assert.ErrorIs(t, err, domain.ErrAmendmentNotApprovable, "same amount is not an amendment")

	_, err = env.orderRequestSvc.Create(ctx, CreateOrderRequestCommand{
		WalletID:      "W-lp1",
		OrderID:       orders[0].OrderID,
		Type:          domain.OrderRequestUpdateValue,
		CurrencyValue: dec("50"),
	})
	assert.ErrorIs(t, err, domain.ErrAmendmentNotApprovable, "snaps below one div")
}

func TestUpdateValueGrowConsumesRemainderAndCapacity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	// per-order cap splits the leg across two providers
	rqsA := env.addInputRequisite("RQS-A", "W-lp1", "9800", "500000", "99999")
	rqsA.CurrencyValueMax = dec("300000")
	env.addInputRequisite("RQS-B", "W-lp2", "9900", "600000", "99999")

	req := env.createActivatedRequest(t)
	require.Equal(t, domain.RequestStateInput, req.State)
	orders, _ := env.orders.ListByRequest(ctx, req.RequestID)
	require.Len(t, orders, 2)
	var orderA, orderB *domain.Order
	for _, o := range orders {
		if o.RequisiteID == "RQS-A" {
			orderA = o
		} else {
			orderB = o
		}
	}
	require.NotNil(t, orderA)
	require.NotNil(t, orderB)
	require.True(t, orderA.CurrencyValue.Equal(dec("300000")))

	// the second provider backs out, their slice returns to pending
	require.NoError(t, env.orderSvc.Cancel(ctx, "W-lp2", orderB.OrderID, "cannot receive"))
	req, _ = env.requests.Get(ctx, req.RequestID)
	require.True(t, req.PendingCurrencyValue.Equal(dec("200000")))

	// the first provider offers to absorb half of the remainder
	orderRequest, err := env.orderRequestSvc.Create(ctx, CreateOrderRequestCommand{
		WalletID:      "W-lp1",
		OrderID:       orderA.OrderID,
		Type:          domain.OrderRequestUpdateValue,
		CurrencyValue: dec("400000"),
	})
	require.NoError(t, err)
	require.NoError(t, env.orderRequestSvc.Approve(ctx, "W-client", orderRequest.OrderRequestID))

	orderA, _ = env.orders.Get(ctx, orderA.OrderID)
	assert.True(t, orderA.CurrencyValue.Equal(dec("400000")))
	assert.True(t, orderA.Value.Equal(dec("4081")))
	// 500000 capacity minus the 400000 now reserved
	assert.True(t, env.requisites.requisites["RQS-A"].CurrencyValue.Equal(dec("100000")))
	req, _ = env.requests.Get(ctx, req.RequestID)
	assert.True(t, req.PendingCurrencyValue.Equal(dec("100000")))
}

func TestCancelAmendmentKeepsRequisiteEligible(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addInputRequisite("RQS-A", "W-lp1", "9800", "600000", "99999")

	req := env.createActivatedRequest(t)
	orders, _ := env.orders.ListByRequest(ctx, req.RequestID)
	require.Len(t, orders, 1)

	orderRequest, err := env.orderRequestSvc.Create(ctx, CreateOrderRequestCommand{
		WalletID: "W-client",
		OrderID:  orders[0].OrderID,
		Type:     domain.OrderRequestCancel,
		Reason:   "picked the wrong method",
	})
	require.NoError(t, err)

	// the holder cannot cancel one-sided while the amendment is open
	err = env.orderSvc.Cancel(ctx, "W-lp1", orders[0].OrderID, "mind changed")
	assert.ErrorIs(t, err, domain.ErrOrderRequestPending)

	require.NoError(t, env.orderRequestSvc.Approve(ctx, "W-lp1", orderRequest.OrderRequestID))

	canceled, _ := env.orders.Get(ctx, orders[0].OrderID)
	assert.Equal(t, domain.OrderStateCanceled, canceled.State)
	assert.Equal(t, domain.CanceledTwoSided, canceled.CanceledReason)
	// no blacklist entry, the requisite may match the slice again
	barred, _ := env.blacklist.ListByRequest(ctx, req.RequestID)
	assert.Empty(t, barred)
	require.NoError(t, env.engine.MatchLeg(ctx, req.RequestID))
	live, _ := env.orders.ListLive(ctx, req.RequestID)
	require.Len(t, live, 1)
	assert.Equal(t, "RQS-A", live[0].RequisiteID)
}

func TestAmendmentResolutionRules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addInputRequisite("RQS-A", "W-lp1", "9800", "600000", "99999")

	req := env.createActivatedRequest(t)
	orders, _ := env.orders.ListByRequest(ctx, req.RequestID)
	require.Len(t, orders, 1)
	orderID := orders[0].OrderID

	// outsiders cannot propose
	_, err := env.orderRequestSvc.Create(ctx, CreateOrderRequestCommand{
		WalletID: "W-other", OrderID: orderID, Type: domain.OrderRequestRecreate,
	})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	orderRequest, err := env.orderRequestSvc.Create(ctx, CreateOrderRequestCommand{
		WalletID: "W-lp1", OrderID: orderID, Type: domain.OrderRequestRecreate,
	})
	require.NoError(t, err)

	// one pending proposal per order
	_, err = env.orderRequestSvc.Create(ctx, CreateOrderRequestCommand{
		WalletID: "W-client", OrderID: orderID, Type: domain.OrderRequestRecreate,
	})
	assert.ErrorIs(t, err, domain.ErrOrderRequestPending)

	// the proposer cannot resolve their own proposal
	err = env.orderRequestSvc.Approve(ctx, "W-lp1", orderRequest.OrderRequestID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	err = env.orderRequestSvc.Reject(ctx, "W-other", orderRequest.OrderRequestID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	require.NoError(t, env.orderRequestSvc.Reject(ctx, "W-client", orderRequest.OrderRequestID))
	resolved, _ := env.orderRequests.Get(ctx, orderRequest.OrderRequestID)
	assert.Equal(t, domain.OrderRequestStateCanceled, resolved.State)
	assert.Len(t, env.notifier.byKind(domain.NotifyAmendmentDone), 1)

	// a rejection clears the slot for the next proposal
	_, err = env.orderRequestSvc.Create(ctx, CreateOrderRequestCommand{
		WalletID: "W-client", OrderID: orderID, Type: domain.OrderRequestRecreate,
	})
	assert.NoError(t, err)

	// the untouched order is still live, in PAYMENT since matching
	order, _ := env.orders.Get(ctx, orderID)
	assert.Equal(t, domain.OrderStatePayment, order.State)
}
