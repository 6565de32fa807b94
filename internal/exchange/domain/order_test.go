package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(typ OrderType) *Order {
	return &Order{
		OrderID:           "ORD-1",
		RequestID:         "REQ-1",
		RequisiteID:       "RQS-1",
		Type:              typ,
		State:             OrderStateWaiting,
		WalletID:          "W-client",
		RequisiteWalletID: "W-maker",
	}
}

func TestOrderHappyPath(t *testing.T) {
	ctx := context.Background()
	order := newTestOrder(OrderTypeInput)

	require.NoError(t, order.Pay(ctx))
	assert.Equal(t, OrderStatePayment, order.State)

	require.NoError(t, order.Confirm(ctx, `{"receipt":"abc"}`))
	assert.Equal(t, OrderStateConfirmation, order.State)
	require.NotNil(t, order.PaidAt)

	require.NoError(t, order.Complete(ctx))
	assert.Equal(t, OrderStateCompleted, order.State)
	assert.True(t, order.IsTerminal())
	require.NotNil(t, order.CompletedAt)
}

func TestOrderConfirmRequiresFields(t *testing.T) {
	ctx := context.Background()
	order := newTestOrder(OrderTypeInput)
	require.NoError(t, order.Pay(ctx))

	err := order.Confirm(ctx, "")
	assert.ErrorIs(t, err, ErrConfirmationFields)
	assert.Equal(t, OrderStatePayment, order.State)
}

func TestOrderCancelFromLiveStates(t *testing.T) {
	ctx := context.Background()

	for _, arrange := range []func(o *Order){
		func(o *Order) {},
		func(o *Order) { _ = o.Pay(ctx) },
		func(o *Order) { _ = o.Pay(ctx); _ = o.Confirm(ctx, "{}") },
	} {
		order := newTestOrder(OrderTypeOutput)
		arrange(order)
		require.NoError(t, order.Cancel(ctx))
		assert.Equal(t, OrderStateCanceled, order.State)
	}

	order := newTestOrder(OrderTypeOutput)
	require.NoError(t, order.Pay(ctx))
	require.NoError(t, order.Confirm(ctx, "{}"))
	require.NoError(t, order.Complete(ctx))
	err := order.Cancel(ctx)
	require.Error(t, err)
	assert.True(t, IsStateError(err))
}

func TestOrderTransitionsAreOneWay(t *testing.T) {
	ctx := context.Background()
	order := newTestOrder(OrderTypeInput)
	require.NoError(t, order.Pay(ctx))
	require.Error(t, order.Pay(ctx))
	require.Error(t, order.Complete(ctx))
}

func TestOrderSides(t *testing.T) {
	input := newTestOrder(OrderTypeInput)
	assert.Equal(t, "W-client", input.PayerWalletID())
	assert.Equal(t, "W-maker", input.ReceiverWalletID())

	output := newTestOrder(OrderTypeOutput)
	assert.Equal(t, "W-maker", output.PayerWalletID())
	assert.Equal(t, "W-client", output.ReceiverWalletID())

	assert.Equal(t, OrderTypeOutput, OrderTypeInput.Opposite())
	assert.Equal(t, OrderTypeInput, OrderTypeOutput.Opposite())
}
