package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRequestResolution(t *testing.T) {
	ctx := context.Background()

	amendment := &OrderRequest{
		OrderRequestID:   "ORQ-1",
		OrderID:          "ORD-1",
		Type:             OrderRequestRecreate,
		State:            OrderRequestStateWait,
		ProposerWalletID: "W-maker",
	}
	assert.True(t, amendment.IsPending())

	require.NoError(t, amendment.Approve(ctx))
	assert.Equal(t, OrderRequestStateCompleted, amendment.State)
	assert.False(t, amendment.IsPending())
	require.NotNil(t, amendment.ResolvedAt)

	// resolved amendments stay resolved
	err := amendment.Reject(ctx)
	require.Error(t, err)
	assert.True(t, IsStateError(err))
	assert.Equal(t, OrderRequestStateCompleted, amendment.State)
}

func TestOrderRequestReject(t *testing.T) {
	ctx := context.Background()
	amendment := &OrderRequest{
		OrderRequestID: "ORQ-2",
		OrderID:        "ORD-1",
		Type:           OrderRequestUpdateValue,
		State:          OrderRequestStateWait,
	}
	require.NoError(t, amendment.Reject(ctx))
	assert.Equal(t, OrderRequestStateCanceled, amendment.State)

	require.Error(t, amendment.Approve(ctx))
}
