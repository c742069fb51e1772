package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitServesBurstPerKey(t *testing.T) {
	l := New(0.001, 2)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "midgard"))
	require.NoError(t, l.Wait(ctx, "midgard"))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(short, "midgard"), "burst exhausted")

	require.NoError(t, l.Wait(ctx, "other"), "keys are independent")
}

func TestWaitPacesRequests(t *testing.T) {
	l := New(50, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, "k"))
	}
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWaitHonoursCanceledContext(t *testing.T) {
	l := New(0.001, 1)
	require.NoError(t, l.Wait(context.Background(), "k"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}

func TestNilLimiterNeverBlocks(t *testing.T) {
	l := New(0, 5)
	assert.Nil(t, l)
	assert.NoError(t, l.Wait(context.Background(), "k"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx, "k"), context.Canceled)
}
