package nonce

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("skip: miniredis unavailable in this environment: %v", err)
	}
	t.Cleanup(srv.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewManager(rdb)
}

func TestGetNonce_ColdStartSeedsFromSystemNonce(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	n, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-1", 100, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(42), n)
}

func TestGetNonce_SecondStepAdvancesPastColdStart(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	n1, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-1", 100, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(42), n1)

	n2, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-2", 101, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(43), n2)
}

func TestGetNonce_RetryReturnsExistingAssignment(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	n1, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-1", 100, 42)
	require.NoError(t, err)

	// A retry for the same step (e.g. after a driver restart) must see the
	// same nonce rather than advancing the counter again.
	n2, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-1", 105, 42)
	require.NoError(t, err)
	require.Equal(t, n1, n2)

	n3, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-2", 106, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(43), n3)
}

func TestGetNonce_ReclaimsDroppedNonceForANewStep(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	n1, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-1", 100, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(42), n1)

	require.NoError(t, m.DropStep(ctx, "moonbeam", "0xabc", "step-1", n1))

	// While the dropped set is non-empty, next-nonce is blocked, so the very
	// next step to ask reclaims the dropped nonce instead of burning a fresh
	// one; once the dropped set drains, the step after that gets the next
	// counter value.
	n2, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-2", 101, 42)
	require.NoError(t, err)
	require.Equal(t, n1, n2)

	n3, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-3", 102, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(43), n3)
}

func TestGetNonce_DropStepFromIDLooksUpThenDrops(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	n1, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-1", 100, 42)
	require.NoError(t, err)

	require.NoError(t, m.DropStepFromID(ctx, "moonbeam", "0xabc", "step-1"))

	// step-1's assignment is now gone; a further lookup behaves as an
	// unassigned step, while the dropped nonce is reclaimable.
	_, err = m.attemptExistingAssignment(ctx, "moonbeam", "0xabc", "step-1")
	require.ErrorIs(t, err, ErrConditionalCheckFailed)

	n2, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-2", 101, 42)
	require.NoError(t, err)
	require.Equal(t, n1, n2)
}

func TestFinalizeStep_ClearsAssignmentWithoutReclaiming(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	n1, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-1", 100, 42)
	require.NoError(t, err)
	require.NoError(t, m.FinalizeStep(ctx, "moonbeam", "0xabc", "step-1"))

	// The nonce was consumed by a successful transaction: it must not be
	// handed out again via reclaim.
	n2, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-2", 101, 42)
	require.NoError(t, err)
	require.Equal(t, n1+1, n2)
}

func TestGetNonce_IndependentPerChainSignerPair(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	nMoonbeam, err := m.GetNonce(ctx, "moonbeam", "0xabc", "step-1", 100, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(5), nMoonbeam)

	nAstar, err := m.GetNonce(ctx, "astar", "0xabc", "step-1", 100, 9)
	require.NoError(t, err)
	require.Equal(t, uint64(9), nAstar)

	nOtherSigner, err := m.GetNonce(ctx, "moonbeam", "0xdef", "step-1", 100, 30)
	require.NoError(t, err)
	require.Equal(t, uint64(30), nOtherSigner)
}
