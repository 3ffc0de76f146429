package repositories

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	domainerrors "xchain-router.backend/internal/domain/errors"
	"xchain-router.backend/internal/execution"
)

var testEncKey = []byte("01234567890123456789012345678901")

func newTestPlanRepo(t *testing.T) *planRepo {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, db.AutoMigrate(&planRecord{}))
	return &planRepo{db: db, encryptionKey: testEncKey}
}

func samplePlan() *execution.ExecutionPlan {
	return &execution.ExecutionPlan{
		UUID: [16]byte{1, 2, 3, 4},
		PrestartTransfer: &execution.ExecutionStep{
			Kind:     execution.StepEthSend,
			AmountIn: uint256.NewInt(1000),
		},
		PostendTransfer: &execution.ExecutionStep{
			Kind: execution.StepEthSend,
		},
	}
}

func TestPlanRepo_SaveAndGetRoundTrips(t *testing.T) {
	r := newTestPlanRepo(t)
	ctx := context.Background()
	plan := samplePlan()

	require.NoError(t, r.Save(ctx, plan))

	got, err := r.Get(ctx, plan.UUID)
	require.NoError(t, err)
	require.Equal(t, plan.UUID, got.UUID)
	require.Equal(t, execution.StepEthSend, got.PrestartTransfer.Kind)
	require.Equal(t, uint64(1000), got.PrestartTransfer.AmountIn.Uint64())
}

func TestPlanRepo_GetMissingReturnsNotFound(t *testing.T) {
	r := newTestPlanRepo(t)
	_, err := r.Get(context.Background(), [16]byte{9, 9, 9})
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestPlanRepo_ListInProgressExcludesTerminalPlans(t *testing.T) {
	r := newTestPlanRepo(t)
	ctx := context.Background()

	inProgress := samplePlan()
	inProgress.UUID = [16]byte{1}
	inProgress.PrestartTransfer.Evm = &execution.EvmStatus{Phase: execution.EvmSubmitted}
	require.NoError(t, r.Save(ctx, inProgress))

	succeeded := samplePlan()
	succeeded.UUID = [16]byte{2}
	succeeded.PrestartTransfer.Evm = &execution.EvmStatus{Phase: execution.EvmConfirmed}
	succeeded.PostendTransfer.Evm = &execution.EvmStatus{Phase: execution.EvmConfirmed}
	require.NoError(t, r.Save(ctx, succeeded))

	ids, err := r.ListInProgress(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Equal(t, inProgress.UUID, ids[0])
}

func TestPlanRepo_DeleteRemovesRecord(t *testing.T) {
	r := newTestPlanRepo(t)
	ctx := context.Background()
	plan := samplePlan()
	require.NoError(t, r.Save(ctx, plan))

	require.NoError(t, r.Delete(ctx, plan.UUID))

	_, err := r.Get(ctx, plan.UUID)
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestPlanRepo_DecryptFailsWithWrongKey(t *testing.T) {
	r := newTestPlanRepo(t)
	ctx := context.Background()
	plan := samplePlan()
	require.NoError(t, r.Save(ctx, plan))

	wrongKeyRepo := &planRepo{db: r.db, encryptionKey: []byte("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")}
	_, err := wrongKeyRepo.Get(ctx, plan.UUID)
	require.Error(t, err)
}
