package repositories

import (
	"context"

	"xchain-router.backend/internal/execution"
)

// PlanRepository persists ExecutionPlans as encrypted blobs, keyed by the
// plan's own UUID, so a worker that dies mid-tick can resume any
// InProgress plan from where it left off.
type PlanRepository interface {
	Save(ctx context.Context, plan *execution.ExecutionPlan) error
	Get(ctx context.Context, planUUID [16]byte) (*execution.ExecutionPlan, error)
	ListInProgress(ctx context.Context) ([][16]byte, error)
	Delete(ctx context.Context, planUUID [16]byte) error
}
