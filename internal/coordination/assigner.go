// Package coordination arbitrates which worker advances which execution
// plan and enforces prestart idempotency, so two workers never race to
// submit the same plan's legs twice.
package coordination

import (
	"context"
	"fmt"
	"time"

	"xchain-router.backend/pkg/redis"
)

const (
	activeExecPlanSetKey = "execplan:active"

	// DefaultLeaseDuration bounds how long a worker can hold an exec
	// plan before another worker is allowed to pick it up, covering a
	// worker crashing or losing connectivity mid-advance.
	DefaultLeaseDuration = 60 * time.Second
)

var (
	redisSetNX    = redis.SetNX
	redisDel      = redis.Del
	redisSAdd     = redis.SAdd
	redisSRem     = redis.SRem
	redisSMembers = redis.SMembers
)

func leaseKey(planUUID string) string {
	return fmt.Sprintf("execplan:lease:%s", planUUID)
}

// Assigner leases execution plans to workers and tracks which plans are
// still active, mirroring a conditional lease-acquire table: attempting
// to allocate a plan already leased by another worker is a normal,
// non-error outcome (the caller simply moves on to a different plan), not
// a failure.
type Assigner struct {
	leaseDuration time.Duration
}

// NewAssigner builds an Assigner with the given lease duration.
func NewAssigner(leaseDuration time.Duration) *Assigner {
	return &Assigner{leaseDuration: leaseDuration}
}

// AttemptAllocateExecPlan tries to acquire the lease for planUUID. The bool
// return is false, not an error, when another worker already holds the
// lease — callers should treat it as "try the next plan", not as a
// failure to log or retry.
func (a *Assigner) AttemptAllocateExecPlan(ctx context.Context, planUUID string) (bool, error) {
	return redisSetNX(ctx, leaseKey(planUUID), "leased", a.leaseDuration)
}

// UnallocateExecPlan releases planUUID's lease unconditionally and ensures
// the plan is present in the active set, so the next poll can pick it back
// up. It is also used, under the name RegisterExecPlan, to register a
// brand new plan: the write is identical in both cases — mark the plan
// active and unleased.
func (a *Assigner) UnallocateExecPlan(ctx context.Context, planUUID string) error {
	if err := redisSAdd(ctx, activeExecPlanSetKey, planUUID); err != nil {
		return err
	}
	return redisDel(ctx, leaseKey(planUUID))
}

// RegisterExecPlan registers a newly created plan as active and unleased.
// It is a literal alias for UnallocateExecPlan: registering a plan and
// releasing its lease are the same write.
func (a *Assigner) RegisterExecPlan(ctx context.Context, planUUID string) error {
	return a.UnallocateExecPlan(ctx, planUUID)
}

// RemoveCompletedExecPlan drops planUUID from the active set and clears
// its lease once the plan has reached a terminal Succeeded/Dropped/Failed
// status and no further advancing is needed.
func (a *Assigner) RemoveCompletedExecPlan(ctx context.Context, planUUID string) error {
	if err := redisSRem(ctx, activeExecPlanSetKey, planUUID); err != nil {
		return err
	}
	return redisDel(ctx, leaseKey(planUUID))
}

// GetExecPlanIds returns every plan UUID currently considered active,
// i.e. candidates for a worker's next AttemptAllocateExecPlan pass.
func (a *Assigner) GetExecPlanIds(ctx context.Context) ([]string, error) {
	return redisSMembers(ctx, activeExecPlanSetKey)
}
