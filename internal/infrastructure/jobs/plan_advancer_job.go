package jobs

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"xchain-router.backend/internal/domain/repositories"
	"xchain-router.backend/internal/execution"
	"xchain-router.backend/pkg/logger"
)

// planDriver is the one Driver method this job needs, narrowed to an
// interface so a test can exercise the ticking/error-handling logic without
// building a full Executor (real EVM/Substrate clients, signers, a nonce
// manager). *execution.Driver satisfies this with no changes.
type planDriver interface {
	Advance(ctx context.Context, plan *execution.ExecutionPlan) error
}

// planAssigner is the slice of coordination.Assigner this job needs,
// narrowed so a test can fake lease contention without a live Redis.
// *coordination.Assigner satisfies this with no changes.
type planAssigner interface {
	GetExecPlanIds(ctx context.Context) ([]string, error)
	AttemptAllocateExecPlan(ctx context.Context, planUUID string) (bool, error)
	UnallocateExecPlan(ctx context.Context, planUUID string) error
	RemoveCompletedExecPlan(ctx context.Context, planUUID string) error
}

// PlanAdvancerJob ticks over every plan the Assigner considers active,
// leases each one for the duration of a single driver tick, and calls
// Driver.Advance on it, persisting the result. Grounded on the teacher's
// PaymentRequestExpiryJob: a ticker-driven background loop that wakes on a
// fixed interval, pulls a batch of rows needing attention, and processes
// each - generalized here from "expire stale payment requests" to "advance
// every active plan one driver tick", the cooperative-polling execution
// model §5 calls for instead of a dedicated goroutine per in-flight plan.
// The Assigner lease is what lets more than one worker process run this job
// concurrently without two workers racing to submit the same plan's legs.
type PlanAdvancerJob struct {
	plans    repositories.PlanRepository
	driver   planDriver
	assigner planAssigner
	interval time.Duration
	stop     chan struct{}
}

func NewPlanAdvancerJob(plans repositories.PlanRepository, driver *execution.Driver, assigner planAssigner, interval time.Duration) *PlanAdvancerJob {
	return &PlanAdvancerJob{
		plans:    plans,
		driver:   driver,
		assigner: assigner,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (j *PlanAdvancerJob) Start(ctx context.Context) {
	logger.Info(ctx, "starting plan advancer job", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "plan advancer job stopped (context cancelled)")
			return
		case <-j.stop:
			logger.Info(ctx, "plan advancer job stopped")
			return
		case <-ticker.C:
			j.advanceAll(ctx)
		}
	}
}

func (j *PlanAdvancerJob) Stop() {
	close(j.stop)
}

func (j *PlanAdvancerJob) advanceAll(ctx context.Context) {
	ids, err := j.assigner.GetExecPlanIds(ctx)
	if err != nil {
		logger.Error(ctx, "failed to list active exec plan ids", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}

	for _, planUUIDHex := range ids {
		j.advanceOne(ctx, planUUIDHex)
	}
}

// advanceOne leases planUUIDHex, advances it one driver tick if the lease
// was acquired, and releases the lease - to the completed set if the plan
// reached a terminal status, back to the active set otherwise so the next
// poll picks it up again.
func (j *PlanAdvancerJob) advanceOne(ctx context.Context, planUUIDHex string) {
	allocated, err := j.assigner.AttemptAllocateExecPlan(ctx, planUUIDHex)
	if err != nil {
		logger.Error(ctx, "failed to allocate exec plan lease", zap.String("planUuid", planUUIDHex), zap.Error(err))
		return
	}
	if !allocated {
		return
	}

	planUUID, err := decodePlanUUIDHex(planUUIDHex)
	if err != nil {
		logger.Error(ctx, "malformed exec plan id in active set", zap.String("planUuid", planUUIDHex), zap.Error(err))
		return
	}

	plan, err := j.plans.Get(ctx, planUUID)
	if err != nil {
		logger.Error(ctx, "failed to load plan", zap.Error(err))
		j.release(ctx, planUUIDHex, false)
		return
	}

	if err := j.driver.Advance(ctx, plan); err != nil {
		logger.Error(ctx, "failed to advance plan", zap.Error(err))
		j.release(ctx, planUUIDHex, false)
		return
	}

	if err := j.plans.Save(ctx, plan); err != nil {
		logger.Error(ctx, "failed to persist advanced plan", zap.Error(err))
	}

	j.release(ctx, planUUIDHex, plan.Status().IsTerminal())
}

func (j *PlanAdvancerJob) release(ctx context.Context, planUUIDHex string, terminal bool) {
	var err error
	if terminal {
		err = j.assigner.RemoveCompletedExecPlan(ctx, planUUIDHex)
	} else {
		err = j.assigner.UnallocateExecPlan(ctx, planUUIDHex)
	}
	if err != nil {
		logger.Error(ctx, "failed to release exec plan lease", zap.String("planUuid", planUUIDHex), zap.Error(err))
	}
}

func decodePlanUUIDHex(s string) ([16]byte, error) {
	var out [16]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid plan uuid %q: %w", s, err)
	}
	if len(b) != 16 {
		return out, fmt.Errorf("plan uuid %q: want 16 bytes, got %d", s, len(b))
	}
	copy(out[:], b)
	return out, nil
}
