package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"xchain-router.backend/pkg/logger"
)

// feeDenomBps is the basis-point denominator RoutingConfig.FlatFeeBps is
// expressed against (5 bps = 0.05%, i.e. a 9995/10000 multiplier).
const feeDenomBps = 10_000

// ErrPrestartNotRegistered means Advance was called on a plan whose
// prestart transfer is still NotStarted. A prestart is never submitted by
// this service - it is the user's own already-observed deposit - so it
// must be stamped Submitted externally (PlanHandler.SubmitPlan, via
// RegisterPrestartDeposit below) before the driver will touch it.
var ErrPrestartNotRegistered = errors.New("execution: plan prestart not yet registered as submitted")

// Driver advances one ExecutionPlan by one observable tick, the plan-level
// counterpart to Executor's per-step Advance: one call does one batch of
// work across the plan's prestart/paths/postend components and returns,
// the same "tick, do what's ready, come back next tick" shape as the
// teacher's PaymentRequestExpiryJob.
type Driver struct {
	executor   *Executor
	flatFeeBps int64
}

// NewDriver builds a Driver. flatFeeBps is RoutingConfig.FlatFeeBps.
func NewDriver(executor *Executor, flatFeeBps int64) *Driver {
	return &Driver{executor: executor, flatFeeBps: flatFeeBps}
}

// Advance drives plan by one tick: prestart must succeed before any path is
// touched, every path must succeed before postend is touched, and each of
// those components only ever advances by one of its own Executor ticks per
// call - a one-level lookahead (this component's own next step, and the
// aggregate feeding the component after it) rather than a full plan replay.
func (d *Driver) Advance(ctx context.Context, plan *ExecutionPlan) error {
	prestart := plan.PrestartTransfer
	switch prestart.Status() {
	case SimpleNotStarted:
		return ErrPrestartNotRegistered
	case SimpleInProgress:
		return d.executor.Advance(ctx, prestart)
	case SimpleDropped, SimpleFailed:
		logger.Warn(ctx, "plan prestart transfer did not complete",
			zap.String("status", prestart.Status().String()))
		return nil
	}

	for _, path := range plan.Paths {
		if err := d.advancePath(ctx, path); err != nil {
			return err
		}
	}

	if !plan.AllPathsSucceeded() {
		return nil
	}

	return d.advancePostend(ctx, plan)
}

// RegisterPrestartDeposit stamps plan's prestart transfer Submitted with
// the caller-observed deposit's tx hash, the one step of the EVM state
// machine (§4.H) this service never submits itself. The end-block deadline
// is computed from the chain's current height at registration time, the
// same TxnBlockWindow the executor gives a transaction it submits itself -
// the deposit was already observed before this call, but the window still
// bounds how long the driver will wait for a receipt before giving up.
func (d *Driver) RegisterPrestartDeposit(ctx context.Context, plan *ExecutionPlan, depositTxHash string) error {
	prestart := plan.PrestartTransfer
	client, err := d.executor.evmClientFor(prestart.Chain)
	if err != nil {
		return err
	}
	curBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("execution: fetch current block: %w", err)
	}
	prestart.Evm = &EvmStatus{
		Phase:    EvmSubmitted,
		TxHash:   depositTxHash,
		EndBlock: curBlock + d.executor.txnBlockWindow,
	}
	return nil
}

// advancePath advances the leftmost non-terminal step of path, propagating
// the previous step's AmountOut into the next step's AmountIn as it goes,
// and fixes the path's own AmountOut once its last step has Succeeded.
func (d *Driver) advancePath(ctx context.Context, path *ExecutionPath) error {
	if path.Status().IsTerminal() {
		if path.Status() == SimpleSucceeded && path.AmountOut == nil {
			path.AmountOut = path.Steps[len(path.Steps)-1].AmountOut
		}
		return nil
	}

	idx := path.LeftmostNotTerminal()
	if idx == -1 {
		return nil
	}
	step := path.Steps[idx]
	if step.AmountIn == nil {
		if idx == 0 {
			return fmt.Errorf("execution: path's first step has no amountIn")
		}
		step.AmountIn = new(uint256.Int).Set(path.Steps[idx-1].AmountOut)
	}
	return d.executor.Advance(ctx, step)
}

// advancePostend seeds the postend transfer's AmountIn, once and only once
// every path has Succeeded, from the paths' aggregate AmountOut net of the
// router's flat fee, then advances it.
func (d *Driver) advancePostend(ctx context.Context, plan *ExecutionPlan) error {
	postend := plan.PostendTransfer
	if postend.AmountIn == nil {
		postend.AmountIn = d.aggregatePathAmountOut(plan)
	}
	err := d.executor.Advance(ctx, postend)
	if err == nil && postend.Status() == SimpleSucceeded {
		logger.Info(ctx, "plan completed", zap.String("plan_uuid", fmt.Sprintf("%x", plan.UUID)))
	}
	return err
}

func (d *Driver) aggregatePathAmountOut(plan *ExecutionPlan) *uint256.Int {
	total := uint256.NewInt(0)
	for _, p := range plan.Paths {
		total = new(uint256.Int).Add(total, p.AmountOut)
	}
	bps := uint256.NewInt(uint64(feeDenomBps - d.flatFeeBps))
	num := new(uint256.Int).Mul(total, bps)
	return new(uint256.Int).Div(num, uint256.NewInt(feeDenomBps))
}
