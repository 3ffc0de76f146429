package execution

import (
	"github.com/holiman/uint256"

	"xchain-router.backend/internal/domain/entities"
	"xchain-router.backend/internal/routing"
	"xchain-router.backend/pkg/fixedpoint"
)

// StepKind is the closed sum type of execution step shapes. Kept as a tag
// + per-kind fields on a single ExecutionStep struct (rather
// than an interface per kind) so the driver and executor can switch on Kind
// once at their boundary instead of paying for virtual dispatch per step,
// and so persisted plans have a stable shape across step kinds.
type StepKind uint8

const (
	StepEthSend StepKind = iota
	StepErc20Transfer
	StepEthWrap
	StepEthUnwrap
	StepEthDexSwap
	StepXcmTransfer
)

func (k StepKind) String() string {
	switch k {
	case StepEthSend:
		return "EthSend"
	case StepErc20Transfer:
		return "Erc20Transfer"
	case StepEthWrap:
		return "EthWrap"
	case StepEthUnwrap:
		return "EthUnwrap"
	case StepEthDexSwap:
		return "EthDexSwap"
	case StepXcmTransfer:
		return "XcmTransfer"
	default:
		return "Unknown"
	}
}

func (k StepKind) IsEvm() bool { return k != StepXcmTransfer }

// DexSwapFunction is the router-call discriminator for EthDexSwap steps.
type DexSwapFunction uint8

const (
	SwapExactEthForTokens DexSwapFunction = iota
	SwapExactTokensForEth
	SwapExactTokensForTokens
)

// StepCommon carries the fields every step kind has, regardless of kind.
type StepCommon struct {
	SrcAddr      entities.Address
	DestAddr     entities.Address
	GasFeeNative *uint256.Int
	GasFeeUsd    fixedpoint.Decimal
}

// ExecutionStep wraps exactly one of the StepKind shapes; only the fields
// relevant to Kind are meaningful.
type ExecutionStep struct {
	UUID      [16]byte
	Kind      StepKind
	Chain     entities.ChainId
	AmountIn  *uint256.Int // Some for the first step of a path; nil otherwise until propagated
	AmountOut *uint256.Int // nil until the step completes
	Common    StepCommon

	// EthSend / Erc20Transfer / EthWrap / EthUnwrap: the single token moved.
	Token entities.TokenId

	// EthDexSwap-only.
	TokenPath     []entities.TokenId
	RouterAddress entities.Address20
	SwapFunction  DexSwapFunction

	// XcmTransfer-only.
	TokenAssetMultiLocation routing.MultiLocation
	FullDestMultiLocation   routing.MultiLocation
	BridgeFeeInDestToken    *uint256.Int

	Evm *EvmStatus
	Xcm *XcmStatus
}

// Status projects this step's kind-specific phase to the shared 5-state
// SimpleStatus.
func (s *ExecutionStep) Status() SimpleStatus {
	if s.Kind == StepXcmTransfer {
		if s.Xcm == nil {
			return SimpleNotStarted
		}
		return s.Xcm.Phase.Simple()
	}
	if s.Evm == nil {
		return SimpleNotStarted
	}
	return s.Evm.Phase.Simple()
}

// ExecutionPath is an ordered list of steps plus the path's aggregate output
// amount, set once the path as a whole has Succeeded.
type ExecutionPath struct {
	Steps     []*ExecutionStep
	AmountOut *uint256.Int
}

// Status implements the path aggregation rule: NotStarted if the first step
// is NotStarted; Succeeded if the last step Succeeded; Dropped if any step
// Dropped; Failed if any step Failed and none Dropped; else InProgress.
func (p *ExecutionPath) Status() SimpleStatus {
	if len(p.Steps) == 0 {
		return SimpleNotStarted
	}
	if p.Steps[0].Status() == SimpleNotStarted {
		return SimpleNotStarted
	}
	anyFailed := false
	for _, s := range p.Steps {
		switch s.Status() {
		case SimpleDropped:
			return SimpleDropped
		case SimpleFailed:
			anyFailed = true
		}
	}
	if anyFailed {
		return SimpleFailed
	}
	if p.Steps[len(p.Steps)-1].Status() == SimpleSucceeded {
		return SimpleSucceeded
	}
	return SimpleInProgress
}

// LeftmostNotTerminal returns the index of the first step whose status is
// not terminal, or -1 if every step has reached a terminal state.
func (p *ExecutionPath) LeftmostNotTerminal() int {
	for i, s := range p.Steps {
		if !s.Status().IsTerminal() {
			return i
		}
	}
	return -1
}

// ExecutionPlan is the full typed IR: a prestart escrow-receiving transfer,
// one or more ExecutionPaths, and a postend transfer back to the user.
type ExecutionPlan struct {
	UUID             [16]byte
	PrestartTransfer *ExecutionStep
	Paths            []*ExecutionPath
	PostendTransfer  *ExecutionStep
}

// Status implements the plan aggregation rule: Succeeded iff postend
// Succeeded; Dropped/Failed if any component is so; NotStarted if prestart
// is NotStarted; else InProgress.
func (plan *ExecutionPlan) Status() SimpleStatus {
	prestart := plan.PrestartTransfer.Status()
	if prestart == SimpleNotStarted {
		return SimpleNotStarted
	}
	if prestart == SimpleDropped || prestart == SimpleFailed {
		return prestart
	}
	for _, p := range plan.Paths {
		st := p.Status()
		if st == SimpleDropped || st == SimpleFailed {
			return st
		}
	}
	postend := plan.PostendTransfer.Status()
	if postend == SimpleDropped || postend == SimpleFailed {
		return postend
	}
	if postend == SimpleSucceeded {
		return SimpleSucceeded
	}
	return SimpleInProgress
}

// AllPathsSucceeded reports whether every path in the plan has Succeeded.
func (plan *ExecutionPlan) AllPathsSucceeded() bool {
	for _, p := range plan.Paths {
		if p.Status() != SimpleSucceeded {
			return false
		}
	}
	return true
}
