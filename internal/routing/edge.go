package routing

import (
	"github.com/holiman/uint256"

	"xchain-router.backend/internal/domain/entities"
	"xchain-router.backend/pkg/fixedpoint"
)

// EdgeKind is the closed sum type of edge shapes the multigraph carries:
// a constant-product swap, a wrap/unwrap identity hop, or an XCM bridge.
type EdgeKind uint8

const (
	EdgeKindCPMM EdgeKind = iota
	EdgeKindWrap
	EdgeKindUnwrap
	EdgeKindXCMBridge
)

func (k EdgeKind) IsSwap() bool   { return k == EdgeKindCPMM || k == EdgeKindWrap || k == EdgeKindUnwrap }
func (k EdgeKind) IsBridge() bool { return k == EdgeKindXCMBridge }

func (k EdgeKind) String() string {
	switch k {
	case EdgeKindCPMM:
		return "cpmm"
	case EdgeKindWrap:
		return "wrap"
	case EdgeKindUnwrap:
		return "unwrap"
	case EdgeKindXCMBridge:
		return "xcm_bridge"
	default:
		return "unknown"
	}
}

// basisPointsDenominator is the 10_000 bps denominator used throughout fee
// and slippage math.
const basisPointsDenominator = 10_000

// Edge is one directed hop of the token multigraph. Every edge carries an
// estimated gas fee (denominated in the edge's destination token and in
// USD); CPMM edges additionally carry pool state and DEX metadata; XCM
// bridge edges carry additional multilocation and bridge-fee fields.
type Edge struct {
	Kind EdgeKind
	Src  entities.TokenId
	Dst  entities.TokenId

	EstimatedGasFeeInDestToken *uint256.Int
	EstimatedGasFeeUsd         fixedpoint.Decimal

	// CPMM-only fields.
	Token0        entities.TokenId
	Token1        entities.TokenId
	Reserve0      *uint256.Int
	Reserve1      *uint256.Int
	DexName       string
	DexFeeBps     uint32
	RouterAddress entities.Address20
	PairAddress   entities.Address20

	// XCM bridge-only fields.
	TokenAssetMultiLocation   MultiLocation
	DestMultiLocationTemplate MultiLocation
	BridgeFeeInDestToken      *uint256.Int
	BridgeFeeUsd              fixedpoint.Decimal
	DestChainGasFeeUsd        fixedpoint.Decimal
}

// GetQuote applies this edge's pricing function to amountIn, returning the
// resulting amount of Dst token. Wrap, Unwrap and XCM bridge edges preserve
// amount exactly (their fee impact is accounted for separately by the
// router as an estimated-fee deduction, not a change in quoted amount).
func (e Edge) GetQuote(amountIn *uint256.Int) *uint256.Int {
	switch e.Kind {
	case EdgeKindCPMM:
		return e.quoteCPMM(amountIn)
	default:
		return new(uint256.Int).Set(amountIn)
	}
}

// quoteCPMM implements the constant-product-with-fee formula:
//
//	out = amountIn * (1 - fee) * reserveOut / (reserveIn + amountIn*(1-fee))
//
// Order of operations matters to avoid overflow: the fee-adjusted amountIn
// is computed once via mulRatio and reused for both the numerator and the
// denominator.
func (e Edge) quoteCPMM(amountIn *uint256.Int) *uint256.Int {
	reserveIn, reserveOut := e.orderedReserves()
	afterFeeBps := basisPointsDenominator - e.DexFeeBps
	amountInAfterFee := mulRatio(amountIn, afterFeeBps, basisPointsDenominator)

	denominator := new(uint256.Int).Add(reserveIn, amountInAfterFee)
	if denominator.IsZero() {
		return uint256.NewInt(0)
	}
	numerator := new(uint256.Int).Mul(amountInAfterFee, reserveOut)
	return new(uint256.Int).Div(numerator, denominator)
}

// orderedReserves returns (reserveIn, reserveOut) for this edge's direction
// of travel, i.e. Src -> Dst, regardless of which of Token0/Token1 is listed
// first in the pool's canonical ordering.
func (e Edge) orderedReserves() (*uint256.Int, *uint256.Int) {
	if e.Src == e.Token0 {
		return e.Reserve0, e.Reserve1
	}
	return e.Reserve1, e.Reserve0
}

// mulRatio computes value * numBps / denBps without overflowing for the
// token-amount ranges this system deals in (reserves and trade sizes fit in
// uint128; widening to 256 bits before dividing is free with uint256).
func mulRatio(value *uint256.Int, numBps, denBps uint32) *uint256.Int {
	wide := new(uint256.Int).Mul(value, uint256.NewInt(uint64(numBps)))
	return new(uint256.Int).Div(wide, uint256.NewInt(uint64(denBps)))
}
