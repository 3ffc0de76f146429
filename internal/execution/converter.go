package execution

import (
	"crypto/sha256"
	"errors"

	"github.com/holiman/uint256"

	"xchain-router.backend/internal/domain/entities"
	"xchain-router.backend/internal/routing"
	"xchain-router.backend/pkg/fixedpoint"
)

var (
	// ErrEmptyPath is returned for a routing path with zero edges; the
	// router never produces one, but the converter checks regardless of
	// its own input validation.
	ErrEmptyPath = errors.New("execution: path has no edges")

	// ErrUnexpectedWrapUnwrapOrder is returned when a Wrap edge is directly
	// followed by an Unwrap edge with no swap between them, or when a fused
	// swap group is bracketed by both a leading Wrap and a trailing Unwrap -
	// neither shape maps onto a single router call.
	ErrUnexpectedWrapUnwrapOrder = errors.New("execution: wrap/unwrap ordering cannot be expressed as a single router call")

	// ErrSwapInProgressAtPathEnd guards the segmentation scan against
	// stalling without consuming an edge; it should never fire against a
	// path the router produced, but protects against a malformed Path.
	ErrSwapInProgressAtPathEnd = errors.New("execution: fusion pass stalled before reaching the end of the path")

	// ErrCPMMAfterTailUnwrap is returned when a CPMM edge follows an Unwrap
	// with no intervening Wrap: the resulting native balance would need to
	// be wrapped again before the router could swap it.
	ErrCPMMAfterTailUnwrap = errors.New("execution: cpmm edge follows an unwrap without an intervening wrap")
)

// segment is one fusion group produced by segmentPath: either a bridge
// edge, a standalone wrap/unwrap, or a run of same-DEX CPMM edges
// optionally bracketed by an adjacent wrap/unwrap.
type segment struct {
	bridgeEdge       *routing.Edge
	standaloneWrap   *routing.Edge
	standaloneUnwrap *routing.Edge
	cpmmEdges        []routing.Edge
	wrapBefore       bool
	unwrapAfter      bool
}

// segmentPath groups a routing path into fusion segments: adjacent CPMM
// edges sharing a DEX and router address collapse into one swap-call
// segment, and a Wrap/Unwrap immediately bracketing such a group folds into
// it so the converter can emit a single SwapExactEthForTokens/
// SwapExactTokensForEth/SwapExactTokensForTokens step instead of a separate
// wrap or unwrap step plus a swap step.
func segmentPath(edges routing.Path) ([]segment, error) {
	if len(edges) == 0 {
		return nil, ErrEmptyPath
	}

	var segs []segment
	idx := 0
	for idx < len(edges) {
		prevIdx := idx
		e := edges[idx]

		switch {
		case e.Kind.IsBridge():
			edgeCopy := e
			segs = append(segs, segment{bridgeEdge: &edgeCopy})
			idx++

		case e.Kind == routing.EdgeKindWrap:
			switch {
			case idx+1 < len(edges) && edges[idx+1].Kind == routing.EdgeKindCPMM:
				group, next := collectCPMMGroup(edges, idx+1)
				if next < len(edges) && edges[next].Kind == routing.EdgeKindUnwrap {
					return nil, ErrUnexpectedWrapUnwrapOrder
				}
				segs = append(segs, segment{cpmmEdges: group, wrapBefore: true})
				idx = next
			case idx+1 < len(edges) && edges[idx+1].Kind == routing.EdgeKindUnwrap:
				return nil, ErrUnexpectedWrapUnwrapOrder
			default:
				edgeCopy := e
				segs = append(segs, segment{standaloneWrap: &edgeCopy})
				idx++
			}

		case e.Kind == routing.EdgeKindUnwrap:
			edgeCopy := e
			segs = append(segs, segment{standaloneUnwrap: &edgeCopy})
			idx++

		case e.Kind == routing.EdgeKindCPMM:
			group, next := collectCPMMGroup(edges, idx)
			unwrapAfter := false
			if next < len(edges) && edges[next].Kind == routing.EdgeKindUnwrap {
				unwrapAfter = true
				next++
			}
			segs = append(segs, segment{cpmmEdges: group, unwrapAfter: unwrapAfter})
			idx = next

		default:
			idx++
		}

		if idx == prevIdx {
			return nil, ErrSwapInProgressAtPathEnd
		}
	}

	for i, s := range segs {
		if s.cpmmEdges == nil || s.wrapBefore || i == 0 {
			continue
		}
		prev := segs[i-1]
		if prev.unwrapAfter || prev.standaloneUnwrap != nil {
			return nil, ErrCPMMAfterTailUnwrap
		}
	}
	return segs, nil
}

// collectCPMMGroup consumes the maximal run of CPMM edges starting at start
// that share the first edge's DEX name and router address, returning the
// group and the index just past it.
func collectCPMMGroup(edges routing.Path, start int) ([]routing.Edge, int) {
	dexName := edges[start].DexName
	router := edges[start].RouterAddress
	j := start
	var group []routing.Edge
	for j < len(edges) && edges[j].Kind == routing.EdgeKindCPMM && edges[j].DexName == dexName && edges[j].RouterAddress == router {
		group = append(group, edges[j])
		j++
	}
	return group, j
}

// segmentsToSteps renders each fusion segment into its ExecutionStep shape.
// execAddr is the plan's own operating address, used as both legs of every
// same-chain step and as the beneficiary substituted into every bridge
// edge's destination multilocation template.
func segmentsToSteps(segs []segment, execAddr entities.Address) []*ExecutionStep {
	steps := make([]*ExecutionStep, 0, len(segs))
	for _, s := range segs {
		switch {
		case s.bridgeEdge != nil:
			e := *s.bridgeEdge
			steps = append(steps, &ExecutionStep{
				Kind:                    StepXcmTransfer,
				Chain:                   e.Src.Chain,
				Token:                   e.Src,
				TokenAssetMultiLocation: e.TokenAssetMultiLocation,
				FullDestMultiLocation:   e.DestMultiLocationTemplate.WithBeneficiary(execAddr),
				BridgeFeeInDestToken:    e.BridgeFeeInDestToken,
				Common: StepCommon{
					GasFeeNative: e.EstimatedGasFeeInDestToken,
					GasFeeUsd:    fixedpoint.Add(fixedpoint.Add(e.EstimatedGasFeeUsd, e.BridgeFeeUsd), e.DestChainGasFeeUsd),
				},
			})

		case s.standaloneWrap != nil:
			e := *s.standaloneWrap
			steps = append(steps, &ExecutionStep{
				Kind:  StepEthWrap,
				Chain: e.Src.Chain,
				Token: e.Src,
				Common: StepCommon{
					GasFeeNative: e.EstimatedGasFeeInDestToken,
					GasFeeUsd:    e.EstimatedGasFeeUsd,
				},
			})

		case s.standaloneUnwrap != nil:
			e := *s.standaloneUnwrap
			steps = append(steps, &ExecutionStep{
				Kind:  StepEthUnwrap,
				Chain: e.Src.Chain,
				Token: e.Src,
				Common: StepCommon{
					GasFeeNative: e.EstimatedGasFeeInDestToken,
					GasFeeUsd:    e.EstimatedGasFeeUsd,
				},
			})

		case s.cpmmEdges != nil:
			fn := SwapExactTokensForTokens
			switch {
			case s.wrapBefore:
				fn = SwapExactEthForTokens
			case s.unwrapAfter:
				fn = SwapExactTokensForEth
			}

			first := s.cpmmEdges[0]
			tokenPath := make([]entities.TokenId, 0, len(s.cpmmEdges)+1)
			tokenPath = append(tokenPath, first.Src)
			gasFeeNative := uint256.NewInt(0)
			gasFeeUsd := fixedpoint.New(0, 0)
			for _, e := range s.cpmmEdges {
				tokenPath = append(tokenPath, e.Dst)
				if e.EstimatedGasFeeInDestToken != nil {
					gasFeeNative = new(uint256.Int).Add(gasFeeNative, e.EstimatedGasFeeInDestToken)
				}
				gasFeeUsd = fixedpoint.Add(gasFeeUsd, e.EstimatedGasFeeUsd)
			}

			steps = append(steps, &ExecutionStep{
				Kind:          StepEthDexSwap,
				Chain:         first.Src.Chain,
				TokenPath:     tokenPath,
				RouterAddress: first.RouterAddress,
				SwapFunction:  fn,
				Common:        StepCommon{GasFeeNative: gasFeeNative, GasFeeUsd: gasFeeUsd},
			})
		}
	}
	return steps
}

// ConvertToExecutionPlan turns a routing solution into the typed execution
// IR: a prestart transfer moving the user's funds into execAddr, one
// ExecutionPath per split path, and a postend transfer moving the net
// output back to the user's destination address.
func ConvertToExecutionPlan(sol *routing.GraphSolution, execAddr entities.Address) (*ExecutionPlan, error) {
	seed := uuidSeed(sol)
	next := seed

	prestartKind := StepErc20Transfer
	if sol.SrcToken.IsNative() {
		prestartKind = StepEthSend
	}
	next = incrementUUID(next)
	prestart := &ExecutionStep{
		UUID:     next,
		Kind:     prestartKind,
		Chain:    sol.SrcToken.Chain,
		Token:    sol.SrcToken,
		AmountIn: sol.AmountIn,
		Common:   StepCommon{SrcAddr: sol.SrcAddr, DestAddr: execAddr},
	}

	paths := make([]*ExecutionPath, 0, len(sol.Paths))
	for _, sp := range sol.Paths {
		segs, err := segmentPath(sp.Edges)
		if err != nil {
			return nil, err
		}
		steps := segmentsToSteps(segs, execAddr)
		for _, st := range steps {
			next = incrementUUID(next)
			st.UUID = next
			st.Common.SrcAddr = execAddr
			st.Common.DestAddr = execAddr
		}
		if len(steps) > 0 {
			steps[0].AmountIn = sp.FractionAmountIn
		}
		paths = append(paths, &ExecutionPath{Steps: steps})
	}

	postendKind := StepErc20Transfer
	if sol.DestToken.IsNative() {
		postendKind = StepEthSend
	}
	next = incrementUUID(next)
	postend := &ExecutionStep{
		UUID:   next,
		Kind:   postendKind,
		Chain:  sol.DestToken.Chain,
		Token:  sol.DestToken,
		Common: StepCommon{SrcAddr: execAddr, DestAddr: sol.DestAddr},
	}

	return &ExecutionPlan{UUID: seed, PrestartTransfer: prestart, Paths: paths, PostendTransfer: postend}, nil
}

// uuidSeed derives a deterministic 128-bit seed from the solution's
// identifying fields. Every step UUID in the plan is then generated by
// repeatedly incrementing this seed as a big-endian counter, so a plan's
// step ids are stable and collision-free without needing a random source.
func uuidSeed(sol *routing.GraphSolution) [16]byte {
	h := sha256.New()
	h.Write([]byte(sol.SrcToken.String()))
	h.Write([]byte(sol.DestToken.String()))
	h.Write([]byte(sol.SrcAddr.String()))
	h.Write([]byte(sol.DestAddr.String()))
	if sol.AmountIn != nil {
		h.Write(sol.AmountIn.Bytes())
	}
	sum := h.Sum(nil)
	var seed [16]byte
	copy(seed[:], sum[:16])
	return seed
}

func incrementUUID(u [16]byte) [16]byte {
	out := u
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			break
		}
	}
	return out
}
