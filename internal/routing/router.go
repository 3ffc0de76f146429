package routing

import (
	"errors"

	"github.com/holiman/uint256"

	"xchain-router.backend/internal/domain/entities"
	"xchain-router.backend/pkg/fixedpoint"
)

// ErrSameSrcDest is returned when a solution is requested between a token
// and itself.
var ErrSameSrcDest = errors.New("routing: source and destination token are identical")

// ErrNoPathFound is returned when the path finder enumerates zero legal
// paths between src and dst.
var ErrNoPathFound = errors.New("routing: no path found")

// SplitPath is one leg of a (possibly split) GraphSolution. This core only
// ever produces single-path solutions: FractionBps is always 10_000.
type SplitPath struct {
	Edges            Path
	FractionAmountIn *uint256.Int
	FractionBps      uint32
}

// GraphSolution is the routing engine's output: a set of split paths that
// together move AmountIn of the source token to the destination token and
// address. Invariant: Σ FractionBps == 10_000; every path shares Src/Dest.
type GraphSolution struct {
	Paths     []SplitPath
	AmountIn  *uint256.Int
	SrcAddr   entities.Address
	DestAddr  entities.Address
	SrcToken  entities.TokenId
	DestToken entities.TokenId
}

// ComputeGraphSolution enumerates every legal path from src to dest and
// picks the one maximizing net output (quote composed across the path,
// minus each edge's estimated fee rescaled into the destination token).
// Ties are broken by first-encountered in the path finder's enumeration
// order. That order is not fixed between runs: Graph.OutgoingEdges walks a
// map, so edges to different neighbour vertices come in map iteration
// order (edges between the same two vertices keep insertion order).
func ComputeGraphSolution(
	g *Graph,
	src, dest entities.TokenId,
	amountIn *uint256.Int,
	srcAddr, destAddr entities.Address,
	cfg PathFinderConfig,
) (*GraphSolution, error) {
	if src == dest {
		return nil, ErrSameSrcDest
	}

	paths := FindAllPaths(g, src, dest, cfg)
	if len(paths) == 0 {
		return nil, ErrNoPathFound
	}

	var best Path
	var bestNet *uint256.Int
	for _, p := range paths {
		net, err := NetOutput(g, p, amountIn)
		if err != nil {
			continue
		}
		if bestNet == nil || net.Gt(bestNet) {
			bestNet = net
			best = p
		}
	}
	if best == nil {
		return nil, ErrNoPathFound
	}

	return &GraphSolution{
		Paths: []SplitPath{{
			Edges:            best,
			FractionAmountIn: amountIn,
			FractionBps:      basisPointsDenominator,
		}},
		AmountIn:  amountIn,
		SrcAddr:   srcAddr,
		DestAddr:  destAddr,
		SrcToken:  src,
		DestToken: dest,
	}, nil
}

// NetOutput composes each edge's quote function across the running amount,
// then subtracts every edge's estimated fee (gas, plus bridge fee for XCM
// edges) rescaled from that edge's own destination token into the path's
// final destination token via the derivedNative price anchors the graph
// builder populated.
func NetOutput(g *Graph, path Path, amountIn *uint256.Int) (*uint256.Int, error) {
	if len(path) == 0 {
		return nil, errors.New("routing: empty path")
	}
	finalDestID := path[len(path)-1].Dst
	finalDest, ok := g.GetVertex(finalDestID)
	if !ok {
		return nil, ErrVertexNotInGraph
	}

	running := new(uint256.Int).Set(amountIn)
	totalFee := uint256.NewInt(0)
	for _, e := range path {
		running = e.GetQuote(running)

		edgeDest, ok := g.GetVertex(e.Dst)
		if !ok {
			return nil, ErrVertexNotInGraph
		}
		if e.EstimatedGasFeeInDestToken != nil {
			totalFee = new(uint256.Int).Add(totalFee, rescale(e.EstimatedGasFeeInDestToken, edgeDest, finalDest))
		}
		if e.Kind.IsBridge() && e.BridgeFeeInDestToken != nil {
			totalFee = new(uint256.Int).Add(totalFee, rescale(e.BridgeFeeInDestToken, edgeDest, finalDest))
		}
	}

	if totalFee.Gt(running) {
		return uint256.NewInt(0), nil
	}
	return new(uint256.Int).Sub(running, totalFee), nil
}

// rescale converts an amount denominated in from's token into to's token,
// using each vertex's native-per-unit anchor: amount * from.derivedNative /
// to.derivedNative.
func rescale(amount *uint256.Int, from, to *entities.Vertex) *uint256.Int {
	return fixedpoint.MulDivUint128(amount, from.DerivedNative, to.DerivedNative)
}
