package routing

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"xchain-router.backend/internal/domain/entities"
	"xchain-router.backend/pkg/fixedpoint"
)

// DexPair is one pool the DEX indexer reports for a (chain, dex): its token
// pair, reserves, derived price anchors, and pool-level USD liquidity. The
// indexer adapter (internal/infrastructure/indexer) is the out-of-scope
// collaborator that produces these; the builder only consumes them.
type DexPair struct {
	Token0              entities.TokenId
	Token1              entities.TokenId
	Reserve0            *uint256.Int
	Reserve1            *uint256.Int
	Token0DerivedNative fixedpoint.Decimal
	Token0DerivedUsd    fixedpoint.Decimal
	Token1DerivedNative fixedpoint.Decimal
	Token1DerivedUsd    fixedpoint.Decimal
	ReserveUsd          fixedpoint.Decimal
	DexName             string
	DexFeeBps           uint32
	RouterAddress       entities.Address20
	PairAddress         entities.Address20
}

// DexIndexer is the per-(chain,dex) pool query collaborator. Implementing
// the query itself is out of scope here; the builder only depends on this
// narrow interface.
type DexIndexer interface {
	GetPairsAboveLiquidity(ctx context.Context, chain entities.ChainId, dex string, minReserveUsd int64) ([]DexPair, error)
}

// BridgeRegistryEntry is one statically-registered XCM bridge route.
// Construction of the registry itself is out of scope; the builder only
// consumes entries.
type BridgeRegistryEntry struct {
	SrcToken                  entities.TokenId
	DestToken                 entities.TokenId
	TokenAssetMultiLocation   MultiLocation
	DestMultiLocationTemplate MultiLocation
	EstimatedGasFeeInDestToken *uint256.Int
	EstimatedGasFeeUsd        fixedpoint.Decimal
	BridgeFeeInDestToken      *uint256.Int
	BridgeFeeUsd              fixedpoint.Decimal
	DestChainGasFeeUsd        fixedpoint.Decimal
}

// ChainDexConfig lists which DEXes to query on one chain, plus the
// chain-level facts the builder needs for gas-fee estimation and
// wrap/unwrap edge synthesis.
type ChainDexConfig struct {
	Chain              entities.ChainId
	Dexes              []string
	AvgGasFeeNativeWei *uint256.Int
	WrappedNative      *entities.TokenId // nil if this chain has no wrapped-native token
}

// BuilderInput is the graph builder's input: the set of chains/DEXes to
// query and the static bridge registry.
type BuilderInput struct {
	Chains  []ChainDexConfig
	Bridges []BridgeRegistryEntry
}

// BuildGraph runs the three-step build algorithm in order (order matters
// for deriving price anchors: CPMM pairs establish the initial
// derivedNative/derivedUsd anchors that bridge and wrap/unwrap edges then
// reuse).
func BuildGraph(ctx context.Context, indexer DexIndexer, input BuilderInput, minPoolReserveUsd int64) (*Graph, error) {
	g := NewGraph()

	// Step 1: DEX pairs above the liquidity floor.
	for _, cc := range input.Chains {
		for _, dex := range cc.Dexes {
			pairs, err := indexer.GetPairsAboveLiquidity(ctx, cc.Chain, dex, minPoolReserveUsd)
			if err != nil {
				return nil, fmt.Errorf("routing: indexer query failed for chain %s dex %s: %w", cc.Chain, dex, err)
			}
			for _, pair := range pairs {
				addCPMMPair(g, cc, pair)
			}
		}
	}

	// Step 2: XCM bridge edges.
	for _, bridge := range input.Bridges {
		addBridgeEdge(g, bridge)
	}

	// Step 3: wrap/unwrap edges for chains with a known wrapped-native token.
	for _, cc := range input.Chains {
		if cc.WrappedNative == nil {
			continue
		}
		addWrapUnwrapEdges(g, cc)
	}

	return g, nil
}

func addCPMMPair(g *Graph, cc ChainDexConfig, pair DexPair) {
	if pair.ReserveUsd.Val().IsZero() {
		return
	}
	// Only tokens with positive derivedNative are eligible.
	if pair.Token0DerivedNative.Val().IsZero() || pair.Token1DerivedNative.Val().IsZero() {
		return
	}

	g.AddVertex(entities.Vertex{ID: pair.Token0, DerivedNative: pair.Token0DerivedNative, DerivedUsd: pair.Token0DerivedUsd})
	g.AddVertex(entities.Vertex{ID: pair.Token1, DerivedNative: pair.Token1DerivedNative, DerivedUsd: pair.Token1DerivedUsd})

	forward := Edge{
		Kind:          EdgeKindCPMM,
		Src:           pair.Token0,
		Dst:           pair.Token1,
		Token0:        pair.Token0,
		Token1:        pair.Token1,
		Reserve0:      pair.Reserve0,
		Reserve1:      pair.Reserve1,
		DexName:       pair.DexName,
		DexFeeBps:     pair.DexFeeBps,
		RouterAddress: pair.RouterAddress,
		PairAddress:   pair.PairAddress,
	}
	forward.EstimatedGasFeeInDestToken = fixedpoint.DivUint128(cc.AvgGasFeeNativeWei, pair.Token1DerivedNative)
	forward.EstimatedGasFeeUsd = pair.Token1DerivedUsd
	_ = g.AddEdge(forward)

	backward := forward
	backward.Src, backward.Dst = pair.Token1, pair.Token0
	backward.EstimatedGasFeeInDestToken = fixedpoint.DivUint128(cc.AvgGasFeeNativeWei, pair.Token0DerivedNative)
	backward.EstimatedGasFeeUsd = pair.Token0DerivedUsd
	_ = g.AddEdge(backward)
}

func addBridgeEdge(g *Graph, bridge BridgeRegistryEntry) {
	_, srcExists := g.GetVertex(bridge.SrcToken)
	_, destExists := g.GetVertex(bridge.DestToken)

	if !srcExists && !destExists {
		return
	}
	if !srcExists && bridge.SrcToken.IsNative() {
		if destVertex, ok := g.GetVertex(bridge.DestToken); ok {
			g.AddVertex(entities.Vertex{ID: bridge.SrcToken, DerivedNative: fixedpoint.New(1, 0), DerivedUsd: destVertex.DerivedUsd})
			srcExists = true
		}
	}
	if !destExists && bridge.DestToken.IsNative() {
		if srcVertex, ok := g.GetVertex(bridge.SrcToken); ok {
			g.AddVertex(entities.Vertex{ID: bridge.DestToken, DerivedNative: fixedpoint.New(1, 0), DerivedUsd: srcVertex.DerivedUsd})
			destExists = true
		}
	}
	if !srcExists || !destExists {
		return
	}

	edge := Edge{
		Kind:                       EdgeKindXCMBridge,
		Src:                        bridge.SrcToken,
		Dst:                        bridge.DestToken,
		EstimatedGasFeeInDestToken: bridge.EstimatedGasFeeInDestToken,
		EstimatedGasFeeUsd:         bridge.EstimatedGasFeeUsd,
		TokenAssetMultiLocation:    bridge.TokenAssetMultiLocation,
		DestMultiLocationTemplate:  bridge.DestMultiLocationTemplate,
		BridgeFeeInDestToken:       bridge.BridgeFeeInDestToken,
		BridgeFeeUsd:               bridge.BridgeFeeUsd,
		DestChainGasFeeUsd:         bridge.DestChainGasFeeUsd,
	}
	_ = g.AddEdge(edge)
}

func addWrapUnwrapEdges(g *Graph, cc ChainDexConfig) {
	nativeID := entities.TokenId{Chain: cc.Chain, Kind: entities.NativeTokenKind()}
	nativeVertex, nativeOK := g.GetVertex(nativeID)
	wrappedVertex, wrappedOK := g.GetVertex(*cc.WrappedNative)
	if !nativeOK || !wrappedOK {
		return
	}

	wrap := Edge{
		Kind:                       EdgeKindWrap,
		Src:                        nativeID,
		Dst:                        *cc.WrappedNative,
		EstimatedGasFeeInDestToken: fixedpoint.DivUint128(cc.AvgGasFeeNativeWei, wrappedVertex.DerivedNative),
		EstimatedGasFeeUsd:         wrappedVertex.DerivedUsd,
	}
	_ = g.AddEdge(wrap)

	unwrap := Edge{
		Kind:                       EdgeKindUnwrap,
		Src:                        *cc.WrappedNative,
		Dst:                        nativeID,
		EstimatedGasFeeInDestToken: fixedpoint.DivUint128(cc.AvgGasFeeNativeWei, nativeVertex.DerivedNative),
		EstimatedGasFeeUsd:         nativeVertex.DerivedUsd,
	}
	_ = g.AddEdge(unwrap)
}
