package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xchain-router.backend/internal/domain/entities"
	"xchain-router.backend/pkg/fixedpoint"
)

func TestGraph_AddEdge_RequiresExistingVertices(t *testing.T) {
	g := NewGraph()
	err := g.AddEdge(Edge{Kind: EdgeKindCPMM, Src: usdc(), Dst: weth()})
	assert.ErrorIs(t, err, ErrVertexNotInGraph)

	g.AddVertex(entities.Vertex{ID: usdc(), DerivedNative: fixedpoint.New(1, 0)})
	err = g.AddEdge(Edge{Kind: EdgeKindCPMM, Src: usdc(), Dst: weth()})
	assert.ErrorIs(t, err, ErrVertexNotInGraph)

	g.AddVertex(entities.Vertex{ID: weth(), DerivedNative: fixedpoint.New(1, 0)})
	require.NoError(t, g.AddEdge(Edge{Kind: EdgeKindCPMM, Src: usdc(), Dst: weth()}))
	assert.Len(t, g.GetEdges(usdc(), weth()), 1)
}

func TestGraph_AddEdge_AppendsMultiedges(t *testing.T) {
	g := NewGraph()
	g.AddVertex(entities.Vertex{ID: usdc(), DerivedNative: fixedpoint.New(1, 0)})
	g.AddVertex(entities.Vertex{ID: weth(), DerivedNative: fixedpoint.New(1, 0)})

	require.NoError(t, g.AddEdge(Edge{Kind: EdgeKindCPMM, Src: usdc(), Dst: weth(), DexName: "dexA"}))
	require.NoError(t, g.AddEdge(Edge{Kind: EdgeKindCPMM, Src: usdc(), Dst: weth(), DexName: "dexB"}))
	assert.Len(t, g.GetEdges(usdc(), weth()), 2)
	assert.Len(t, g.OutgoingEdges(usdc()), 2)
}
