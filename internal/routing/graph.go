package routing

import (
	"errors"

	"xchain-router.backend/internal/domain/entities"
)

// ErrVertexNotInGraph is returned by AddEdge when either endpoint of the
// edge has not been registered as a vertex.
var ErrVertexNotInGraph = errors.New("routing: vertex not in graph")

type adjacencyKey struct {
	Src entities.TokenId
	Dst entities.TokenId
}

// Graph is the multigraph over (chain, token) vertices. Adjacency from u to
// v is a nonempty ordered list of edges - there may be
// several CPMM edges from different DEXes plus a bridge edge between the
// same pair of vertices.
type Graph struct {
	vertices  map[entities.TokenId]*entities.Vertex
	adjacency map[adjacencyKey][]Edge
}

func NewGraph() *Graph {
	return &Graph{
		vertices:  make(map[entities.TokenId]*entities.Vertex),
		adjacency: make(map[adjacencyKey][]Edge),
	}
}

// AddVertex registers a vertex, overwriting any existing vertex with the
// same TokenId (the builder re-derives price anchors on each refresh).
func (g *Graph) AddVertex(v entities.Vertex) {
	cp := v
	g.vertices[v.ID] = &cp
}

// AddEdge appends edge to the u->v adjacency list. Fails if either endpoint
// is not already a vertex.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.vertices[e.Src]; !ok {
		return ErrVertexNotInGraph
	}
	if _, ok := g.vertices[e.Dst]; !ok {
		return ErrVertexNotInGraph
	}
	key := adjacencyKey{Src: e.Src, Dst: e.Dst}
	g.adjacency[key] = append(g.adjacency[key], e)
	return nil
}

// GetVertex looks up a vertex by id.
func (g *Graph) GetVertex(id entities.TokenId) (*entities.Vertex, bool) {
	v, ok := g.vertices[id]
	return v, ok
}

// GetEdges returns the (possibly empty) list of edges from u directly to v.
func (g *Graph) GetEdges(u, v entities.TokenId) []Edge {
	return g.adjacency[adjacencyKey{Src: u, Dst: v}]
}

// OutgoingEdges returns every edge whose source is u, across all
// destinations - the primary iteration surface for the path finder.
func (g *Graph) OutgoingEdges(u entities.TokenId) []Edge {
	var out []Edge
	for key, edges := range g.adjacency {
		if key.Src == u {
			out = append(out, edges...)
		}
	}
	return out
}

// NumVertices reports the vertex count, mostly useful for builder diagnostics.
func (g *Graph) NumVertices() int { return len(g.vertices) }
