package routing

import "xchain-router.backend/internal/domain/entities"

// PathFinderConfig bounds the DFS enumeration: at most MaxPathLen edges, at
// most MaxNumBridges bridge edges, and at most MaxConsecutiveSwaps swap
// edges (CPMM/Wrap/Unwrap) in a row.
type PathFinderConfig struct {
	MaxPathLen          int
	MaxNumBridges       int
	MaxConsecutiveSwaps int
}

// DefaultPathFinderConfig returns the standard 8/2/4 bound set.
func DefaultPathFinderConfig() PathFinderConfig {
	return PathFinderConfig{MaxPathLen: 8, MaxNumBridges: 2, MaxConsecutiveSwaps: 4}
}

// Path is an ordered sequence of edges from a source to a destination vertex.
type Path []Edge

// dfsFrame is one level of the explicit DFS stack: the vertex currently
// being explored, its outgoing edges, the index of the next edge to try,
// and the running bound counters as of entering this vertex.
type dfsFrame struct {
	vertex                entities.TokenId
	edges                 []Edge
	idx                   int
	bridgesSoFar          int
	consecutiveSwapsSoFar int
	enteredViaEdge        bool
}

// FindAllPaths enumerates, via iterative depth-first search with an
// explicit stack and visited set, every simple path from src to dst that
// satisfies cfg's length/bridge-count/consecutive-swap bounds. The visited
// set and bounded path length guarantee termination over the graph's finite
// vertex set.
func FindAllPaths(g *Graph, src, dst entities.TokenId, cfg PathFinderConfig) []Path {
	stack := []*dfsFrame{{vertex: src, edges: g.OutgoingEdges(src)}}
	visited := map[entities.TokenId]bool{src: true}
	var path Path
	var results []Path

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.idx >= len(top.edges) {
			stack = stack[:len(stack)-1]
			if top.enteredViaEdge {
				path = path[:len(path)-1]
				visited[top.vertex] = false
			}
			continue
		}

		edge := top.edges[top.idx]
		top.idx++
		neighbor := edge.Dst
		if visited[neighbor] {
			continue
		}
		if len(path)+1 > cfg.MaxPathLen {
			continue
		}

		bridgesSoFar := top.bridgesSoFar
		if edge.Kind.IsBridge() {
			bridgesSoFar++
			if bridgesSoFar > cfg.MaxNumBridges {
				continue
			}
		}
		consecutiveSwaps := 0
		if edge.Kind.IsSwap() {
			consecutiveSwaps = top.consecutiveSwapsSoFar + 1
			if consecutiveSwaps > cfg.MaxConsecutiveSwaps {
				continue
			}
		}

		path = append(path, edge)
		if neighbor == dst {
			cloned := make(Path, len(path))
			copy(cloned, path)
			results = append(results, cloned)
			path = path[:len(path)-1]
			continue
		}

		visited[neighbor] = true
		stack = append(stack, &dfsFrame{
			vertex:                neighbor,
			edges:                 g.OutgoingEdges(neighbor),
			bridgesSoFar:          bridgesSoFar,
			consecutiveSwapsSoFar: consecutiveSwaps,
			enteredViaEdge:        true,
		})
	}
	return results
}
