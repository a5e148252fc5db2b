package config

import (
	"sync/atomic"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// OverlapGraph answers "can these two cameras see the same physical space?"
// queries. It wraps a gonum undirected graph over a camera-id <-> int64 node
// id bijection, so an edge query is a single adjacency lookup rather than a
// hand-rolled set-of-sets.
type OverlapGraph struct {
	g      *simple.UndirectedGraph
	ids    map[string]int64
	byID   map[int64]string
}

// NewOverlapGraph builds a graph from an adjacency list keyed by camera id.
// Edges are symmetric; listing {A: [B]} is sufficient to also imply {B: [A]}.
func NewOverlapGraph(adjacency map[string][]string) *OverlapGraph {
	g := simple.NewUndirectedGraph()
	ids := make(map[string]int64)
	byID := make(map[int64]string)

	nodeID := func(camera string) int64 {
		if id, ok := ids[camera]; ok {
			return id
		}
		id := int64(len(ids))
		ids[camera] = id
		byID[id] = camera
		g.AddNode(simple.Node(id))
		return id
	}

	for camera, peers := range adjacency {
		a := nodeID(camera)
		for _, peer := range peers {
			b := nodeID(peer)
			if a == b {
				continue
			}
			if !g.HasEdgeBetween(a, b) {
				g.SetEdge(simple.Edge{F: simple.Node(a), T: simple.Node(b)})
			}
		}
	}

	return &OverlapGraph{g: g, ids: ids, byID: byID}
}

// Overlaps reports whether camera a and camera b share a declared edge.
// A camera always "overlaps" with itself trivially for the caller's
// convenience, but callers that must exclude the same-camera case (the
// registry's spatial-match fallback, per the spec, never considers the
// originating camera a candidate) should compare ids directly before calling.
func (o *OverlapGraph) Overlaps(a, b string) bool {
	if a == b {
		return true
	}
	aID, ok := o.ids[a]
	if !ok {
		return false
	}
	bID, ok := o.ids[b]
	if !ok {
		return false
	}
	return o.g.HasEdgeBetween(aID, bID)
}

// Neighbors returns every camera sharing an edge with camera.
func (o *OverlapGraph) Neighbors(camera string) []string {
	id, ok := o.ids[camera]
	if !ok {
		return nil
	}
	var out []string
	nodes := o.g.From(id)
	for nodes.Next() {
		n := nodes.Node()
		out = append(out, o.byID[n.ID()])
	}
	return out
}

// OverlapGraphHolder lets a hot-reload goroutine swap in a new graph
// atomically without the readers (stream workers, registry) ever observing a
// half-built graph.
type OverlapGraphHolder struct {
	ptr atomic.Pointer[OverlapGraph]
}

// NewOverlapGraphHolder wraps an initial graph.
func NewOverlapGraphHolder(g *OverlapGraph) *OverlapGraphHolder {
	h := &OverlapGraphHolder{}
	h.ptr.Store(g)
	return h
}

// Load returns the current graph.
func (h *OverlapGraphHolder) Load() *OverlapGraph {
	return h.ptr.Load()
}

// Store swaps in a new graph.
func (h *OverlapGraphHolder) Store(g *OverlapGraph) {
	h.ptr.Store(g)
}

var _ graph.Undirected = (*simple.UndirectedGraph)(nil)
