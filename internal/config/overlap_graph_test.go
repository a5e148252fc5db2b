package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlapGraphSymmetric(t *testing.T) {
	g := NewOverlapGraph(map[string][]string{
		"A": {"B"},
	})

	assert.True(t, g.Overlaps("A", "B"))
	assert.True(t, g.Overlaps("B", "A"))
}

func TestOverlapGraphNoEdge(t *testing.T) {
	g := NewOverlapGraph(map[string][]string{
		"A": {"B"},
		"C": {},
	})

	assert.False(t, g.Overlaps("A", "C"))
	assert.False(t, g.Overlaps("C", "D")) // unknown camera D
}

func TestOverlapGraphSelf(t *testing.T) {
	g := NewOverlapGraph(nil)
	assert.True(t, g.Overlaps("A", "A"))
}

func TestOverlapGraphNeighbors(t *testing.T) {
	g := NewOverlapGraph(map[string][]string{
		"A": {"B", "C"},
	})

	neighbors := g.Neighbors("A")
	assert.ElementsMatch(t, []string{"B", "C"}, neighbors)
	assert.ElementsMatch(t, []string{"A"}, g.Neighbors("B"))
}

func TestOverlapGraphHolderSwap(t *testing.T) {
	h := NewOverlapGraphHolder(NewOverlapGraph(nil))
	assert.False(t, h.Load().Overlaps("A", "B"))

	h.Store(NewOverlapGraph(map[string][]string{"A": {"B"}}))
	assert.True(t, h.Load().Overlaps("A", "B"))
}
