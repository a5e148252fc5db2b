package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/persontrack/internal/detector"
)

func testWeights() assocWeights {
	return assocWeights{wIoU: 0.5, wApp: 0.5, matchIoU: 0.8, appThresh: 0.4, maxCost: 0.7}
}

func TestAssociateMatchesOverlappingBoxes(t *testing.T) {
	predicted := [][4]float32{{0, 0, 10, 10}}
	dets := []detector.Detection{{BBox: [4]float32{0.5, 0.5, 10.5, 10.5}, Confidence: 0.9}}

	result := associate(predicted, [][]float32{nil}, dets, [][]float32{nil}, testWeights())
	assert.Len(t, result.matches, 1)
	assert.Empty(t, result.unmatchedTrk)
	assert.Empty(t, result.unmatchedDet)
}

// TestAssociateRejectsBelowMatchIoUDespiteStrongAppearance pins the §4.2
// step 3 hard gate: a pair below match_iou must never be accepted, even
// when its combined cost would otherwise clear maxCost via a near-perfect
// appearance match.
func TestAssociateRejectsBelowMatchIoUDespiteStrongAppearance(t *testing.T) {
	predicted := [][4]float32{{0, 0, 10, 10}}
	trackEmb := [][]float32{{1, 0}}
	dets := []detector.Detection{{BBox: [4]float32{3, 0, 13, 10}, Confidence: 0.9}}
	detEmb := [][]float32{{1, 0}}

	result := associate(predicted, trackEmb, dets, detEmb, testWeights())
	assert.Empty(t, result.matches)
	assert.Equal(t, []int{0}, result.unmatchedTrk)
	assert.Equal(t, []int{0}, result.unmatchedDet)
}

func TestAssociateLeavesFarBoxesUnmatched(t *testing.T) {
	predicted := [][4]float32{{0, 0, 10, 10}}
	dets := []detector.Detection{{BBox: [4]float32{500, 500, 510, 510}, Confidence: 0.9}}

	result := associate(predicted, [][]float32{nil}, dets, [][]float32{nil}, testWeights())
	assert.Empty(t, result.matches)
	assert.Equal(t, []int{0}, result.unmatchedTrk)
	assert.Equal(t, []int{0}, result.unmatchedDet)
}

func TestAssociatePrefersAppearanceOverWeakerIoUCandidate(t *testing.T) {
	predicted := [][4]float32{
		{0, 0, 10, 10},
		{0.3, 0.3, 10.3, 10.3},
	}
	trackEmb := [][]float32{
		{1, 0},
		{0, 1},
	}
	dets := []detector.Detection{
		{BBox: [4]float32{0.3, 0.3, 10.3, 10.3}, Confidence: 0.9},
	}
	detEmb := [][]float32{{0, 1}}

	// Both tracks clear match_iou against the detection, but track 0's
	// appearance distance exceeds app_thresh and must be gated out entirely,
	// leaving track 1 as the only viable candidate.
	result := associate(predicted, trackEmb, dets, detEmb, testWeights())
	if assert.Len(t, result.matches, 1) {
		assert.Equal(t, 1, result.matches[0].trackIdx)
	}
}

func TestAssociateIoUOnlyRequiresThreshold(t *testing.T) {
	predicted := [][4]float32{{0, 0, 10, 10}}
	boxes := [][4]float32{{1, 1, 11, 11}}

	result := associateIoUOnly(predicted, boxes, 0.3)
	assert.Len(t, result.matches, 1)

	result = associateIoUOnly(predicted, boxes, 0.99)
	assert.Empty(t, result.matches)
}

func TestEmbeddingRingMaxSimilarityPicksBest(t *testing.T) {
	ring := NewEmbeddingRing(3)
	ring.Push([]float32{0, 1})
	ring.Push([]float32{1, 0})

	sim, ok := ring.MaxSimilarity([]float32{1, 0})
	assert.True(t, ok)
	assert.InDelta(t, 1.0, sim, 1e-6)
}

func TestEmbeddingRingEvictsOldest(t *testing.T) {
	ring := NewEmbeddingRing(2)
	ring.Push([]float32{1, 0})
	ring.Push([]float32{0, 1})
	ring.Push([]float32{-1, 0})

	assert.Equal(t, 2, ring.Len())
	sim, ok := ring.MaxSimilarity([]float32{1, 0})
	assert.True(t, ok)
	assert.Less(t, sim, float32(1.0))
}

func TestEmbeddingRingEmptyHasNoSimilarity(t *testing.T) {
	ring := NewEmbeddingRing(3)
	_, ok := ring.MaxSimilarity([]float32{1, 0})
	assert.False(t, ok)
}
