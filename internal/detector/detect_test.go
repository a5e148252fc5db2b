package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoUIdentical(t *testing.T) {
	box := [4]float32{10, 10, 50, 50}
	assert.InDelta(t, 1.0, IoU(box, box), 1e-6)
}

func TestIoUDisjoint(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	b := [4]float32{100, 100, 110, 110}
	assert.Equal(t, float32(0), IoU(a, b))
}

func TestIoUPartialOverlap(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	b := [4]float32{5, 5, 15, 15}
	// intersection 5x5=25, union 100+100-25=175
	assert.InDelta(t, 25.0/175.0, IoU(a, b), 1e-6)
}

func TestNMSSuppressesOverlapping(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.9},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.8}, // heavy overlap, suppressed
		{BBox: [4]float32{100, 100, 110, 110}, Confidence: 0.7},
	}

	kept := nms(dets, 0.5)
	assert.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Confidence)
	assert.Equal(t, float32(0.7), kept[1].Confidence)
}

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 0, 0}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-6)
}

func TestNormalizeProducesUnitVector(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
}
