package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/persontrack/internal/config"
	"github.com/your-org/persontrack/internal/detector"
)

func testCfg() config.TrackerConfig {
	return config.TrackerConfig{
		HighConf:    0.5,
		LowConf:     0.1,
		MatchIoU:    0.3,
		SecondIoU:   0.3,
		AppThresh:   0.4,
		WIoU:        0.5,
		WApp:        0.5,
		MinHits:     1,
		TrackBuffer: 3,
		NominalFPS:  30,
	}
}

func TestSpawnsNewTrackOnFirstDetection(t *testing.T) {
	tr := NewCameraTracker("cam1", testCfg())
	dets := []detector.Detection{{BBox: [4]float32{10, 10, 50, 50}, Confidence: 0.9}}

	confirmed := tr.Update(dets, nil)
	require.Len(t, confirmed, 1)
	assert.Equal(t, StateConfirmed, confirmed[0].State)
}

func TestTrackPersistsAcrossFrames(t *testing.T) {
	tr := NewCameraTracker("cam1", testCfg())

	tr.Update([]detector.Detection{{BBox: [4]float32{10, 10, 50, 50}, Confidence: 0.9}}, nil)
	confirmed := tr.Update([]detector.Detection{{BBox: [4]float32{12, 12, 52, 52}, Confidence: 0.9}}, nil)

	require.Len(t, confirmed, 1)
	assert.Equal(t, 2, confirmed[0].Hits)
}

func TestUnmatchedTrackIsRemovedAfterBuffer(t *testing.T) {
	cfg := testCfg()
	cfg.TrackBuffer = 2
	tr := NewCameraTracker("cam1", cfg)

	tr.Update([]detector.Detection{{BBox: [4]float32{10, 10, 50, 50}, Confidence: 0.9}}, nil)

	for i := 0; i < 5; i++ {
		tr.Update(nil, nil)
	}

	assert.Empty(t, tr.Tracks())
}

func TestLowConfidenceDetectionRescuesOccludedTrack(t *testing.T) {
	tr := NewCameraTracker("cam1", testCfg())

	tr.Update([]detector.Detection{{BBox: [4]float32{10, 10, 50, 50}, Confidence: 0.9}}, nil)
	// Next frame: only a low-confidence, near-identical box.
	confirmed := tr.Update([]detector.Detection{{BBox: [4]float32{11, 11, 51, 51}, Confidence: 0.2}}, nil)

	require.Len(t, confirmed, 1)
	assert.Equal(t, 2, confirmed[0].Hits)
}

func TestDistinctDetectionsSpawnDistinctTracks(t *testing.T) {
	tr := NewCameraTracker("cam1", testCfg())
	dets := []detector.Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.9},
		{BBox: [4]float32{200, 200, 210, 210}, Confidence: 0.9},
	}

	confirmed := tr.Update(dets, nil)
	assert.Len(t, confirmed, 2)
}

func TestEmbedFuncInvokedPerHighConfidenceDetection(t *testing.T) {
	tr := NewCameraTracker("cam1", testCfg())
	dets := []detector.Detection{{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.9}}

	calls := 0
	embed := func(d detector.Detection) ([]float32, error) {
		calls++
		return []float32{1, 0, 0}, nil
	}

	confirmed := tr.Update(dets, embed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, 1, calls)
	assert.NotNil(t, confirmed[0].LatestEmbedding)
}
