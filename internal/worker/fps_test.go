package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFPSEstimatorZeroBeforeWindowFills(t *testing.T) {
	f := newFPSEstimator(30)
	start := time.Now()
	for i := 0; i < 29; i++ {
		f.Tick(start.Add(time.Duration(i) * 33 * time.Millisecond))
		assert.Zero(t, f.FPS())
	}
}

func TestFPSEstimatorReportsOnceWindowFills(t *testing.T) {
	f := newFPSEstimator(30)
	start := time.Now()
	for i := 0; i <= 30; i++ {
		f.Tick(start.Add(time.Duration(i) * 33 * time.Millisecond))
	}
	assert.InDelta(t, 30.0, f.FPS(), 1.0)
}

func TestFPSEstimatorSlidesOverNewSamples(t *testing.T) {
	f := newFPSEstimator(3)
	start := time.Now()
	f.Tick(start)
	f.Tick(start.Add(100 * time.Millisecond))
	f.Tick(start.Add(200 * time.Millisecond))
	assert.Zero(t, f.FPS())

	f.Tick(start.Add(300 * time.Millisecond))
	assert.InDelta(t, 10.0, f.FPS(), 0.5)
}
