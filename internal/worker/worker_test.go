package worker

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/persontrack/internal/config"
	"github.com/your-org/persontrack/internal/detector"
	"github.com/your-org/persontrack/internal/reid"
)

func TestStableColorIsDeterministic(t *testing.T) {
	a := stableColor("g:7")
	b := stableColor("g:7")
	assert.Equal(t, a, b)
}

func TestStableColorVariesAcrossKeys(t *testing.T) {
	colors := make(map[color.RGBA]bool)
	for i := 0; i < len(palette); i++ {
		colors[stableColor(string(rune('a'+i)))] = true
	}
	assert.Greater(t, len(colors), 1)
}

// fakeDetector always returns one fixed detection covering a chunk of the
// frame, regardless of input, so processFrame exercises the full pipeline
// without a real ONNX model.
type fakeDetector struct{ inW, inH int }

func (f *fakeDetector) Detect(imgData []float32, origW, origH int) ([]detector.Detection, error) {
	return []detector.Detection{{BBox: [4]float32{10, 10, 60, 120}, Confidence: 0.9}}, nil
}
func (f *fakeDetector) InputSize() (int, int) { return f.inW, f.inH }
func (f *fakeDetector) Close()                {}

type fakeEmbedder struct{ inW, inH, dim int }

func (e *fakeEmbedder) Extract(cropData []float32) ([]float32, error) {
	v := make([]float32, e.dim)
	v[0] = 1
	return v, nil
}
func (e *fakeEmbedder) InputSize() (int, int) { return e.inW, e.inH }
func (e *fakeEmbedder) EmbeddingDim() int     { return e.dim }
func (e *fakeEmbedder) Close()                {}

func testJPEGFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestProcessFramePublishesAnnotatedFrame(t *testing.T) {
	det := &fakeDetector{inW: 320, inH: 240}
	emb := &fakeEmbedder{inW: 64, inH: 128, dim: 8}
	registry := reid.NewRegistry(config.ReIDConfig{
		ReIDThreshold: 0.7,
		SpatialWindow: 2 * time.Second,
		TrackTimeout:  3 * time.Second,
		LockTimeout:   100 * time.Millisecond,
		RingCapacity:  10,
	}, nil, sequentialIDs(), nil)
	buf := &FrameBuffer{}

	trackerCfg := config.TrackerConfig{
		HighConf: 0.5, LowConf: 0.1, MatchIoU: 0.3, SecondIoU: 0.3,
		AppThresh: 0.4, WIoU: 0.5, WApp: 0.5, MinHits: 1, TrackBuffer: 3, NominalFPS: 30,
	}

	w := New(config.CameraConfig{ID: "cam1", URL: "rtsp://unused", FPS: 15}, trackerCfg, det, emb, registry, buf, 80, 100*time.Millisecond, testLogger())

	err := w.processFrame(testJPEGFrame(t))
	require.NoError(t, err)

	data, _, count, ok := buf.Latest()
	require.True(t, ok)
	assert.NotEmpty(t, data)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, w.Status().BoundTracks)
	assert.True(t, w.Status().Connected)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return string(rune('0' + n))
	}
}
