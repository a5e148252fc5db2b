package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/persontrack/internal/config"
	"github.com/your-org/persontrack/internal/detector"
	"github.com/your-org/persontrack/internal/reid"
	"github.com/your-org/persontrack/internal/tracker"
	"github.com/your-org/persontrack/internal/worker"
)

type stubDetector struct{}

func (stubDetector) Detect(imgData []float32, origW, origH int) ([]detector.Detection, error) {
	return nil, nil
}
func (stubDetector) InputSize() (int, int) { return 64, 64 }
func (stubDetector) Close()                {}

type stubEmbedder struct{}

func (stubEmbedder) Extract(cropData []float32) ([]float32, error) { return []float32{1, 0, 0}, nil }
func (stubEmbedder) InputSize() (int, int)                         { return 32, 64 }
func (stubEmbedder) EmbeddingDim() int                              { return 3 }
func (stubEmbedder) Close()                                        {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRegistry() *reid.Registry {
	n := 0
	return reid.NewRegistry(config.ReIDConfig{
		ReIDThreshold: 0.7,
		SpatialWindow: 2 * time.Second,
		TrackTimeout:  3 * time.Second,
		LockTimeout:   100 * time.Millisecond,
		RingCapacity:  10,
	}, nil, func() string { n++; return strconv.Itoa(n) }, nil)
}

func testServer(t *testing.T, freshness time.Duration) (*Server, *worker.Worker) {
	t.Helper()
	w := worker.New(config.CameraConfig{ID: "cam1"}, config.TrackerConfig{MinHits: 1, TrackBuffer: 3}, stubDetector{}, stubEmbedder{}, testRegistry(), &worker.FrameBuffer{}, 80, 100*time.Millisecond, testLogger())

	s := NewServer(Config{
		Registry:          testRegistry(),
		Workers:           map[string]*worker.Worker{"cam1": w},
		FreshnessBound:    freshness,
		StatusTTL:         500 * time.Millisecond,
		StatusLockTimeout: 100 * time.Millisecond,
		Logger:            testLogger(),
	})
	return s, w
}

func TestHandleFrameReturnsFreshImage(t *testing.T) {
	s, w := testServer(t, 50*time.Millisecond)
	w.Buffer().Publish([]byte("jpegdata"), 1)

	router := NewRouter(s, "")
	req := httptest.NewRequest(http.MethodGet, "/frame/cam1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpegdata", rec.Body.String())
	assert.Equal(t, "no-store, no-cache", rec.Header().Get("Cache-Control"))
}

func TestHandleFrameRejectsStaleFrame(t *testing.T) {
	s, w := testServer(t, 10*time.Millisecond)
	w.Buffer().Publish([]byte("jpegdata"), 1)
	time.Sleep(30 * time.Millisecond)

	router := NewRouter(s, "")
	req := httptest.NewRequest(http.MethodGet, "/frame/cam1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "stale", rec.Header().Get("X-Reason"))
}

func TestHandleFrameUnknownCamera(t *testing.T) {
	s, _ := testServer(t, 50*time.Millisecond)

	router := NewRouter(s, "")
	req := httptest.NewRequest(http.MethodGet, "/frame/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleFrameNoFramesYet(t *testing.T) {
	s, _ := testServer(t, 50*time.Millisecond)

	router := NewRouter(s, "")
	req := httptest.NewRequest(http.MethodGet, "/frame/cam1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleReadyzReflectsSetReady(t *testing.T) {
	s, _ := testServer(t, 50*time.Millisecond)
	router := NewRouter(s, "")

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.SetReady(true)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePeopleCountReflectsRegistry(t *testing.T) {
	s, _ := testServer(t, 50*time.Millisecond)

	trk := &tracker.LocalTrack{Camera: "cam1", ID: 1, LatestEmbedding: []float32{1, 0, 0}}
	_, err := s.registry.Observe(context.Background(), "cam1", trk, time.Now())
	require.NoError(t, err)

	router := NewRouter(s, "")
	req := httptest.NewRequest(http.MethodGet, "/people-count", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body peopleCountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.TotalUnique)
	assert.Equal(t, 1, body.PerCamera["cam1"])
}
