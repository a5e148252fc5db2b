// Package worker drives one camera end to end: RTSP/MJPEG capture, person
// detection, local tracking, global identity registration, annotation, and
// publication to the latest-frame buffer the HTTP layer serves from.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/persontrack/internal/apperr"
	"github.com/your-org/persontrack/internal/capture"
	"github.com/your-org/persontrack/internal/config"
	"github.com/your-org/persontrack/internal/detector"
	"github.com/your-org/persontrack/internal/observability"
	"github.com/your-org/persontrack/internal/reid"
	"github.com/your-org/persontrack/internal/tracker"
)

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	// captureWidth is the frame width ffmpeg is asked to scale to before
	// handing frames off to the detector's own resize/preprocess step.
	captureWidth = 1280
)

// Status is a point-in-time snapshot of one worker's health, for /status.
type Status struct {
	Connected   bool
	FPS         float64
	BoundTracks int
}

// Worker runs the capture -> detect -> track -> register -> annotate ->
// publish loop for a single camera. One Worker per configured camera; all
// run concurrently as goroutines under cmd/server.
type Worker struct {
	camera config.CameraConfig

	detector detector.PersonDetector
	embedder detector.AppearanceEmbedder
	tracker  *tracker.CameraTracker
	registry *reid.Registry
	buffer   *FrameBuffer

	jpegQuality         int
	registryLockTimeout time.Duration

	logger *slog.Logger
	fps    *fpsEstimator

	connected   atomic.Bool
	boundTracks atomic.Int64

	mu        sync.Mutex
	extractor *capture.FFmpegExtractor

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New creates a worker for one camera. registry and buffer are shared
// infrastructure owned by cmd/server; detector/embedder/tracker are
// per-worker (the tracker is inherently per-camera; the detector/embedder
// may be shared handles behind their own internal locks).
func New(cam config.CameraConfig, trackerCfg config.TrackerConfig, det detector.PersonDetector, emb detector.AppearanceEmbedder, registry *reid.Registry, buffer *FrameBuffer, jpegQuality int, registryLockTimeout time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		camera:              cam,
		detector:            det,
		embedder:            emb,
		tracker:             tracker.NewCameraTracker(cam.ID, trackerCfg),
		registry:            registry,
		buffer:              buffer,
		jpegQuality:         jpegQuality,
		registryLockTimeout: registryLockTimeout,
		logger:              logger.With("camera", cam.ID),
		fps:                 newFPSEstimator(30),
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
	}
}

// Run drives the worker until ctx is cancelled or Stop is called. Intended
// to be launched as its own goroutine.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.doneCh)

	backoff := baseBackoff
	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		extractor := &capture.FFmpegExtractor{}
		w.mu.Lock()
		w.extractor = extractor
		w.mu.Unlock()

		published := w.buffer.seq.Load()
		err := extractor.StartExtraction(ctx, w.camera.URL, w.camera.FPS, captureWidth, w.processFrame)

		if ctx.Err() != nil {
			return
		}
		select {
		case <-w.stopCh:
			return
		default:
		}

		if w.buffer.seq.Load() != published {
			// The stream published frames before ending, so this failure
			// starts a new run instead of extending the previous one.
			consecutiveFailures = 0
		}
		consecutiveFailures++
		if err != nil {
			w.logger.Warn("capture stream ended", "error", apperr.New(apperr.Capture, w.camera.ID, err), "consecutive_failures", consecutiveFailures)
		}
		if consecutiveFailures >= 3 {
			w.connected.Store(false)
			w.logger.Warn("camera marked disconnected", "consecutive_failures", consecutiveFailures)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Stop signals the run loop to exit and blocks (up to 2s) for it to release
// its capture handle and return.
func (w *Worker) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		extractor := w.extractor
		w.mu.Unlock()
		if extractor != nil {
			extractor.Stop()
		}
	})

	select {
	case <-w.doneCh:
	case <-time.After(2 * time.Second):
	}
}

// processFrame is the per-frame pipeline body, invoked by the capture
// extractor for every decoded MJPEG frame. A non-nil return here never stops
// the stream (capture.FFmpegExtractor only logs callback errors); every
// failure mode described in §7 is absorbed here instead.
func (w *Worker) processFrame(frameData []byte) error {
	now := time.Now()

	img, err := jpeg.Decode(bytes.NewReader(frameData))
	if err != nil {
		return apperr.New(apperr.Capture, w.camera.ID, fmt.Errorf("decode frame: %w", err))
	}

	w.connected.Store(true)
	w.fps.Tick(now)

	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	inW, inH := w.detector.InputSize()
	detInput := detector.ToCHW(img, inW, inH)

	start := time.Now()
	detections, err := w.detector.Detect(detInput, origW, origH)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		w.logger.Warn("detector error", "error", apperr.New(apperr.Inference, w.camera.ID, err))
		detections = nil
	}
	if len(detections) > 0 {
		observability.PeopleDetected.WithLabelValues(w.camera.ID).Add(float64(len(detections)))
	}

	embedFn := func(d detector.Detection) ([]float32, error) {
		crop := detector.CropBox(img, d.BBox, 0.1)
		ew, eh := w.embedder.InputSize()
		cropInput := detector.ToCHW(crop, ew, eh)
		return w.embedder.Extract(cropInput)
	}

	start = time.Now()
	confirmed := w.tracker.Update(detections, embedFn)
	observability.InferenceDuration.WithLabelValues("track").Observe(time.Since(start).Seconds())
	w.boundTracks.Store(int64(len(confirmed)))

	regCtx, cancel := context.WithTimeout(context.Background(), w.registryLockTimeout)
	defer cancel()

	annotated := make([]annotatedTrack, 0, len(confirmed))
	for _, trk := range confirmed {
		gid, err := w.registry.Observe(regCtx, w.camera.ID, trk, now)
		if err != nil {
			w.logger.Warn("registry contention", "local_id", trk.ID, "error", apperr.New(apperr.RegistryContention, w.camera.ID, err))
		}
		annotated = append(annotated, annotatedTrack{bbox: trk.BBox, localID: trk.ID, globalID: gid})
	}

	globalCount, err := w.registry.ActiveCount(regCtx)
	if err != nil {
		globalCount = 0
	}

	rgba := toRGBA(img)
	Annotate(rgba, annotated, globalCount, w.fps.FPS())

	jpegBytes, err := EncodeJPEG(rgba, w.jpegQuality)
	if err != nil {
		w.logger.Warn("encode error", "error", apperr.New(apperr.Encode, w.camera.ID, err))
		return nil
	}

	w.buffer.Publish(jpegBytes, globalCount)
	observability.FramesProcessed.WithLabelValues(w.camera.ID).Inc()
	return nil
}

// Status reports the worker's current health for the /status endpoint.
func (w *Worker) Status() Status {
	return Status{
		Connected:   w.connected.Load(),
		FPS:         w.fps.FPS(),
		BoundTracks: int(w.boundTracks.Load()),
	}
}

// CameraID returns the id of the camera this worker drives.
func (w *Worker) CameraID() string {
	return w.camera.ID
}

// Buffer returns the worker's latest-frame slot, for the HTTP layer to read.
func (w *Worker) Buffer() *FrameBuffer {
	return w.buffer
}
