package tracker

import (
	"sync"
	"time"

	"github.com/your-org/persontrack/internal/config"
	"github.com/your-org/persontrack/internal/detector"
)

// EmbedFunc extracts an appearance embedding for one detection's crop. The
// Stream Worker supplies this so the tracker package never depends on image
// decoding or the ONNX runtime directly.
type EmbedFunc func(det detector.Detection) ([]float32, error)

// CameraTracker runs the local, single-camera tracking algorithm: predict,
// associate (two-stage, high then low confidence), update, and age/retire
// unmatched tracks. One instance per camera; Update and Tracks serialize on
// an internal mutex (the stream worker drives one goroutine per camera so
// there's never contention in practice).
type CameraTracker struct {
	mu       sync.Mutex
	camera   string
	cfg      config.TrackerConfig
	tracks   map[int]*LocalTrack
	nextID   int
	lastSeen time.Time
}

// NewCameraTracker creates a tracker for one camera using the given
// association/lifecycle tuning.
func NewCameraTracker(camera string, cfg config.TrackerConfig) *CameraTracker {
	return &CameraTracker{
		camera: camera,
		cfg:    cfg,
		tracks: make(map[int]*LocalTrack),
		nextID: 1,
	}
}

func (t *CameraTracker) weights() assocWeights {
	return assocWeights{
		wIoU:      t.cfg.WIoU,
		wApp:      t.cfg.WApp,
		matchIoU:  t.cfg.MatchIoU,
		appThresh: t.cfg.AppThresh,
		maxCost:   0.7,
	}
}

// Update advances the tracker by one frame of detections. detections should
// already be NMS-filtered by the detector. embed is called once per
// high-confidence detection, before association; low-confidence detections
// and those below low_conf are never embedded, to avoid spending
// embedding-model time on likely false positives.
//
// The algorithm:
//  1. Predict each existing track's box via constant-velocity motion.
//  2. Partition detections into high-confidence and low-confidence sets.
//  3. Associate predicted boxes against high-confidence detections using the
//     combined motion+appearance cost matrix.
//  4. Associate LOST tracks (including ones just marked LOST by a miss this
//     frame) against low-confidence detections using IoU alone, rescuing
//     tracks briefly occluded or under motion blur.
//  5. Update matched tracks' boxes/velocity/embeddings.
//  6. Spawn new NEW tracks for unmatched high-confidence detections.
//  7. Age unmatched tracks; transition CONFIRMED -> LOST -> REMOVED past
//     the track buffer horizon. An unmatched NEW track is removed at once.
func (t *CameraTracker) Update(detections []detector.Detection, embed EmbedFunc) []*LocalTrack {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSeen = time.Now()

	var highDet, lowDet []detector.Detection
	for _, d := range detections {
		if d.Confidence >= t.cfg.HighConf {
			highDet = append(highDet, d)
		} else if d.Confidence >= t.cfg.LowConf {
			lowDet = append(lowDet, d)
		}
	}

	activeIDs := make([]int, 0, len(t.tracks))
	for id, trk := range t.tracks {
		if trk.State == StateRemoved {
			continue
		}
		activeIDs = append(activeIDs, id)
	}

	predicted := make([][4]float32, len(activeIDs))
	trackEmb := make([][]float32, len(activeIDs))
	for i, id := range activeIDs {
		trk := t.tracks[id]
		predicted[i] = predictNextBox(trk)
		trackEmb[i] = trk.LatestEmbedding
	}

	highEmb := make([][]float32, len(highDet))
	if embed != nil {
		for i, d := range highDet {
			if emb, err := embed(d); err == nil {
				highEmb[i] = emb
			}
		}
	}

	primary := associate(predicted, trackEmb, highDet, highEmb, t.weights())

	matchedTrackIdx := make(map[int]bool, len(primary.matches))
	matchedDetIdx := make(map[int]bool, len(primary.matches))
	for _, m := range primary.matches {
		matchedTrackIdx[m.trackIdx] = true
		matchedDetIdx[m.detIdx] = true
		id := activeIDs[m.trackIdx]
		t.applyMatch(t.tracks[id], highDet[m.detIdx], highEmb[m.detIdx])
	}

	// A CONFIRMED track that missed the first pass is LOST immediately
	// (§4.2: "CONFIRMED -> LOST on miss"), which is what makes it eligible
	// for the second pass below — step 4 rescues unmatched LOST tracks
	// only, never tracks still awaiting their first confirmation.
	for _, ti := range primary.unmatchedTrk {
		trk := t.tracks[activeIDs[ti]]
		if trk.State == StateConfirmed {
			trk.State = StateLost
		}
	}

	var remainingPredicted [][4]float32
	var remainingTrackIdx []int
	for _, ti := range primary.unmatchedTrk {
		if t.tracks[activeIDs[ti]].State != StateLost {
			continue
		}
		remainingPredicted = append(remainingPredicted, predicted[ti])
		remainingTrackIdx = append(remainingTrackIdx, ti)
	}

	lowBoxes := make([][4]float32, len(lowDet))
	for i, d := range lowDet {
		lowBoxes[i] = d.BBox
	}

	secondary := associateIoUOnly(remainingPredicted, lowBoxes, t.cfg.SecondIoU)
	rescuedTrackIdx := make(map[int]bool)
	for _, m := range secondary.matches {
		origTrackIdx := remainingTrackIdx[m.trackIdx]
		rescuedTrackIdx[origTrackIdx] = true
		id := activeIDs[origTrackIdx]
		t.applyMatch(t.tracks[id], lowDet[m.detIdx], nil)
	}

	for i, id := range activeIDs {
		if matchedTrackIdx[i] || rescuedTrackIdx[i] {
			continue
		}
		t.ageOut(t.tracks[id])
	}

	for i, d := range highDet {
		if matchedDetIdx[i] {
			continue
		}
		t.spawn(d, highEmb[i])
	}

	var confirmed []*LocalTrack
	for id, trk := range t.tracks {
		if trk.State == StateRemoved {
			delete(t.tracks, id)
			continue
		}
		if trk.State == StateConfirmed {
			confirmed = append(confirmed, trk)
		}
	}
	return confirmed
}

func (t *CameraTracker) applyMatch(trk *LocalTrack, det detector.Detection, emb []float32) {
	updateVelocity(trk, det.BBox)
	trk.BBox = det.BBox
	trk.Hits++
	trk.Age++
	trk.TimeSinceUpdate = 0
	trk.LastUpdatedAt = time.Now()
	if emb != nil {
		trk.LatestEmbedding = emb
		trk.Embeddings.Push(emb)
	}
	if trk.State == StateNew && trk.Hits >= t.cfg.MinHits {
		trk.State = StateConfirmed
	} else if trk.State == StateLost {
		trk.State = StateConfirmed
	}
}

func (t *CameraTracker) ageOut(trk *LocalTrack) {
	trk.Age++
	trk.TimeSinceUpdate++
	if trk.State == StateConfirmed && trk.TimeSinceUpdate > 0 {
		trk.State = StateLost
	}
	if trk.TimeSinceUpdate > t.cfg.TrackBuffer {
		trk.State = StateRemoved
	}
	if trk.State == StateNew && trk.TimeSinceUpdate > 0 {
		trk.State = StateRemoved
	}
}

func (t *CameraTracker) spawn(det detector.Detection, emb []float32) {
	ring := NewEmbeddingRing(10)
	if emb != nil {
		ring.Push(emb)
	}
	trk := &LocalTrack{
		Camera:          t.camera,
		ID:              t.nextID,
		BBox:            det.BBox,
		LatestEmbedding: emb,
		Embeddings:      ring,
		Age:             1,
		Hits:            1,
		State:           StateNew,
		LastUpdatedAt:   time.Now(),
	}
	t.nextID++
	t.tracks[trk.ID] = trk
	if t.cfg.MinHits <= 1 {
		trk.State = StateConfirmed
	}
}

// Tracks returns every non-removed track, for diagnostics/testing.
func (t *CameraTracker) Tracks() []*LocalTrack {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*LocalTrack, 0, len(t.tracks))
	for _, trk := range t.tracks {
		out = append(out, trk)
	}
	return out
}
