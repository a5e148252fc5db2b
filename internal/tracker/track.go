// Package tracker implements the per-camera two-stage data-association
// Local Tracker: motion-predicted, appearance-assisted matching that turns an
// unordered set of detections into stable LocalTracks with bounded embedding
// history.
package tracker

import (
	"time"

	"github.com/your-org/persontrack/internal/detector"
)

// State is a LocalTrack's lifecycle stage.
type State int

const (
	StateNew State = iota
	StateConfirmed
	StateLost
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateConfirmed:
		return "CONFIRMED"
	case StateLost:
		return "LOST"
	case StateRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// EmbeddingRing is a fixed-capacity FIFO ring of appearance embeddings. Push
// never removes without also adding, so the ring can never be emptied by
// eviction alone (the spec's "never happens" case for an emptied ring).
type EmbeddingRing struct {
	buf []([]float32)
	cap int
	pos int
	len int
}

// NewEmbeddingRing creates a ring with the given capacity (K, spec default 10).
func NewEmbeddingRing(capacity int) *EmbeddingRing {
	return &EmbeddingRing{buf: make([][]float32, capacity), cap: capacity}
}

// Push appends an embedding, evicting the oldest entry once full.
func (r *EmbeddingRing) Push(embedding []float32) {
	if r.cap == 0 {
		return
	}
	r.buf[r.pos] = embedding
	r.pos = (r.pos + 1) % r.cap
	if r.len < r.cap {
		r.len++
	}
}

// MaxSimilarity returns the maximum cosine similarity between query and any
// embedding currently in the ring (recent appearances dominate, per spec,
// because max rather than mean is used). Returns false if the ring is empty.
func (r *EmbeddingRing) MaxSimilarity(query []float32) (float32, bool) {
	if r.len == 0 {
		return 0, false
	}
	best := float32(-2) // below any valid cosine similarity
	for i := 0; i < r.len; i++ {
		if r.buf[i] == nil {
			continue
		}
		sim := detector.CosineSimilarity(query, r.buf[i])
		if sim > best {
			best = sim
		}
	}
	if best < -1 {
		return 0, false
	}
	return best, true
}

// Len returns the number of embeddings currently stored.
func (r *EmbeddingRing) Len() int { return r.len }

// LocalTrack is a person identity scoped to one camera.
type LocalTrack struct {
	Camera          string
	ID              int // positive, unique within camera, monotonic
	BBox            [4]float32
	velocity        [2]float32 // center velocity, px/frame, exponentially smoothed
	LatestEmbedding []float32
	Embeddings      *EmbeddingRing
	Age             int
	Hits            int
	TimeSinceUpdate int
	State           State
	LastUpdatedAt   time.Time
}

// Center returns the box center point.
func (t *LocalTrack) Center() (float32, float32) {
	return (t.BBox[0] + t.BBox[2]) / 2, (t.BBox[1] + t.BBox[3]) / 2
}
