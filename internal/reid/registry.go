// Package reid implements the Global Identity Registry: the cross-camera
// merge step that takes per-camera LocalTracks and decides whether each one
// continues an existing global identity or starts a new one.
package reid

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/your-org/persontrack/internal/config"
	"github.com/your-org/persontrack/internal/detector"
	"github.com/your-org/persontrack/internal/tracker"
)

// GlobalIdentity is one person tracked across the camera network.
type GlobalIdentity struct {
	ID         string
	Embeddings *tracker.EmbeddingRing
	Cameras    map[string]cameraSighting
	CreatedAt  time.Time
	LastSeen   time.Time

	// primarySeen is set the first time this identity is refreshed from the
	// configured primary camera and is never cleared afterwards; it does not
	// track whether the ring still holds an embedding from that camera once
	// later sightings have evicted it. Only meaningful when a primary camera
	// is configured; gates the §4.3 step 2 restriction that non-primary
	// cameras may only extend an identity the primary camera has vouched for.
	primarySeen bool
}

type cameraSighting struct {
	bbox     [4]float32
	lastSeen time.Time
}

type localKey struct {
	camera  string
	localID int
}

// Registry merges per-camera local tracks into global identities. All
// mutating access goes through a channel-based try-lock rather than a plain
// sync.Mutex so a caller (the stream worker, on its own hot path) can bound
// how long it waits for the registry before giving up and retrying next
// frame rather than stalling video delivery.
type Registry struct {
	lock chan struct{}

	cfg     config.ReIDConfig
	overlap *config.OverlapGraphHolder

	byLocal  map[localKey]string
	byGlobal map[string]*GlobalIdentity

	newID  func() string
	events EventPublisher

	everCreated atomic.Int64
}

// NewRegistry creates a registry using cfg for thresholds/timeouts and
// overlap to restrict cross-camera matching to cameras that share a view.
// events may be nil (no lifecycle events published).
func NewRegistry(cfg config.ReIDConfig, overlap *config.OverlapGraphHolder, newID func() string, events EventPublisher) *Registry {
	lock := make(chan struct{}, 1)
	lock <- struct{}{}
	return &Registry{
		lock:     lock,
		cfg:      cfg,
		overlap:  overlap,
		byLocal:  make(map[localKey]string),
		byGlobal: make(map[string]*GlobalIdentity),
		newID:    newID,
		events:   events,
	}
}

func (r *Registry) tryLock(ctx context.Context, timeout time.Duration) bool {
	select {
	case <-r.lock:
		return true
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}

func (r *Registry) unlock() {
	r.lock <- struct{}{}
}

// lockTimeoutErr is the error behind ErrLockTimeout, which callers wrap in
// apperr.RegistryContention when the registry cannot be locked in time.
type lockTimeoutErr struct{}

func (lockTimeoutErr) Error() string { return "reid registry: lock timeout" }

// ErrLockTimeout is returned by Observe when the registry lock could not be
// acquired within the configured timeout.
var ErrLockTimeout error = lockTimeoutErr{}

// Observe records one confirmed local track sighting and returns the global
// identity it belongs to, creating one if no existing identity matches.
//
// Decision procedure (§4.3):
//  1. If this (camera, local id) pair is already bound to a global identity,
//     refresh that identity's state and return it — the common, cheap path.
//  2. If a primary camera is configured and this sighting isn't from it,
//     restrict matching to identities the primary camera has vouched for.
//  3. Appearance match: the live, eligible identity whose embedding ring's
//     best cosine similarity to this track clears the reid threshold.
//  4. Spatial match (fallback, only if step 3 found nothing): an eligible
//     identity last seen on an overlapping camera within the spatial window
//     whose last box there has high enough IoU with this one.
//  5. If found (step 3 or 4), bind this local track to that identity (a
//     cross-camera hand-off) instead of creating a new one.
//  6. If not found, and the primary-camera rule doesn't forbid this camera
//     from minting new identities, create a new global identity.
//  7. If the primary-camera rule forbids it and no match was found, the
//     sighting is held without a global identity (caller treats it as
//     locally-tracked-only for this frame).
func (r *Registry) Observe(ctx context.Context, camera string, local *tracker.LocalTrack, now time.Time) (string, error) {
	if !r.tryLock(ctx, r.cfg.LockTimeout) {
		return "", ErrLockTimeout
	}
	defer r.unlock()

	key := localKey{camera: camera, localID: local.ID}

	if gid, ok := r.byLocal[key]; ok {
		if ident, ok := r.byGlobal[gid]; ok {
			r.refresh(ident, camera, local, now)
			return gid, nil
		}
		delete(r.byLocal, key)
	}

	if ident := r.findMatch(camera, local, now); ident != nil {
		r.byLocal[key] = ident.ID
		r.refresh(ident, camera, local, now)
		return ident.ID, nil
	}

	if r.cfg.PrimaryCamera != nil && *r.cfg.PrimaryCamera != camera {
		return "", nil
	}

	ident := &GlobalIdentity{
		ID:         r.newID(),
		Embeddings: tracker.NewEmbeddingRing(r.cfg.RingCapacity),
		Cameras:    make(map[string]cameraSighting),
		CreatedAt:  now,
	}
	r.byGlobal[ident.ID] = ident
	r.byLocal[key] = ident.ID
	r.refresh(ident, camera, local, now)
	r.everCreated.Add(1)

	if r.events != nil {
		r.events.PublishCreated(ident.ID, camera)
	}

	return ident.ID, nil
}

func (r *Registry) refresh(ident *GlobalIdentity, camera string, local *tracker.LocalTrack, now time.Time) {
	ident.LastSeen = now
	ident.Cameras[camera] = cameraSighting{bbox: local.BBox, lastSeen: now}
	if local.LatestEmbedding != nil {
		ident.Embeddings.Push(local.LatestEmbedding)
	}
	if r.cfg.PrimaryCamera != nil && *r.cfg.PrimaryCamera == camera {
		ident.primarySeen = true
	}
}

// findMatch implements §4.3 steps 3-4: an appearance match against every live
// identity not already bound to this camera, falling back to a spatial
// (IoU) match against an overlapping camera's last sighting only when no
// appearance match succeeds. Appearance has precedence because, unlike the
// spatial fallback, it works across cameras with no shared field of view.
func (r *Registry) findMatch(camera string, local *tracker.LocalTrack, now time.Time) *GlobalIdentity {
	var graph *config.OverlapGraph
	if r.overlap != nil {
		graph = r.overlap.Load()
	}

	candidates := r.eligibleCandidates(camera, now)

	if local.LatestEmbedding != nil {
		if best := r.bestAppearanceMatch(candidates, camera, local.LatestEmbedding, graph); best != nil {
			return best
		}
	}

	return r.bestSpatialMatch(candidates, camera, local.BBox, now, graph)
}

// eligibleCandidates returns every live global identity not currently
// bound to an active local track on camera (enforcing I2): a camera that
// already holds a fresh binding is never a merge target for a second local
// track on that same camera. When a primary camera is configured and this
// sighting comes from elsewhere, candidates the primary camera has never
// vouched for are excluded (§4.3 step 2) — a non-primary camera may extend
// an identity but never adopt one the primary hasn't itself observed.
func (r *Registry) eligibleCandidates(camera string, now time.Time) []*GlobalIdentity {
	requirePrimary := r.cfg.PrimaryCamera != nil && *r.cfg.PrimaryCamera != camera

	var out []*GlobalIdentity
	for _, ident := range r.byGlobal {
		if now.Sub(ident.LastSeen) > r.cfg.TrackTimeout {
			continue
		}
		if sighted, ok := ident.Cameras[camera]; ok && now.Sub(sighted.lastSeen) < r.cfg.TrackTimeout {
			continue
		}
		if requirePrimary && !ident.primarySeen {
			continue
		}
		out = append(out, ident)
	}
	return out
}

func (r *Registry) bestAppearanceMatch(candidates []*GlobalIdentity, camera string, embedding []float32, graph *config.OverlapGraph) *GlobalIdentity {
	var best *GlobalIdentity
	bestSim := r.cfg.ReIDThreshold

	for _, ident := range candidates {
		if len(ident.Cameras) > 0 && graph != nil {
			_, sameCamera := ident.Cameras[camera]
			if !sameCamera && !ident.seenOnOverlapOf(graph, camera) {
				continue
			}
		}

		sim, ok := ident.Embeddings.MaxSimilarity(embedding)
		if !ok || sim < bestSim {
			continue
		}
		// Equal similarity: keep the identity seen most recently.
		if best != nil && sim == bestSim && !ident.LastSeen.After(best.LastSeen) {
			continue
		}
		bestSim = sim
		best = ident
	}

	return best
}

// bestSpatialMatch is the IoU-based fallback of §4.3 step 4: it only ever
// considers sightings on a camera overlapping with camera (never camera
// itself, which is the Local Tracker's job), within spatial_window, above
// spatial_iou.
func (r *Registry) bestSpatialMatch(candidates []*GlobalIdentity, camera string, box [4]float32, now time.Time, graph *config.OverlapGraph) *GlobalIdentity {
	if graph == nil {
		return nil
	}

	var best *GlobalIdentity
	bestIoU := r.cfg.SpatialIoU

	for _, ident := range candidates {
		for c, sighting := range ident.Cameras {
			if c == camera || !graph.Overlaps(camera, c) {
				continue
			}
			if now.Sub(sighting.lastSeen) > r.cfg.SpatialWindow {
				continue
			}
			iou := detector.IoU(sighting.bbox, box)
			if iou < bestIoU {
				continue
			}
			bestIoU = iou
			best = ident
		}
	}

	return best
}

// seenOnOverlapOf reports whether this identity has any recorded sighting
// (of any age) on camera itself or on a camera overlapping with it, qualifying it as a cross-camera hand-off
// candidate rather than an unrelated identity on a disjoint part of the
// camera network.
func (i *GlobalIdentity) seenOnOverlapOf(graph *config.OverlapGraph, camera string) bool {
	for c := range i.Cameras {
		if graph.Overlaps(camera, c) {
			return true
		}
	}
	return false
}

// Decay removes global identities (and their bindings) that haven't been
// seen within track_timeout, intended to run on a 1 Hz ticker so the registry's
// memory doesn't grow without bound as people leave the camera network.
func (r *Registry) Decay(ctx context.Context, now time.Time) {
	if !r.tryLock(ctx, r.cfg.LockTimeout) {
		return
	}
	defer r.unlock()

	for gid, ident := range r.byGlobal {
		if now.Sub(ident.LastSeen) <= r.cfg.TrackTimeout {
			continue
		}
		for key, boundGID := range r.byLocal {
			if boundGID == gid {
				delete(r.byLocal, key)
			}
		}
		delete(r.byGlobal, gid)
		if r.events != nil {
			r.events.PublishRemoved(gid)
		}
	}
}

// RunDecayLoop runs Decay once per second until ctx is cancelled. Intended to
// be started as its own goroutine from cmd/server.
func (r *Registry) RunDecayLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			r.Decay(ctx, t)
		}
	}
}

// ActiveCount returns the number of global identities currently tracked, for
// metrics/diagnostics.
func (r *Registry) ActiveCount(ctx context.Context) (int, error) {
	if !r.tryLock(ctx, r.cfg.LockTimeout) {
		return 0, ErrLockTimeout
	}
	defer r.unlock()
	return len(r.byGlobal), nil
}

// PerCameraCounts returns the number of distinct global identities currently
// bound to a local track on each camera. Because I2 forbids a global
// identity from holding two local tracks on the same camera, this is simply
// the count of (camera, local_id) bindings per camera.
func (r *Registry) PerCameraCounts(ctx context.Context) (map[string]int, error) {
	if !r.tryLock(ctx, r.cfg.LockTimeout) {
		return nil, ErrLockTimeout
	}
	defer r.unlock()

	counts := make(map[string]int)
	for key := range r.byLocal {
		counts[key.camera]++
	}
	return counts, nil
}

// EverCreated returns the total number of global identities ever allocated
// by this registry, including ones since retired by decay. Read with a plain
// atomic load since it is monotonic and never needs the registry lock's
// consistent-snapshot guarantee.
func (r *Registry) EverCreated() int64 {
	return r.everCreated.Load()
}
