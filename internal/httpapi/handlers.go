package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type cameraStatus struct {
	Connected   bool    `json:"connected"`
	FPS         float64 `json:"fps"`
	BoundTracks int     `json:"bound_tracks"`
}

type statusResponse map[string]cameraStatus

type peopleCountResponse struct {
	TotalUnique int            `json:"total_unique"`
	PerCamera   map[string]int `json:"per_camera"`
	Ts          int64          `json:"ts"`
}

type trackingStatsResponse struct {
	Status                  statusResponse      `json:"status"`
	PeopleCount             peopleCountResponse `json:"people_count"`
	GlobalTracksEverCreated int64               `json:"global_tracks_ever_created"`
	ActiveGlobals           int                 `json:"active_globals"`
}

func noCacheHeaders(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

// handleFrame serves the newest encoded frame for one camera if and only if
// it's still fresh, never a stale image (I6). The Q parameter is advisory
// per §4.5 — this endpoint never re-encodes — and accepted but unused since
// only one pre-encoded variant is maintained per camera.
func (s *Server) handleFrame(c *gin.Context) {
	noCacheHeaders(c)

	camera := c.Param("camera")
	w, ok := s.workers[camera]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown camera"})
		return
	}

	data, ts, _, ok := w.Buffer().Latest()
	if !ok {
		c.Header("X-Reason", "no-frames-yet")
		c.Status(http.StatusServiceUnavailable)
		return
	}

	if time.Since(ts) > s.freshnessBound {
		c.Header("X-Reason", "stale")
		c.Status(http.StatusNotFound)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

func (s *Server) buildStatus() statusResponse {
	out := make(statusResponse, len(s.workers))
	for id, w := range s.workers {
		st := w.Status()
		out[id] = cameraStatus{Connected: st.Connected, FPS: st.FPS, BoundTracks: st.BoundTracks}
	}
	return out
}

func (s *Server) handleStatus(c *gin.Context) {
	payload := s.cache.GetOrCompute("status", func() any { return s.buildStatus() })
	c.JSON(http.StatusOK, payload)
}

func (s *Server) buildPeopleCount(ctx context.Context) peopleCountResponse {
	total, err := s.registry.ActiveCount(ctx)
	if err != nil {
		total = 0
	}
	perCamera, err := s.registry.PerCameraCounts(ctx)
	if err != nil {
		perCamera = map[string]int{}
	}
	return peopleCountResponse{TotalUnique: total, PerCamera: perCamera, Ts: time.Now().UnixMilli()}
}

func (s *Server) handlePeopleCount(c *gin.Context) {
	payload := s.cache.GetOrCompute("people-count", func() any {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.statusLockTimeout)
		defer cancel()
		return s.buildPeopleCount(ctx)
	})
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleTrackingStats(c *gin.Context) {
	payload := s.cache.GetOrCompute("tracking-stats", func() any {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.statusLockTimeout)
		defer cancel()

		active, err := s.registry.ActiveCount(ctx)
		if err != nil {
			active = 0
		}

		return trackingStatsResponse{
			Status:                  s.buildStatus(),
			PeopleCount:             s.buildPeopleCount(ctx),
			GlobalTracksEverCreated: s.registry.EverCreated(),
			ActiveGlobals:           active,
		}
	})
	c.JSON(http.StatusOK, payload)
}

// handleHealthz reports liveness: 200 once the process has bound its port,
// which is true by construction once this handler is reachable at all.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReadyz reports readiness: 200 once every configured camera worker
// has started (not necessarily CONNECTED — a camera that's down is still a
// started worker retrying in the background).
func (s *Server) handleReadyz(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
