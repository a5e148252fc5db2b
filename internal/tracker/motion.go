package tracker

// predictNextBox advances a track's bounding box by one frame of its
// exponentially-smoothed center velocity, keeping width/height fixed. This is
// a constant-velocity predictor in the idiom of an alpha-filtered Kalman
// tracker rather than a literal Kalman filter: cheap, stateless beyond the
// single velocity vector, and tolerant of the noisy per-frame detections a
// single-stage detector produces.
func predictNextBox(t *LocalTrack) [4]float32 {
	w := t.BBox[2] - t.BBox[0]
	h := t.BBox[3] - t.BBox[1]
	cx := (t.BBox[0]+t.BBox[2])/2 + t.velocity[0]
	cy := (t.BBox[1]+t.BBox[3])/2 + t.velocity[1]

	return [4]float32{
		cx - w/2,
		cy - h/2,
		cx + w/2,
		cy + h/2,
	}
}

// updateVelocity blends the observed center displacement into the track's
// smoothed velocity estimate. alpha close to 1 favors the newest observation;
// the spec calls for a steady, not jumpy, motion estimate so a moderate alpha
// is used.
const velocitySmoothingAlpha = 0.6

func updateVelocity(t *LocalTrack, newBox [4]float32) {
	oldCX, oldCY := t.Center()
	newCX := (newBox[0] + newBox[2]) / 2
	newCY := (newBox[1] + newBox[3]) / 2

	dx := newCX - oldCX
	dy := newCY - oldCY

	if t.Hits == 0 {
		t.velocity = [2]float32{dx, dy}
		return
	}

	t.velocity[0] = velocitySmoothingAlpha*dx + (1-velocitySmoothingAlpha)*t.velocity[0]
	t.velocity[1] = velocitySmoothingAlpha*dy + (1-velocitySmoothingAlpha)*t.velocity[1]
}
