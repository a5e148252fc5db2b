package worker

import (
	"sync/atomic"
	"time"
)

// publishedFrame is one fully processed, annotated, JPEG-encoded frame ready
// for HTTP delivery.
type publishedFrame struct {
	JPEG        []byte
	Timestamp   time.Time
	PeopleCount int
	Seq         uint64
}

// FrameBuffer is a single-slot, lock-free publish/subscribe point: exactly
// one writer (the stream worker's processing loop) swaps in the latest frame,
// and any number of readers (HTTP handlers) load it without blocking the
// writer or each other.
type FrameBuffer struct {
	ptr atomic.Pointer[publishedFrame]
	seq atomic.Uint64
}

// Publish swaps in the latest frame, stamping it with the next monotonic
// per-camera sequence number (I5: publications are strictly monotonic by
// timestamp and sequence number). The sequence number is kept on the stored
// frame record; Latest does not return it.
func (b *FrameBuffer) Publish(jpegData []byte, peopleCount int) {
	b.ptr.Store(&publishedFrame{
		JPEG:        jpegData,
		Timestamp:   time.Now(),
		PeopleCount: peopleCount,
		Seq:         b.seq.Add(1),
	})
}

// Latest returns the most recently published frame, or nil if nothing has
// been published yet.
func (b *FrameBuffer) Latest() (data []byte, timestamp time.Time, peopleCount int, ok bool) {
	f := b.ptr.Load()
	if f == nil {
		return nil, time.Time{}, 0, false
	}
	return f.JPEG, f.Timestamp, f.PeopleCount, true
}

// Age returns how long ago the current frame was published. Callers compare
// this against a freshness bound to decide whether the stream is considered
// live.
func (b *FrameBuffer) Age() (time.Duration, bool) {
	f := b.ptr.Load()
	if f == nil {
		return 0, false
	}
	return time.Since(f.Timestamp), true
}
