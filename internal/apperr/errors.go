// Package apperr defines the recoverable/fatal error taxonomy used across the
// pipeline. Call sites classify an error by kind rather than by type-asserting
// or relying on an exception hierarchy, since the hot paths (registry lookup,
// per-frame inference) must never pay for a thrown-and-caught control flow.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for logging and for the caller's recovery policy.
type Kind string

const (
	// Configuration is fatal at startup: missing model file, invalid camera
	// configuration, malformed overlap graph.
	Configuration Kind = "configuration"
	// Capture is per-camera and recoverable: RTSP handshake failure, timeout,
	// decoded frame read failure.
	Capture Kind = "capture"
	// Inference is per-frame and recoverable: detector or tracker failure on
	// a single frame.
	Inference Kind = "inference"
	// RegistryContention is per-track and soft: a registry mutex acquisition
	// timed out.
	RegistryContention Kind = "registry_contention"
	// Encode is per-frame: annotation or JPEG encoding failed.
	Encode Kind = "encode"
	// Client is an HTTP-facing error (bad camera id, stale frame, no frames yet).
	Client Kind = "client"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// errors.As without inspecting error strings.
type Error struct {
	Kind   Kind
	Camera string
	Err    error
}

func (e *Error) Error() string {
	if e.Camera != "" {
		return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Camera, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind wrapping err.
func New(kind Kind, camera string, err error) *Error {
	return &Error{Kind: kind, Camera: camera, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
