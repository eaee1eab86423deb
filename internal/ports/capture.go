package ports

import (
	"context"
	"image"

	"github.com/target/opsconsole/internal/domain/capture"
)

// Camera hands out exclusive device handles.
type Camera interface {
	Acquire(ctx context.Context) (Device, error)
}

// Device is an open camera handle. Close releases it and is safe to call more than once.
type Device interface {
	// Snapshot returns the current video frame.
	Snapshot(ctx context.Context) (image.Image, error)
	Close() error
}

// Detector identifies the person in a frame.
type Detector interface {
	Detect(ctx context.Context, frame capture.Frame) (capture.Candidate, error)
}
