package camera

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/target/opsconsole/internal/ports"
)

var _ ports.Camera = (*Still)(nil)

// Still serves a fixed image file as the video feed. It backs kiosks without a
// camera and development setups.
type Still struct {
	path string
	excl exclusive
}

// NewStill returns a camera that reads path on every Acquire.
func NewStill(path string) *Still {
	return &Still{path: path}
}

func (s *Still) Acquire(ctx context.Context) (ports.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.excl.claim(); err != nil {
		return nil, err
	}
	img, err := imaging.Open(s.path, imaging.AutoOrientation(true))
	if err != nil {
		s.excl.release()
		return nil, fmt.Errorf("open still image %s: %w", s.path, err)
	}
	return &device{
		owner:    &s.excl,
		snapshot: func(context.Context) (image.Image, error) { return img, nil },
	}, nil
}
