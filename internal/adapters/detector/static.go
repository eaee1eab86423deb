package detector

import (
	"context"

	"github.com/target/opsconsole/internal/domain/capture"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/ports"
)

var _ ports.Detector = Static{}

// Static recognizes every frame as Key. It stands in for a detection service in
// development and demos; an empty Key never matches.
type Static struct {
	Key        string
	Confidence float64
}

func (s Static) Detect(ctx context.Context, frame capture.Frame) (capture.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return capture.Candidate{}, err
	}
	if s.Key == "" || frame.Image == nil {
		return capture.Candidate{}, apperrors.NoMatch("static detector has no key")
	}
	conf := s.Confidence
	if conf <= 0 {
		conf = 1
	}
	return capture.Candidate{Key: s.Key, Confidence: conf}, nil
}
