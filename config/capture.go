package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/opsconsole/internal/domain/capture"
)

// CameraMode selects the frame source.
type CameraMode string

const (
	// CameraSnapshot fetches JPEG frames from an HTTP snapshot endpoint.
	CameraSnapshot CameraMode = "snapshot"
	// CameraStill decodes a single image file, for development.
	CameraStill CameraMode = "still"
)

// UnmarshalText implements encoding.TextUnmarshaler for CameraMode.
func (m *CameraMode) UnmarshalText(text []byte) error {
	v := CameraMode(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case CameraSnapshot, CameraStill:
		*m = v
		return nil
	default:
		return fmt.Errorf("invalid CameraMode: %q (valid options: snapshot, still)", string(text))
	}
}

// DetectorMode selects the face detector.
type DetectorMode string

const (
	// DetectorRemote posts frames to a detection service.
	DetectorRemote DetectorMode = "remote"
	// DetectorStatic recognizes every frame as a fixed key.
	DetectorStatic DetectorMode = "static"
)

// UnmarshalText implements encoding.TextUnmarshaler for DetectorMode.
func (m *DetectorMode) UnmarshalText(text []byte) error {
	v := DetectorMode(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case DetectorRemote, DetectorStatic:
		*m = v
		return nil
	default:
		return fmt.Errorf("invalid DetectorMode: %q (valid options: remote, static)", string(text))
	}
}

// CaptureConfig configures biometric capture.
type CaptureConfig struct {
	Camera      CameraMode `env:"CAPTURE_CAMERA"       envDefault:"snapshot"`
	SnapshotURL string     `env:"CAPTURE_SNAPSHOT_URL"`
	StillPath   string     `env:"CAPTURE_STILL_PATH"`

	RetryInterval time.Duration `env:"CAPTURE_RETRY_INTERVAL" envDefault:"3s"`
	MaxAttempts   int           `env:"CAPTURE_MAX_ATTEMPTS"   envDefault:"10"`
	// MaxElapsed bounds time since the first failure; 0 disables the bound.
	MaxElapsed    time.Duration `env:"CAPTURE_MAX_ELAPSED"    envDefault:"0s"`
	MinConfidence float64       `env:"CAPTURE_MIN_CONFIDENCE" envDefault:"0.8"`
	FrameWidth    int           `env:"CAPTURE_FRAME_WIDTH"    envDefault:"640"`
	FrameHeight   int           `env:"CAPTURE_FRAME_HEIGHT"   envDefault:"480"`

	Detector        DetectorMode  `env:"DETECTOR_MODE"       envDefault:"remote"`
	DetectorURL     string        `env:"DETECTOR_URL"`
	StaticKey       string        `env:"DETECTOR_STATIC_KEY"`
	DetectorTimeout time.Duration `env:"DETECTOR_TIMEOUT"    envDefault:"10s"`
}

// Sanitize trims values and clamps numeric ranges.
func (c *CaptureConfig) Sanitize() {
	if c.Camera == "" {
		c.Camera = CameraSnapshot
	}
	if c.Detector == "" {
		c.Detector = DetectorRemote
	}
	c.SnapshotURL = strings.TrimSpace(c.SnapshotURL)
	c.StillPath = strings.TrimSpace(c.StillPath)
	c.DetectorURL = strings.TrimSpace(c.DetectorURL)
	c.StaticKey = strings.TrimSpace(c.StaticKey)
	if c.RetryInterval <= 0 {
		c.RetryInterval = capture.DefaultRetryInterval
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	if c.MaxElapsed < 0 {
		c.MaxElapsed = 0
	}
	if c.MinConfidence < 0 {
		c.MinConfidence = 0
	}
	if c.MinConfidence > 1 {
		c.MinConfidence = 1
	}
	if c.FrameWidth < 0 {
		c.FrameWidth = 0
	}
	if c.FrameHeight < 0 {
		c.FrameHeight = 0
	}
	if c.DetectorTimeout < 0 {
		c.DetectorTimeout = 0
	}
}

// Validate reports missing source settings for the selected modes.
// Only biometric commands need a valid capture section.
func (c *CaptureConfig) Validate() error {
	var errs []error
	switch c.Camera {
	case CameraSnapshot:
		if c.SnapshotURL == "" {
			errs = append(errs, errors.New("CAPTURE_SNAPSHOT_URL is required when CAPTURE_CAMERA=snapshot"))
		}
	case CameraStill:
		if c.StillPath == "" {
			errs = append(errs, errors.New("CAPTURE_STILL_PATH is required when CAPTURE_CAMERA=still"))
		}
	}
	switch c.Detector {
	case DetectorRemote:
		if c.DetectorURL == "" {
			errs = append(errs, errors.New("DETECTOR_URL is required when DETECTOR_MODE=remote"))
		}
	case DetectorStatic:
		if c.StaticKey == "" {
			errs = append(errs, errors.New("DETECTOR_STATIC_KEY is required when DETECTOR_MODE=static"))
		}
	}
	return errors.Join(errs...)
}

// Enabled reports whether a camera source is configured at all.
func (c *CaptureConfig) Enabled() bool {
	switch c.Camera {
	case CameraStill:
		return c.StillPath != ""
	default:
		return c.SnapshotURL != ""
	}
}

// RetryPolicy converts the retry settings to a capture.RetryPolicy.
func (c *CaptureConfig) RetryPolicy() capture.RetryPolicy {
	return capture.RetryPolicy{
		Interval:    c.RetryInterval,
		MaxAttempts: c.MaxAttempts,
		MaxElapsed:  c.MaxElapsed,
	}
}
