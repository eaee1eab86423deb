package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/opsconsole/config"
	"github.com/target/opsconsole/internal/adapters/camera"
	"github.com/target/opsconsole/internal/adapters/detector"
	"github.com/target/opsconsole/internal/ports"
)

// NewCamera builds the configured frame source.
//
//nolint:ireturn // the camera depends on CAPTURE_CAMERA
func NewCamera(cfg config.CaptureConfig) (ports.Camera, error) {
	switch cfg.Camera {
	case config.CameraStill:
		return camera.NewStill(cfg.StillPath), nil
	case config.CameraSnapshot, "":
		return camera.NewSnapshot(cfg.SnapshotURL, nil)
	default:
		return nil, fmt.Errorf("unsupported camera %q", cfg.Camera)
	}
}

// NewDetector builds the configured face detector.
//
//nolint:ireturn // the detector depends on DETECTOR_MODE
func NewDetector(cfg config.CaptureConfig, logger *slog.Logger) (ports.Detector, error) {
	switch cfg.Detector {
	case config.DetectorStatic:
		if logger != nil {
			logger.Warn("static detector in use, every frame is recognized", "key", cfg.StaticKey)
		}
		return detector.Static{Key: cfg.StaticKey}, nil
	case config.DetectorRemote, "":
		return detector.NewRemote(detector.RemoteConfig{
			URL:        cfg.DetectorURL,
			HTTPClient: &http.Client{Timeout: cfg.DetectorTimeout},
			Logger:     logger,
		})
	default:
		return nil, fmt.Errorf("unsupported detector %q", cfg.Detector)
	}
}
