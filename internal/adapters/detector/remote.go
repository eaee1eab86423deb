// Package detector provides ports.Detector implementations.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/target/opsconsole/internal/domain/capture"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/ports"
)

var _ ports.Detector = (*Remote)(nil)

// RemoteConfig configures the HTTP detection endpoint.
type RemoteConfig struct {
	URL        string
	HTTPClient *http.Client
	// JPEGQuality defaults to 85.
	JPEGQuality int
	Logger      *slog.Logger
}

// Remote posts frames as gzip-compressed JPEG to a detection service.
type Remote struct {
	url     string
	client  *http.Client
	quality int
	logger  *slog.Logger
}

// NewRemote builds a remote detector.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	u := strings.TrimSpace(cfg.URL)
	if u == "" {
		return nil, errors.New("detector url is required")
	}
	q := cfg.JPEGQuality
	if q <= 0 || q > 100 {
		q = 85
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{url: u, client: hc, quality: q, logger: logger.With("component", "detector")}, nil
}

// Detect uploads frame and decodes {"key", "confidence"}.
// 404 and 422 mean nobody was recognized and map to NoMatch.
func (r *Remote) Detect(ctx context.Context, frame capture.Frame) (capture.Candidate, error) {
	if frame.Image == nil {
		return capture.Candidate{}, apperrors.Validation("frame has no image")
	}
	body, err := r.encode(frame)
	if err != nil {
		return capture.Candidate{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return capture.Candidate{}, fmt.Errorf("create detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept", "application/json")
	if frame.Digest != "" {
		req.Header.Set("X-Frame-Digest", frame.Digest)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return capture.Candidate{}, apperrors.MapTransportError(err, "detect request failed")
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.DebugContext(ctx, "close detect response", "error", cerr)
		}
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return capture.Candidate{}, apperrors.MapTransportError(err, "read detect response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusUnprocessableEntity:
		return capture.Candidate{}, apperrors.NoMatchf("detector found no match (status %d)", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return capture.Candidate{}, apperrors.TransportUnavailable(
			fmt.Errorf("status %d", resp.StatusCode), "detector unavailable")
	}

	var cand capture.Candidate
	if err := json.Unmarshal(data, &cand); err != nil {
		return capture.Candidate{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode detect response")
	}
	cand.Key = strings.TrimSpace(cand.Key)
	if cand.Key == "" {
		return capture.Candidate{}, apperrors.NoMatch("detector returned no key")
	}
	return cand, nil
}

func (r *Remote) encode(frame capture.Frame) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if err := jpeg.Encode(zw, frame.Image, &jpeg.Options{Quality: r.quality}); err != nil {
		return nil, errors.Join(fmt.Errorf("encode jpeg: %w", err), zw.Close())
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}
