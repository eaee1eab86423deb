package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for snapshot payloads
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/opsconsole/internal/ports"
)

var _ ports.Camera = (*Snapshot)(nil)

// Snapshot reads frames from an HTTP still-image endpoint, as exposed by most IP cameras.
type Snapshot struct {
	url    string
	client *http.Client
	excl   exclusive
}

// NewSnapshot builds a snapshot camera for url.
func NewSnapshot(url string, client *http.Client) (*Snapshot, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("snapshot url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Snapshot{url: url, client: client}, nil
}

// Acquire claims the camera and fetches one frame to prove the feed is live.
func (s *Snapshot) Acquire(ctx context.Context) (ports.Device, error) {
	if err := s.excl.claim(); err != nil {
		return nil, err
	}
	if _, err := s.fetch(ctx); err != nil {
		s.excl.release()
		return nil, err
	}
	return &device{owner: &s.excl, snapshot: s.fetch}, nil
}

func (s *Snapshot) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch snapshot: status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return img, nil
}
