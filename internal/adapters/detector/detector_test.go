package detector

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/opsconsole/internal/domain/capture"
	apperrors "github.com/target/opsconsole/internal/errors"
)

func testFrame() capture.Frame {
	return capture.Frame{Image: image.NewNRGBA(image.Rect(0, 0, 32, 24)), Digest: "abc123"}
}

func TestRemote_Detect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc123", r.Header.Get("X-Frame-Digest"))

		zr, err := gzip.NewReader(r.Body)
		if !assert.NoError(t, err) {
			return
		}
		img, err := jpeg.Decode(zr)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, 32, img.Bounds().Dx())

		_ = json.NewEncoder(w).Encode(map[string]any{"key": "103", "confidence": 0.93})
	}))
	defer srv.Close()

	d, err := NewRemote(RemoteConfig{URL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	cand, err := d.Detect(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Equal(t, capture.Candidate{Key: "103", Confidence: 0.93}, cand)
}

func TestRemote_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{status: http.StatusNotFound, check: apperrors.IsNoMatch},
		{status: http.StatusUnprocessableEntity, check: apperrors.IsNoMatch},
		{status: http.StatusInternalServerError, check: apperrors.IsTransportUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			d, err := NewRemote(RemoteConfig{URL: srv.URL, HTTPClient: srv.Client()})
			require.NoError(t, err)

			_, err = d.Detect(context.Background(), testFrame())
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestRemote_EmptyKeyIsNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"key":"","confidence":0.2}`))
	}))
	defer srv.Close()

	d, err := NewRemote(RemoteConfig{URL: srv.URL})
	require.NoError(t, err)

	_, err = d.Detect(context.Background(), testFrame())
	assert.True(t, apperrors.IsNoMatch(err))
}

func TestRemote_RequiresImage(t *testing.T) {
	d, err := NewRemote(RemoteConfig{URL: "http://127.0.0.1:1/detect"})
	require.NoError(t, err)

	_, err = d.Detect(context.Background(), capture.Frame{})
	assert.True(t, apperrors.IsValidation(err))
}

func TestStatic(t *testing.T) {
	cand, err := Static{Key: "103"}.Detect(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Equal(t, capture.Candidate{Key: "103", Confidence: 1}, cand)

	_, err = Static{}.Detect(context.Background(), testFrame())
	assert.True(t, apperrors.IsNoMatch(err))
}
