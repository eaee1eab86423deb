package auth

// Package auth contains simple hand-written test doubles for the console ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	domainauth "github.com/target/opsconsole/internal/domain/auth"
	"github.com/target/opsconsole/internal/domain/capture"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.DeviceStore   = (*MemoryDeviceStore)(nil)
	_ ports.AuthGateway   = (*MockAuthGateway)(nil)
	_ ports.UserDirectory = (*StaticUserDirectory)(nil)
	_ ports.Camera        = (*CountingCamera)(nil)
	_ ports.Device        = (*FakeDevice)(nil)
	_ ports.Detector      = (*ScriptedDetector)(nil)
)

// MemoryDeviceStore is an in-memory device store for unit tests.
// PutErr and DeleteErr, when set, are returned instead of mutating.
type MemoryDeviceStore struct {
	mu        sync.Mutex
	values    map[string][]byte
	PutErr    error
	DeleteErr error
	Gets      int
	Puts      int
}

// NewMemoryDeviceStore creates a new in-memory device store.
func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{values: make(map[string][]byte)}
}

func (m *MemoryDeviceStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	v, ok := m.values[key]
	if !ok {
		return nil, apperrors.NotFoundf("key %q not found", key)
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryDeviceStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	m.Puts++
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryDeviceStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.values, key)
	return nil
}

// Raw returns the stored bytes for key, or nil.
func (m *MemoryDeviceStore) Raw(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

// Len returns the number of stored keys.
func (m *MemoryDeviceStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

// MockAuthGateway delegates to its Func fields; a nil field succeeds with zero values.
type MockAuthGateway struct {
	LoginFunc        func(ctx context.Context, key, secret string) (domainauth.Identity, error)
	ChangeSecretFunc func(ctx context.Context, key, newSecret string) error
}

func (m *MockAuthGateway) Login(ctx context.Context, key, secret string) (domainauth.Identity, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, key, secret)
	}
	return domainauth.Identity{Key: key, Role: domainauth.RoleOperator}, nil
}

func (m *MockAuthGateway) ChangeSecret(ctx context.Context, key, newSecret string) error {
	if m.ChangeSecretFunc != nil {
		return m.ChangeSecretFunc(ctx, key, newSecret)
	}
	return nil
}

// StaticUserDirectory returns Users, or Err when set, and counts calls.
type StaticUserDirectory struct {
	mu    sync.Mutex
	Users []domainauth.Identity
	Err   error
	Calls int
}

func (s *StaticUserDirectory) ListUsers(context.Context) ([]domainauth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]domainauth.Identity(nil), s.Users...), nil
}

// ErrCameraBusy is the default acquisition failure of CountingCamera.
var ErrCameraBusy = errors.New("camera busy")

// CountingCamera hands out FakeDevices and tracks how many are open.
// The first FailFirst acquisitions fail with AcquireErr (or ErrCameraBusy).
type CountingCamera struct {
	mu          sync.Mutex
	FailFirst   int
	AcquireErr  error
	// SnapshotErr is copied into every device handed out.
	SnapshotErr error
	acquires    int
	failNext    int
	open        int
	devices     []*FakeDevice
}

func (c *CountingCamera) Acquire(context.Context) (ports.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquires++
	if c.acquires <= c.FailFirst || c.failNext > 0 {
		if c.failNext > 0 {
			c.failNext--
		}
		if c.AcquireErr != nil {
			return nil, c.AcquireErr
		}
		return nil, ErrCameraBusy
	}
	c.open++
	d := &FakeDevice{camera: c, SnapshotErr: c.SnapshotErr}
	c.devices = append(c.devices, d)
	return d, nil
}

// FailNext makes the next n acquisitions fail.
func (c *CountingCamera) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}

// Acquires returns the number of Acquire calls, failed ones included.
func (c *CountingCamera) Acquires() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquires
}

// Open returns the number of devices acquired and not yet closed.
func (c *CountingCamera) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Devices returns every device handed out so far.
func (c *CountingCamera) Devices() []*FakeDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*FakeDevice(nil), c.devices...)
}

// FakeDevice renders a flat grey frame.
type FakeDevice struct {
	camera      *CountingCamera
	SnapshotErr error
	closed      bool
}

func (d *FakeDevice) Snapshot(context.Context) (image.Image, error) {
	if d.SnapshotErr != nil {
		return nil, d.SnapshotErr
	}
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.NRGBA{R: 0xff, A: 0xff})
	return img, nil
}

func (d *FakeDevice) Close() error {
	if d.camera == nil {
		d.closed = true
		return nil
	}
	d.camera.mu.Lock()
	defer d.camera.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.camera.open--
	}
	return nil
}

// Closed reports whether Close has been called.
func (d *FakeDevice) Closed() bool {
	if d.camera != nil {
		d.camera.mu.Lock()
		defer d.camera.mu.Unlock()
	}
	return d.closed
}

// ScriptedDetector returns Results in order, repeating the last one.
// Gate, when non-nil, is received from before answering so tests can hold a detection in flight.
type ScriptedDetector struct {
	mu      sync.Mutex
	Results []DetectResult
	Gate    chan struct{}
	calls   int
}

// DetectResult is one scripted detector answer.
type DetectResult struct {
	Candidate capture.Candidate
	Err       error
}

func (s *ScriptedDetector) Detect(ctx context.Context, _ capture.Frame) (capture.Candidate, error) {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return capture.Candidate{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.Results) == 0 {
		return capture.Candidate{}, apperrors.NoMatch("no scripted result")
	}
	idx := s.calls - 1
	if idx >= len(s.Results) {
		idx = len(s.Results) - 1
	}
	r := s.Results[idx]
	return r.Candidate, r.Err
}

// Calls returns how many detections ran to completion.
func (s *ScriptedDetector) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
