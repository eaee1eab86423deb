package service

import (
	"context"
	"encoding/hex"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/target/opsconsole/internal/clock"
	domainauth "github.com/target/opsconsole/internal/domain/auth"
	"github.com/target/opsconsole/internal/domain/capture"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/observability/metrics"
	"github.com/target/opsconsole/internal/ports"
)

// IdentityResolver looks an identity up by key.
type IdentityResolver interface {
	Resolve(ctx context.Context, key string) (domainauth.Identity, error)
}

// BiometricEstablisher turns a resolved identity into the active session.
type BiometricEstablisher interface {
	EstablishBiometric(ctx context.Context, identity domainauth.Identity) (domainauth.Session, error)
}

// CaptureListener receives capture machine events. It runs outside the machine's lock
// and may call back into the machine.
type CaptureListener func(capture.Event)

// CaptureMachineOptions groups dependencies and tuning for CaptureMachine.
type CaptureMachineOptions struct {
	Camera   ports.Camera
	Detector ports.Detector
	Resolver IdentityResolver
	Sessions BiometricEstablisher
	Policy   capture.RetryPolicy
	// MinConfidence rejects detector candidates scoring below it.
	MinConfidence float64
	// FrameWidth and FrameHeight bound rendered frames; zero keeps the native size.
	FrameWidth  int
	FrameHeight int
	Clock       clock.Clock
	Metrics     *metrics.Console
	Logger      *slog.Logger
}

// CaptureMachine drives one biometric capture session:
// IDLE -> ACTIVE -> DETECTING -> SUCCESS | ERROR_RETRY, ERROR_RETRY -> ACTIVE after the retry
// delay, and any state -> IDLE on Cancel or Close.
//
// The machine owns the camera device exclusively. The device is open only in ACTIVE and
// DETECTING, and a pending retry timer is stopped whenever the device is released for any
// reason other than that timer firing.
type CaptureMachine struct {
	camera   ports.Camera
	detector ports.Detector
	resolver IdentityResolver
	sessions BiometricEstablisher
	policy   capture.RetryPolicy
	minConf  float64
	width    int
	height   int
	clock    clock.Clock
	metrics  *metrics.Console
	logger   *slog.Logger

	// life scopes retries started by the timer; Close cancels it.
	life context.Context
	stop context.CancelFunc

	mu           sync.Mutex
	state        capture.State
	device       ports.Device
	acquiring    bool
	retryTimer   *clock.Timer
	retrySeq     uint64
	retryCount   int
	attemptID    string
	startedAt    time.Time
	failingSince time.Time
	lastFrame    *capture.Frame
	gen          uint64
	exhausted    bool
	closed       bool
	queued       []capture.Event
	listeners    map[int]CaptureListener
	nextSub      int
}

// NewCaptureMachine constructs an IDLE machine.
func NewCaptureMachine(opts CaptureMachineOptions) *CaptureMachine {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy.Interval <= 0 {
		policy.Interval = capture.DefaultRetryInterval
	}
	life, stop := context.WithCancel(context.Background())
	return &CaptureMachine{
		camera:    opts.Camera,
		detector:  opts.Detector,
		resolver:  opts.Resolver,
		sessions:  opts.Sessions,
		policy:    policy,
		minConf:   opts.MinConfidence,
		width:     opts.FrameWidth,
		height:    opts.FrameHeight,
		clock:     clk,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "capture"),
		life:      life,
		stop:      stop,
		state:     capture.StateIdle,
		listeners: make(map[int]CaptureListener),
	}
}

// Start acquires the camera and enters ACTIVE. An acquisition failure enters ERROR_RETRY and
// schedules exactly one retry, which acquires again. Start while ACTIVE is a no-op.
func (m *CaptureMachine) Start(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.unlock()
		return apperrors.Canceled("capture machine is closed")
	case m.acquiring:
		m.unlock()
		return apperrors.Busy("camera acquisition already in progress")
	case m.state == capture.StateActive:
		m.unlock()
		return nil
	case m.state == capture.StateDetecting:
		m.unlock()
		return apperrors.InvalidStatef("cannot start while %s", capture.StateDetecting)
	}

	return m.acquireLocked(ctx)
}

// acquireLocked is entered with m.mu held and releases it before touching the camera.
func (m *CaptureMachine) acquireLocked(ctx context.Context) error {
	if m.state != capture.StateErrorRetry {
		m.attemptID = uuid.NewString()
		m.retryCount = 0
		m.startedAt = m.clock.Now()
		m.failingSince = time.Time{}
		m.lastFrame = nil
		m.exhausted = false
	}
	m.stopRetryLocked()
	m.acquiring = true
	gen := m.gen
	attemptID := m.attemptID
	m.unlock()

	dev, err := m.camera.Acquire(ctx)

	m.mu.Lock()
	defer m.unlock()
	m.acquiring = false
	if gen != m.gen {
		if dev != nil {
			m.closeDevice(dev)
		}
		return apperrors.Canceled("capture canceled during camera acquisition")
	}
	if err != nil {
		m.logger.WarnContext(ctx, "camera acquisition failed", "attempt_id", attemptID, "error", err)
		failure := apperrors.Wrap(err, apperrors.ErrCodeTransportUnavailable, "camera unavailable")
		m.failLocked(failure)
		return failure
	}

	m.device = dev
	m.transitionLocked(capture.StateActive)
	m.logger.DebugContext(ctx, "camera acquired", "attempt_id", attemptID, "retry", m.retryCount)
	return nil
}

// CaptureFrame renders the current video frame off-screen. It is valid in ACTIVE and DETECTING.
// A frame that cannot be read counts as an acquisition failure.
func (m *CaptureMachine) CaptureFrame(ctx context.Context) (capture.Frame, error) {
	m.mu.Lock()
	if m.closed {
		m.unlock()
		return capture.Frame{}, apperrors.Canceled("capture machine is closed")
	}
	if !m.state.HoldsDevice() || m.device == nil {
		state := m.state
		m.unlock()
		return capture.Frame{}, apperrors.InvalidStatef("cannot capture a frame while %s", state)
	}
	dev := m.device
	gen := m.gen
	m.unlock()

	img, err := dev.Snapshot(ctx)
	var frame capture.Frame
	if err == nil && img == nil {
		err = errors.New("camera returned an empty frame")
	}
	if err == nil {
		frame = m.render(img)
	}

	m.mu.Lock()
	defer m.unlock()
	if gen != m.gen {
		return capture.Frame{}, apperrors.Canceled("capture canceled while reading a frame")
	}
	if err != nil {
		m.logger.WarnContext(ctx, "frame unavailable", "attempt_id", m.attemptID, "error", err)
		failure := apperrors.Wrap(err, apperrors.ErrCodeTransportUnavailable, "camera frame unavailable")
		if m.state.HoldsDevice() {
			m.failLocked(failure)
		}
		return capture.Frame{}, failure
	}
	m.lastFrame = &frame
	return frame, nil
}

func (m *CaptureMachine) render(src image.Image) capture.Frame {
	var img *image.NRGBA
	if m.width > 0 && m.height > 0 {
		img = imaging.Fit(src, m.width, m.height, imaging.Lanczos)
	} else {
		img = imaging.Clone(src)
	}
	sum := blake3.Sum256(img.Pix)
	return capture.Frame{
		Image:      img,
		Digest:     hex.EncodeToString(sum[:]),
		CapturedAt: m.clock.Now(),
	}
}

// Detect identifies the person in frame and, on a confident match against the directory,
// establishes a BIOMETRIC session. A weak, failed or unknown match returns a NoMatch error and
// enters ERROR_RETRY. A result that arrives after Cancel or Close is discarded.
func (m *CaptureMachine) Detect(ctx context.Context, frame capture.Frame) (domainauth.Identity, error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.unlock()
		return domainauth.Identity{}, apperrors.Canceled("capture machine is closed")
	case m.state == capture.StateDetecting:
		m.unlock()
		return domainauth.Identity{}, apperrors.Busy("a detection is already in flight")
	case m.state != capture.StateActive:
		state := m.state
		m.unlock()
		return domainauth.Identity{}, apperrors.InvalidStatef("cannot detect while %s", state)
	}
	m.transitionLocked(capture.StateDetecting)
	gen := m.gen
	attemptID := m.attemptID
	m.unlock()

	identity, err := m.identify(ctx, frame)

	m.mu.Lock()
	if gen != m.gen {
		m.unlock()
		m.logger.DebugContext(ctx, "discarding late detection result", "attempt_id", attemptID)
		return domainauth.Identity{}, apperrors.Canceled("capture canceled during detection")
	}
	if err != nil {
		if ctx.Err() != nil {
			m.cancelLocked()
			m.unlock()
			return domainauth.Identity{}, apperrors.Wrap(ctx.Err(), apperrors.ErrCodeCanceled, "detection abandoned")
		}
		m.logger.InfoContext(ctx, "no match", "attempt_id", attemptID, "error", err)
		m.failLocked(err)
		m.unlock()
		return domainauth.Identity{}, err
	}

	m.bumpLocked()
	m.releaseLocked()
	m.transitionLocked(capture.StateSuccess)
	m.queued = append(m.queued, capture.Event{
		Kind: capture.EventMatched, From: capture.StateDetecting, To: capture.StateSuccess,
		Attempt: m.retryCount, Key: identity.Key,
	})
	m.metrics.CaptureOutcome(metrics.OutcomeSuccess, m.clock.Now().Sub(m.startedAt))
	successGen := m.gen
	m.unlock()

	if _, err := m.sessions.EstablishBiometric(ctx, identity); err != nil {
		m.mu.Lock()
		if m.gen == successGen && m.state == capture.StateSuccess {
			m.transitionLocked(capture.StateIdle)
		}
		m.unlock()
		return domainauth.Identity{}, sessionError{err: err}
	}
	m.logger.InfoContext(ctx, "biometric match", "attempt_id", attemptID, "key", identity.Key)
	return identity, nil
}

// sessionError marks a failure to establish the session after a confirmed match.
type sessionError struct{ err error }

func (e sessionError) Error() string { return "establish biometric session: " + e.err.Error() }
func (e sessionError) Unwrap() error { return e.err }

func (m *CaptureMachine) identify(ctx context.Context, frame capture.Frame) (domainauth.Identity, error) {
	if frame.Image == nil {
		return domainauth.Identity{}, apperrors.NoMatch("no frame to detect")
	}
	candidate, err := m.detector.Detect(ctx, frame)
	if err != nil {
		if apperrors.IsNoMatch(err) {
			return domainauth.Identity{}, err
		}
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeNoMatch, "detection failed")
	}
	if candidate.Key == "" {
		return domainauth.Identity{}, apperrors.NoMatch("detector returned no candidate")
	}
	if candidate.Confidence < m.minConf {
		return domainauth.Identity{}, apperrors.NoMatchf("confidence %.2f below %.2f", candidate.Confidence, m.minConf)
	}
	identity, err := m.resolver.Resolve(ctx, candidate.Key)
	if err != nil {
		return domainauth.Identity{}, apperrors.Wrapf(err, apperrors.ErrCodeNoMatch, "candidate %q is not in the directory", candidate.Key)
	}
	return identity, nil
}

// Attempt captures one frame and runs detection on it.
func (m *CaptureMachine) Attempt(ctx context.Context) (domainauth.Identity, error) {
	frame, err := m.CaptureFrame(ctx)
	if err != nil {
		return domainauth.Identity{}, err
	}
	return m.Detect(ctx, frame)
}

// Cancel releases the camera, stops any pending retry and returns to IDLE. It is valid in any state.
func (m *CaptureMachine) Cancel() {
	m.mu.Lock()
	defer m.unlock()
	m.cancelLocked()
}

// Close tears the machine down. Every later call fails with a Canceled error.
func (m *CaptureMachine) Close() {
	m.mu.Lock()
	m.cancelLocked()
	m.closed = true
	m.unlock()
	m.stop()
}

// State returns the current state.
func (m *CaptureMachine) State() capture.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RetryCount returns how many retries the current capture session has scheduled.
func (m *CaptureMachine) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

// Exhausted reports whether the latest capture session ended by running out of retries.
func (m *CaptureMachine) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

// LastFrame returns the most recent frame of the current capture session.
func (m *CaptureMachine) LastFrame() (capture.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastFrame == nil {
		return capture.Frame{}, false
	}
	return *m.lastFrame, true
}

// Subscribe registers fn for machine events and returns a function that removes it.
func (m *CaptureMachine) Subscribe(fn CaptureListener) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.listeners[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *CaptureMachine) cancelLocked() {
	m.bumpLocked()
	m.stopRetryLocked()
	m.releaseLocked()
	if m.state == capture.StateIdle {
		return
	}
	if m.state != capture.StateSuccess {
		m.metrics.CaptureOutcome(metrics.OutcomeCanceled, m.clock.Now().Sub(m.startedAt))
	}
	m.transitionLocked(capture.StateIdle)
	m.logger.Debug("capture canceled", "attempt_id", m.attemptID)
}

// failLocked releases the device and either schedules the next retry or, once the policy is
// exhausted, gives up and returns to IDLE.
func (m *CaptureMachine) failLocked(cause error) {
	m.bumpLocked()
	m.releaseLocked()
	m.stopRetryLocked()

	now := m.clock.Now()
	if m.failingSince.IsZero() {
		m.failingSince = now
	}
	attempt := m.retryCount + 1
	if m.policy.Exhausted(attempt, now.Sub(m.failingSince)) {
		m.exhausted = true
		m.transitionLocked(capture.StateIdle)
		m.queued = append(m.queued, capture.Event{
			Kind: capture.EventExhausted, To: capture.StateIdle, Attempt: m.retryCount, Err: cause,
		})
		m.metrics.CaptureOutcome(metrics.OutcomeExhausted, now.Sub(m.startedAt))
		m.logger.Warn("capture retries exhausted", "attempt_id", m.attemptID, "retries", m.retryCount)
		return
	}

	m.retryCount = attempt
	m.transitionLocked(capture.StateErrorRetry)
	m.retrySeq++
	seq := m.retrySeq
	delay := m.policy.Delay(attempt)
	m.retryTimer = m.clock.AfterFunc(delay, func() { m.retry(seq) })
	m.queued = append(m.queued, capture.Event{
		Kind: capture.EventRetryScheduled, To: capture.StateErrorRetry, Attempt: attempt, Err: cause,
	})
	m.metrics.CaptureRetry(cause)
	m.logger.Info("capture retry scheduled",
		"attempt_id", m.attemptID, "retry", attempt, "delay", delay, "error", cause)
}

func (m *CaptureMachine) retry(seq uint64) {
	m.mu.Lock()
	if m.closed || m.acquiring || seq != m.retrySeq || m.state != capture.StateErrorRetry {
		m.unlock()
		return
	}
	m.retryTimer = nil
	// Failures are already recorded by acquireLocked.
	_ = m.acquireLocked(m.life)
}

func (m *CaptureMachine) releaseLocked() {
	if m.device == nil {
		return
	}
	m.closeDevice(m.device)
	m.device = nil
}

func (m *CaptureMachine) closeDevice(dev ports.Device) {
	if err := dev.Close(); err != nil {
		m.logger.Warn("close camera device", "attempt_id", m.attemptID, "error", err)
	}
}

// stopRetryLocked cancels the pending retry; a callback already past its timer sees a stale sequence.
func (m *CaptureMachine) stopRetryLocked() {
	m.retrySeq++
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// bumpLocked invalidates every in-flight acquisition, frame read, detection and timer.
func (m *CaptureMachine) bumpLocked() { m.gen++ }

func (m *CaptureMachine) transitionLocked(to capture.State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.queued = append(m.queued, capture.Event{
		Kind: capture.EventTransition, From: from, To: to, Attempt: m.retryCount,
	})
}

// unlock releases the lock and then delivers queued events in order.
func (m *CaptureMachine) unlock() {
	events := m.queued
	m.queued = nil
	var listeners []CaptureListener
	if len(events) > 0 {
		listeners = make([]CaptureListener, 0, len(m.listeners))
		for _, fn := range m.listeners {
			listeners = append(listeners, fn)
		}
	}
	m.mu.Unlock()

	for _, e := range events {
		for _, fn := range listeners {
			fn(e)
		}
	}
}
