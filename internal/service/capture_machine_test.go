package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/opsconsole/internal/clock"
	domainauth "github.com/target/opsconsole/internal/domain/auth"
	"github.com/target/opsconsole/internal/domain/capture"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/mocks"
	authmocks "github.com/target/opsconsole/internal/mocks/auth"
)

var (
	matchAdmin = authmocks.DetectResult{Candidate: capture.Candidate{Key: "200", Confidence: 0.97}}
	weakMatch  = authmocks.DetectResult{Candidate: capture.Candidate{Key: "200", Confidence: 0.31}}
)

type captureRig struct {
	clock    *clock.FakeClock
	camera   *authmocks.CountingCamera
	detector *authmocks.ScriptedDetector
	store    *authmocks.MemoryDeviceStore
	sessions *SessionManager
	machine  *CaptureMachine

	mu     sync.Mutex
	events []capture.Event
	times  []time.Time
}

func newCaptureRig(t *testing.T, policy capture.RetryPolicy, results ...authmocks.DetectResult) *captureRig {
	t.Helper()
	rig := &captureRig{
		clock:    clock.Fake(epoch),
		camera:   &authmocks.CountingCamera{},
		detector: &authmocks.ScriptedDetector{Results: results},
		store:    authmocks.NewMemoryDeviceStore(),
	}
	rig.sessions = NewSessionManager(SessionManagerOptions{
		Gateway: &authmocks.MockAuthGateway{},
		Store:   rig.store,
		Clock:   rig.clock,
	})
	resolver := NewResolver([]domainauth.Identity{
		{Key: "200", FirstName: "Bo", Role: domainauth.RoleAdmin},
	}, nil, nil)
	rig.machine = NewCaptureMachine(CaptureMachineOptions{
		Camera:        rig.camera,
		Detector:      rig.detector,
		Resolver:      resolver,
		Sessions:      rig.sessions,
		Policy:        policy,
		MinConfidence: 0.8,
		Clock:         rig.clock,
	})
	rig.machine.Subscribe(func(e capture.Event) {
		rig.mu.Lock()
		defer rig.mu.Unlock()
		rig.events = append(rig.events, e)
		rig.times = append(rig.times, rig.clock.Now())
	})
	t.Cleanup(rig.machine.Close)
	return rig
}

func (r *captureRig) eventsOf(kind capture.EventKind) ([]capture.Event, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		out   []capture.Event
		times []time.Time
	)
	for i, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
			times = append(times, r.times[i])
		}
	}
	return out, times
}

func TestCaptureMachine_SuccessReleasesDeviceAndEstablishesSession(t *testing.T) {
	rig := newCaptureRig(t, capture.DefaultRetryPolicy(), matchAdmin)
	ctx := context.Background()

	require.NoError(t, rig.machine.Start(ctx))
	assert.Equal(t, capture.StateActive, rig.machine.State())
	assert.Equal(t, 1, rig.camera.Open())

	id, err := rig.machine.Attempt(ctx)
	require.NoError(t, err)

	assert.Equal(t, "200", id.Key)
	assert.Equal(t, capture.StateSuccess, rig.machine.State())
	assert.Equal(t, 0, rig.camera.Open())
	s, ok := rig.sessions.Current()
	require.True(t, ok)
	assert.Equal(t, domainauth.AuthMethodBiometric, s.AuthMethod)
	assert.Equal(t, "200", s.Identity.Key)

	matched, _ := rig.eventsOf(capture.EventMatched)
	require.Len(t, matched, 1)
	assert.Equal(t, "200", matched[0].Key)
	assert.Equal(t, 0, rig.clock.PendingCount())
}

func TestCaptureMachine_AcquisitionFailureSchedulesOneRetry(t *testing.T) {
	rig := newCaptureRig(t, capture.DefaultRetryPolicy(), matchAdmin)
	rig.camera.FailFirst = 1

	err := rig.machine.Start(context.Background())

	assert.True(t, apperrors.IsTransportUnavailable(err))
	assert.Equal(t, capture.StateErrorRetry, rig.machine.State())
	assert.Equal(t, 0, rig.camera.Open())
	assert.Equal(t, 1, rig.clock.PendingCount())

	rig.clock.Advance(capture.DefaultRetryInterval - time.Millisecond)
	assert.Equal(t, 1, rig.camera.Acquires())

	rig.clock.Advance(time.Millisecond)
	assert.Equal(t, 2, rig.camera.Acquires())
	assert.Equal(t, capture.StateActive, rig.machine.State())
	assert.Equal(t, 1, rig.camera.Open())
	assert.Equal(t, 1, rig.machine.RetryCount())
}

func TestCaptureMachine_ThreeFailuresFromActive(t *testing.T) {
	rig := newCaptureRig(t, capture.DefaultRetryPolicy(), matchAdmin)
	ctx := context.Background()

	require.NoError(t, rig.machine.Start(ctx))
	rig.camera.Devices()[0].SnapshotErr = errors.New("video surface lost")
	rig.camera.FailNext(2)

	_, err := rig.machine.CaptureFrame(ctx)
	require.Error(t, err)

	for i := 0; i < 2; i++ {
		assert.Equal(t, capture.StateErrorRetry, rig.machine.State())
		assert.Equal(t, 0, rig.camera.Open(), "no handle held between retries")
		assert.Equal(t, 1, rig.clock.PendingCount(), "exactly one retry timer")
		rig.clock.Advance(capture.DefaultRetryInterval)
	}
	assert.Equal(t, 0, rig.camera.Open())
	rig.clock.Advance(capture.DefaultRetryInterval)

	retries, at := rig.eventsOf(capture.EventRetryScheduled)
	require.Len(t, retries, 3)
	for i, e := range retries {
		assert.Equal(t, i+1, e.Attempt)
		assert.Error(t, e.Err)
	}
	assert.Equal(t, capture.DefaultRetryInterval, at[1].Sub(at[0]))
	assert.Equal(t, capture.DefaultRetryInterval, at[2].Sub(at[1]))

	assert.Equal(t, capture.StateActive, rig.machine.State())
	assert.Equal(t, 4, rig.camera.Acquires())
	assert.Equal(t, 1, rig.camera.Open())
	assert.Equal(t, 3, rig.machine.RetryCount())
}

func TestCaptureMachine_ExhaustionReturnsToIdle(t *testing.T) {
	rig := newCaptureRig(t, capture.RetryPolicy{Interval: time.Second, MaxAttempts: 2})
	rig.camera.FailFirst = 100

	_ = rig.machine.Start(context.Background())
	rig.clock.Advance(time.Second)
	rig.clock.Advance(time.Second)

	assert.Equal(t, capture.StateIdle, rig.machine.State())
	assert.True(t, rig.machine.Exhausted())
	assert.Equal(t, 2, rig.machine.RetryCount())
	assert.Equal(t, 0, rig.clock.PendingCount())
	assert.Equal(t, 3, rig.camera.Acquires())
	exhausted, _ := rig.eventsOf(capture.EventExhausted)
	require.Len(t, exhausted, 1)

	rig.clock.Advance(time.Minute)
	assert.Equal(t, 3, rig.camera.Acquires())
}

func TestCaptureMachine_MaxElapsedBoundsRetries(t *testing.T) {
	rig := newCaptureRig(t, capture.RetryPolicy{Interval: 3 * time.Second, MaxElapsed: 7 * time.Second})
	rig.camera.FailFirst = 100

	_ = rig.machine.Start(context.Background())
	rig.clock.Advance(3 * time.Second)
	assert.Equal(t, capture.StateErrorRetry, rig.machine.State())
	rig.clock.Advance(3 * time.Second)

	assert.Equal(t, capture.StateIdle, rig.machine.State())
	assert.True(t, rig.machine.Exhausted())
}

func TestCaptureMachine_CancelDuringDetectionDiscardsLateResult(t *testing.T) {
	rig := newCaptureRig(t, capture.DefaultRetryPolicy(), matchAdmin)
	rig.detector.Gate = make(chan struct{})
	ctx := context.Background()

	require.NoError(t, rig.machine.Start(ctx))
	frame, err := rig.machine.CaptureFrame(ctx)
	require.NoError(t, err)

	type result struct {
		id  domainauth.Identity
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := rig.machine.Detect(ctx, frame)
		done <- result{id, err}
	}()
	require.Eventually(t, func() bool { return rig.machine.State() == capture.StateDetecting }, timeoutShort, tick)

	rig.machine.Cancel()
	assert.Equal(t, capture.StateIdle, rig.machine.State())
	assert.Equal(t, 0, rig.camera.Open())

	close(rig.detector.Gate)
	res := <-done

	assert.True(t, apperrors.IsCanceled(res.err))
	assert.Empty(t, res.id.Key)
	assert.Equal(t, 1, rig.detector.Calls())
	assert.False(t, rig.sessions.IsAuthenticated())
	assert.Equal(t, 0, rig.store.Len())
	assert.Equal(t, capture.StateIdle, rig.machine.State())
	assert.Equal(t, 0, rig.clock.PendingCount())
}

func TestCaptureMachine_WeakOrUnknownMatchRetries(t *testing.T) {
	unknown := authmocks.DetectResult{Candidate: capture.Candidate{Key: "777", Confidence: 0.99}}
	detectorDown := authmocks.DetectResult{Err: apperrors.TransportUnavailable(errors.New("refused"), "detector down")}

	for name, res := range map[string]authmocks.DetectResult{
		"low confidence": weakMatch,
		"unknown key":    unknown,
		"detector error": detectorDown,
	} {
		t.Run(name, func(t *testing.T) {
			rig := newCaptureRig(t, capture.DefaultRetryPolicy(), res)

			require.NoError(t, rig.machine.Start(context.Background()))
			_, err := rig.machine.Attempt(context.Background())

			assert.True(t, apperrors.IsNoMatch(err))
			assert.Equal(t, capture.StateErrorRetry, rig.machine.State())
			assert.Equal(t, 0, rig.camera.Open())
			assert.Equal(t, 1, rig.clock.PendingCount())
			assert.False(t, rig.sessions.IsAuthenticated())
		})
	}
}

func TestCaptureMachine_CancelInErrorRetryStopsTimer(t *testing.T) {
	rig := newCaptureRig(t, capture.DefaultRetryPolicy())
	rig.camera.FailFirst = 1

	_ = rig.machine.Start(context.Background())
	require.Equal(t, 1, rig.clock.PendingCount())

	rig.machine.Cancel()

	assert.Equal(t, capture.StateIdle, rig.machine.State())
	assert.Equal(t, 0, rig.clock.PendingCount())
	rig.clock.Advance(time.Minute)
	assert.Equal(t, 1, rig.camera.Acquires())
}

func TestCaptureMachine_CancelRacingRetryTimerLeavesIdle(t *testing.T) {
	rig := newCaptureRig(t, capture.DefaultRetryPolicy())

	for i := 0; i < 200; i++ {
		rig.camera.FailNext(1)
		_ = rig.machine.Start(context.Background())
		require.Equal(t, capture.StateErrorRetry, rig.machine.State())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			rig.clock.Advance(capture.DefaultRetryInterval)
		}()
		go func() {
			defer wg.Done()
			rig.machine.Cancel()
		}()
		wg.Wait()

		require.Equal(t, capture.StateIdle, rig.machine.State(), "iteration %d", i)
		require.Equal(t, 0, rig.camera.Open(), "iteration %d", i)
		require.Equal(t, 0, rig.clock.PendingCount(), "iteration %d", i)
	}
}

func TestCaptureMachine_ManualStartInErrorRetryReplacesTimer(t *testing.T) {
	rig := newCaptureRig(t, capture.DefaultRetryPolicy())
	rig.camera.FailFirst = 1

	_ = rig.machine.Start(context.Background())
	require.NoError(t, rig.machine.Start(context.Background()))

	assert.Equal(t, capture.StateActive, rig.machine.State())
	assert.Equal(t, 0, rig.clock.PendingCount())
	rig.clock.Advance(time.Minute)
	assert.Equal(t, 2, rig.camera.Acquires())
	assert.Equal(t, 1, rig.camera.Open())
}

func TestCaptureMachine_InvalidStates(t *testing.T) {
	rig := newCaptureRig(t, capture.DefaultRetryPolicy(), matchAdmin)
	ctx := context.Background()

	_, err := rig.machine.CaptureFrame(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidState))
	_, err = rig.machine.Detect(ctx, capture.Frame{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidState))

	require.NoError(t, rig.machine.Start(ctx))
	require.NoError(t, rig.machine.Start(ctx), "start while active is a no-op")
	assert.Equal(t, 1, rig.camera.Acquires())
}

func TestCaptureMachine_CloseRejectsFurtherUse(t *testing.T) {
	rig := newCaptureRig(t, capture.DefaultRetryPolicy())
	require.NoError(t, rig.machine.Start(context.Background()))

	rig.machine.Close()

	assert.Equal(t, 0, rig.camera.Open())
	assert.True(t, apperrors.IsCanceled(rig.machine.Start(context.Background())))
	_, err := rig.machine.Attempt(context.Background())
	assert.True(t, apperrors.IsCanceled(err))
}

func TestCaptureMachine_FrameRendering(t *testing.T) {
	rig := newCaptureRig(t, capture.DefaultRetryPolicy())
	rig.machine.width, rig.machine.height = 32, 32
	ctx := context.Background()

	require.NoError(t, rig.machine.Start(ctx))
	frame, err := rig.machine.CaptureFrame(ctx)
	require.NoError(t, err)

	require.NotNil(t, frame.Image)
	assert.Equal(t, 32, frame.Image.Bounds().Dx())
	assert.Equal(t, 24, frame.Image.Bounds().Dy())
	assert.Len(t, frame.Digest, 64)
	assert.Equal(t, epoch, frame.CapturedAt)

	again, err := rig.machine.CaptureFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, frame.Digest, again.Digest, "same picture, same digest")

	last, ok := rig.machine.LastFrame()
	require.True(t, ok)
	assert.Equal(t, again.Digest, last.Digest)
}

func TestCaptureMachine_DetectorSeesRenderedFrame(t *testing.T) {
	ctrl := gomock.NewController(t)
	det := mocks.NewMockDetector(ctrl)
	clk := clock.Fake(epoch)
	cam := &authmocks.CountingCamera{}
	sessions := NewSessionManager(SessionManagerOptions{
		Gateway: &authmocks.MockAuthGateway{},
		Store:   authmocks.NewMemoryDeviceStore(),
		Clock:   clk,
	})
	m := NewCaptureMachine(CaptureMachineOptions{
		Camera:   cam,
		Detector: det,
		Resolver: NewResolver([]domainauth.Identity{{Key: "9", Role: domainauth.RoleOperator}}, nil, nil),
		Sessions: sessions,
		Clock:    clk,
	})
	defer m.Close()

	det.EXPECT().Detect(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, f capture.Frame) (capture.Candidate, error) {
			assert.NotEmpty(t, f.Digest)
			assert.Equal(t, 64, f.Image.Bounds().Dx())
			return capture.Candidate{Key: "9", Confidence: 0.5}, nil
		})

	require.NoError(t, m.Start(context.Background()))
	id, err := m.Attempt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9", id.Key)
}

func TestCaptureMachine_SessionFailureReturnsToIdle(t *testing.T) {
	rig := newCaptureRig(t, capture.DefaultRetryPolicy(), matchAdmin)
	rig.store.PutErr = errors.New("disk full")

	require.NoError(t, rig.machine.Start(context.Background()))
	_, err := rig.machine.Attempt(context.Background())

	require.Error(t, err)
	assert.Equal(t, capture.StateIdle, rig.machine.State())
	assert.Equal(t, 0, rig.camera.Open())
}
