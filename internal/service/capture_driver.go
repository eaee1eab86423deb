package service

import (
	"context"
	"errors"

	domainauth "github.com/target/opsconsole/internal/domain/auth"
	"github.com/target/opsconsole/internal/domain/capture"
	apperrors "github.com/target/opsconsole/internal/errors"
)

// ErrFallbackToManual reports that biometric capture gave up and credentials are needed.
var ErrFallbackToManual = errors.New("biometric capture exhausted its retries; use credentials")

// AuthenticateBiometric runs m until it matches someone, exhausts its retry policy
// (ErrFallbackToManual) or ctx ends, in which case the machine is canceled.
// A match whose session cannot be established returns that error unchanged.
func AuthenticateBiometric(ctx context.Context, m *CaptureMachine) (domainauth.Identity, error) {
	wake := make(chan struct{}, 1)
	unsubscribe := m.Subscribe(func(capture.Event) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	lastErr := m.Start(ctx)
	for {
		if err := ctx.Err(); err != nil {
			m.Cancel()
			return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeCanceled, "biometric sign-in abandoned")
		}

		switch m.State() {
		case capture.StateActive:
			identity, err := m.Attempt(ctx)
			if err == nil {
				return identity, nil
			}
			var se sessionError
			if errors.As(err, &se) {
				return domainauth.Identity{}, se.err
			}
			lastErr = err
		case capture.StateErrorRetry, capture.StateDetecting:
			select {
			case <-wake:
			case <-ctx.Done():
			}
		default:
			if m.Exhausted() {
				return domainauth.Identity{}, errors.Join(ErrFallbackToManual, lastErr)
			}
			if lastErr == nil || !apperrors.IsCanceled(lastErr) {
				lastErr = apperrors.Wrap(orCanceled(lastErr), apperrors.ErrCodeCanceled, "capture stopped")
			}
			return domainauth.Identity{}, lastErr
		}
	}
}

func orCanceled(err error) error {
	if err != nil {
		return err
	}
	return errors.New("capture canceled")
}
