package service

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/target/opsconsole/internal/domain/auth"
	"github.com/target/opsconsole/internal/domain/directory"
	"github.com/target/opsconsole/internal/ports"
)

// BiometricDirectory is the set of identities eligible for biometric sign-in.
// A failed refresh clears the set, leaving resolution to the fallback entries.
type BiometricDirectory struct {
	users   ports.UserDirectory
	logger  *slog.Logger
	flights singleflight.Group

	mu     sync.Mutex
	remote []domainauth.Identity
	err    error
}

var _ DirectorySource = (*BiometricDirectory)(nil)

// NewBiometricDirectory wraps a user directory.
func NewBiometricDirectory(users ports.UserDirectory, logger *slog.Logger) *BiometricDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &BiometricDirectory{users: users, logger: logger.With("component", "biometric_directory")}
}

// Snapshot returns the last fetched set.
func (b *BiometricDirectory) Snapshot() []domainauth.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneIdentities(b.remote)
}

// Refresh fetches the user list.
func (b *BiometricDirectory) Refresh(ctx context.Context) error {
	_, err := sharedFlight(ctx, &b.flights, "user list refresh", func(ctx context.Context) (any, error) {
		users, err := b.users.ListUsers(ctx)

		b.mu.Lock()
		defer b.mu.Unlock()
		if err != nil {
			b.remote = nil
			b.err = err
			b.logger.WarnContext(ctx, "user list unavailable; using fallback identities only", "error", err)
			return nil, err
		}
		b.remote = directory.Dedupe(users)
		b.err = nil
		return nil, nil
	})
	return err
}

// Err returns the error of the most recent Refresh.
func (b *BiometricDirectory) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}
