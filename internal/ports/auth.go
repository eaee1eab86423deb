package ports

// Package ports defines interfaces (hexagonal ports) for the console core.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/target/opsconsole/internal/domain/auth"
)

// DeviceStore is durable key/value storage that survives a restart of the console.
// Get returns an error satisfying apperrors.IsNotFound when the key is absent.
type DeviceStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// AuthGateway is the backend's credential endpoint pair.
type AuthGateway interface {
	// Login verifies key/secret and returns the matching identity.
	Login(ctx context.Context, key, secret string) (domainauth.Identity, error)

	// ChangeSecret replaces the secret of key.
	ChangeSecret(ctx context.Context, key, newSecret string) error
}
