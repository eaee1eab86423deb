package ports

import (
	"context"

	domainauth "github.com/target/opsconsole/internal/domain/auth"
)

// DirectoryClient is the remote employee directory.
type DirectoryClient interface {
	ListEmployees(ctx context.Context) ([]domainauth.Identity, error)
	CreateEmployee(ctx context.Context, id domainauth.Identity) (domainauth.Identity, error)
	UpdateEmployee(ctx context.Context, id domainauth.Identity) (domainauth.Identity, error)
	DeleteEmployee(ctx context.Context, key string) error
}

// UserDirectory lists the identities eligible for biometric sign-in.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]domainauth.Identity, error)
}
