package service

import (
	"context"
	"log/slog"
	"strings"

	domainauth "github.com/target/opsconsole/internal/domain/auth"
	"github.com/target/opsconsole/internal/domain/directory"
	apperrors "github.com/target/opsconsole/internal/errors"
)

// DirectorySource is a remote identity set that can be re-fetched on demand.
type DirectorySource interface {
	// Snapshot returns the last fetched set without a network call.
	Snapshot() []domainauth.Identity
	// Refresh re-fetches the whole set.
	Refresh(ctx context.Context) error
}

// Resolver looks identities up in the fallback set merged over a remote source.
// Fallback entries win on key conflicts.
type Resolver struct {
	fallback []domainauth.Identity
	source   DirectorySource
	logger   *slog.Logger
}

// NewResolver builds a Resolver. A nil source resolves against the fallback set only.
func NewResolver(fallback []domainauth.Identity, source DirectorySource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		fallback: directory.Dedupe(fallback),
		source:   source,
		logger:   logger.With("component", "resolver"),
	}
}

// Directory returns the current merged directory.
func (r *Resolver) Directory() []domainauth.Identity {
	if r.source == nil {
		return cloneIdentities(r.fallback)
	}
	return directory.Merge(r.fallback, r.source.Snapshot())
}

// Resolve finds key in the loaded directory, refreshing the source once when it is missing.
func (r *Resolver) Resolve(ctx context.Context, key string) (domainauth.Identity, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domainauth.Identity{}, apperrors.ValidationField("key", "key is required")
	}
	if id, ok := directory.Find(r.Directory(), key); ok {
		return id, nil
	}
	if r.source == nil {
		return domainauth.Identity{}, apperrors.NotFoundf("no identity with key %q", key)
	}

	refreshErr := r.source.Refresh(ctx)
	if refreshErr != nil {
		r.logger.WarnContext(ctx, "directory refresh failed during resolve", "key", key, "error", refreshErr)
	}
	if id, ok := directory.Find(r.Directory(), key); ok {
		return id, nil
	}
	if refreshErr != nil {
		return domainauth.Identity{}, apperrors.Wrapf(refreshErr, apperrors.ErrCodeNotFound, "no identity with key %q", key)
	}
	return domainauth.Identity{}, apperrors.NotFoundf("no identity with key %q", key)
}
