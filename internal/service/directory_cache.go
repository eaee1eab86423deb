package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/target/opsconsole/internal/clock"
	domainauth "github.com/target/opsconsole/internal/domain/auth"
	"github.com/target/opsconsole/internal/domain/directory"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/observability/metrics"
	"github.com/target/opsconsole/internal/ports"
)

// DirectoryCacheOptions groups dependencies for DirectoryCache.
type DirectoryCacheOptions struct {
	Client  ports.DirectoryClient
	Clock   clock.Clock
	Metrics *metrics.Console
	Logger  *slog.Logger
}

// DirectoryEntry is a cached identity plus whether a mutation for its key is outstanding.
type DirectoryEntry struct {
	domainauth.Identity
	Pending bool
}

// DirectoryCache is the console's local mirror of the remote employee directory.
// Writes are applied only after the backend confirms them; reads degrade to the last good copy.
type DirectoryCache struct {
	client  ports.DirectoryClient
	clock   clock.Clock
	metrics *metrics.Console
	logger  *slog.Logger
	loads   singleflight.Group

	mu      sync.Mutex
	entries []domainauth.Identity
	pending map[string]int
	loaded  bool
	loading bool
	err     error
}

var _ DirectorySource = (*DirectoryCache)(nil)

// NewDirectoryCache constructs an empty, unloaded cache.
func NewDirectoryCache(opts DirectoryCacheOptions) *DirectoryCache {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryCache{
		client:  opts.Client,
		clock:   clk,
		metrics: opts.Metrics,
		logger:  logger.With("component", "directory_cache"),
		pending: make(map[string]int),
	}
}

// Load fetches the full directory and replaces the cache. Concurrent calls share one request,
// which outlives a caller that gives up. On failure the previous entries are kept and Err
// reports the failure.
func (c *DirectoryCache) Load(ctx context.Context) ([]domainauth.Identity, error) {
	v, err := sharedFlight(ctx, &c.loads, "directory load", func(fctx context.Context) (any, error) {
		return c.load(fctx)
	})
	if err != nil {
		return nil, err
	}
	return cloneIdentities(v.([]domainauth.Identity)), nil
}

func (c *DirectoryCache) load(ctx context.Context) ([]domainauth.Identity, error) {
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	start := c.clock.Now()
	fetched, err := c.client.ListEmployees(ctx)
	c.metrics.DirectoryLoad(c.clock.Now().Sub(start), err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.err = err
		c.logger.WarnContext(ctx, "directory load failed; keeping cached entries",
			"cached", len(c.entries), "error", err)
		return nil, err
	}

	normalized := make([]domainauth.Identity, 0, len(fetched))
	for _, id := range fetched {
		normalized = append(normalized, id.Normalize())
	}
	c.entries = directory.Dedupe(normalized)
	c.loaded = true
	c.err = nil
	c.logger.DebugContext(ctx, "directory loaded", "entries", len(c.entries))
	return cloneIdentities(c.entries), nil
}

// Refresh reloads the directory; it lets the cache back a Resolver.
func (c *DirectoryCache) Refresh(ctx context.Context) error {
	_, err := c.Load(ctx)
	return err
}

// Create adds identity once the backend has stored it. Nothing is cached before confirmation.
func (c *DirectoryCache) Create(ctx context.Context, identity domainauth.Identity) (domainauth.Identity, error) {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return domainauth.Identity{}, err
	}

	done := c.begin(identity.Key)
	stored, err := c.client.CreateEmployee(ctx, identity)
	done()
	c.metrics.DirectoryMutation(metrics.OpCreate, err)
	if err != nil {
		c.logger.InfoContext(ctx, "create rejected", "key", identity.Key, "error", err)
		return domainauth.Identity{}, rejected(err, "create employee failed")
	}

	stored = stored.Normalize()
	if stored.Key == "" {
		stored = identity
	}
	c.mu.Lock()
	c.upsertLocked(stored)
	c.mu.Unlock()
	return stored, nil
}

// Update sends the full record and replaces the cached entry with the same key once confirmed.
// The cached entry takes the record the backend confirmed, including its new version.
// A key the cache does not hold yet is inserted.
func (c *DirectoryCache) Update(ctx context.Context, identity domainauth.Identity) error {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return err
	}

	done := c.begin(identity.Key)
	stored, err := c.client.UpdateEmployee(ctx, identity)
	done()
	c.metrics.DirectoryMutation(metrics.OpUpdate, err)
	if err != nil {
		c.logger.InfoContext(ctx, "update rejected", "key", identity.Key, "error", err)
		return rejected(err, "update employee failed")
	}

	stored = stored.Normalize()
	if stored.Key != identity.Key {
		stored = identity
	}
	c.mu.Lock()
	c.upsertLocked(stored)
	c.mu.Unlock()
	return nil
}

// Remove deletes key remotely and then locally. On failure the entry stays and the backend's
// message is surfaced.
func (c *DirectoryCache) Remove(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.ValidationField("key", "key is required")
	}

	done := c.begin(key)
	err := c.client.DeleteEmployee(ctx, key)
	done()
	c.metrics.DirectoryMutation(metrics.OpRemove, err)
	if err != nil {
		c.logger.InfoContext(ctx, "remove rejected", "key", key, "error", err)
		return rejected(err, "remove employee failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range c.entries {
		if id.Key == key {
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			break
		}
	}
	return nil
}

// begin marks key pending and returns the function that clears it.
func (c *DirectoryCache) begin(key string) func() {
	c.mu.Lock()
	c.pending[key]++
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.pending[key]--; c.pending[key] <= 0 {
				delete(c.pending, key)
			}
		})
	}
}

func (c *DirectoryCache) upsertLocked(identity domainauth.Identity) {
	for i := range c.entries {
		if c.entries[i].Key == identity.Key {
			c.entries[i] = identity
			return
		}
	}
	c.entries = append(c.entries, identity)
}

// Entries returns the cached directory with pending flags.
func (c *DirectoryCache) Entries() []DirectoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DirectoryEntry, len(c.entries))
	for i, id := range c.entries {
		out[i] = DirectoryEntry{Identity: id, Pending: c.pending[id.Key] > 0}
	}
	return out
}

// IsPending reports whether a mutation for key is outstanding.
func (c *DirectoryCache) IsPending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[key] > 0
}

// Snapshot returns a copy of the cached identities.
func (c *DirectoryCache) Snapshot() []domainauth.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneIdentities(c.entries)
}

// Get returns the cached identity for key.
func (c *DirectoryCache) Get(key string) (domainauth.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return directory.Find(c.entries, key)
}

// Loaded reports whether a Load has ever succeeded.
func (c *DirectoryCache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Loading reports whether a Load is in flight.
func (c *DirectoryCache) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Err returns the error of the most recent Load, nil after a successful one.
func (c *DirectoryCache) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// rejected tags uncoded backend failures as RemoteRejected; coded ones pass through.
func rejected(err error, message string) error {
	if apperrors.GetCode(err) != "" {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrCodeRemoteRejected, message)
}

func cloneIdentities(in []domainauth.Identity) []domainauth.Identity {
	if in == nil {
		return nil
	}
	return append([]domainauth.Identity(nil), in...)
}
