package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/target/opsconsole/internal/clock"
	domainauth "github.com/target/opsconsole/internal/domain/auth"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/observability/metrics"
	"github.com/target/opsconsole/internal/ports"
)

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Gateway ports.AuthGateway
	Store   ports.DeviceStore
	Clock   clock.Clock
	Metrics *metrics.Console
	Logger  *slog.Logger
	// NewID generates session IDs; uuid.NewString when nil.
	NewID func() string
}

// SessionListener observes the active session. ok is false once no session is active.
type SessionListener func(s domainauth.Session, ok bool)

// SessionManager owns the single authenticated session and its persisted record.
// It is the only reader and writer of domainauth.SessionStorageKey.
type SessionManager struct {
	gateway ports.AuthGateway
	store   ports.DeviceStore
	clock   clock.Clock
	metrics *metrics.Console
	logger  *slog.Logger
	newID   func() string

	// writeMu orders store writes with the in-memory change that follows them.
	writeMu sync.Mutex

	mu      sync.Mutex
	current domainauth.Session
	active  bool
	pending bool
	// epoch advances on every Logout; work started under an older epoch is not committed.
	epoch     uint64
	listeners map[int]SessionListener
	nextSub   int
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &SessionManager{
		gateway:   opts.Gateway,
		store:     opts.Store,
		clock:     clk,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "session_manager"),
		newID:     newID,
		listeners: make(map[int]SessionListener),
	}
}

// Login authenticates with the backend and establishes a CREDENTIALS session.
// A second Login while one is in flight fails with a Busy error. A Logout that lands while the
// backend call is in flight wins: the login then fails with a Canceled error and nothing is persisted.
func (m *SessionManager) Login(ctx context.Context, key, secret string) (domainauth.Session, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domainauth.Session{}, apperrors.ValidationField("key", "key is required")
	}

	m.mu.Lock()
	if m.pending {
		m.mu.Unlock()
		return domainauth.Session{}, apperrors.Busy("a login is already in progress")
	}
	m.pending = true
	epoch := m.epoch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.pending = false
		m.mu.Unlock()
	}()

	session, err := m.login(ctx, key, secret, epoch)
	m.metrics.LoginAttempt("credentials", err)
	return session, err
}

func (m *SessionManager) login(ctx context.Context, key, secret string, epoch uint64) (domainauth.Session, error) {
	identity, err := m.gateway.Login(ctx, key, secret)
	if err != nil {
		m.logger.InfoContext(ctx, "login rejected", "key", key, "error", err)
		if apperrors.GetCode(err) == "" {
			err = apperrors.Wrap(err, apperrors.ErrCodeInvalidCredentials, "login failed")
		}
		return domainauth.Session{}, err
	}

	session, err := m.establish(ctx, identity, domainauth.AuthMethodCredentials, epoch)
	if err != nil {
		return domainauth.Session{}, err
	}
	m.logger.InfoContext(ctx, "session established",
		"key", identity.Key, "method", session.AuthMethod, "session_id", session.ID)
	return session, nil
}

// EstablishBiometric creates a BIOMETRIC session for an identity the capture machine resolved.
func (m *SessionManager) EstablishBiometric(ctx context.Context, identity domainauth.Identity) (domainauth.Session, error) {
	session, err := m.establish(ctx, identity, domainauth.AuthMethodBiometric, m.currentEpoch())
	m.metrics.LoginAttempt("biometric", err)
	if err != nil {
		return domainauth.Session{}, err
	}
	m.logger.InfoContext(ctx, "session established",
		"key", identity.Key, "method", session.AuthMethod, "session_id", session.ID)
	return session, nil
}

// establish persists the session first; memory and listeners only change once the write succeeded.
func (m *SessionManager) establish(
	ctx context.Context,
	identity domainauth.Identity,
	method domainauth.AuthMethod,
	epoch uint64,
) (domainauth.Session, error) {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return domainauth.Session{}, fmt.Errorf("establish session: %w", err)
	}
	session := domainauth.Session{
		ID:            m.newID(),
		Identity:      identity,
		AuthMethod:    method,
		EstablishedAt: m.clock.Now(),
	}
	err := m.commit(epoch, session, true, func() error { return m.persist(ctx, session) })
	if err != nil {
		return domainauth.Session{}, err
	}
	return session, nil
}

func (m *SessionManager) persist(ctx context.Context, session domainauth.Session) error {
	data, err := domainauth.EncodeSession(session)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode session")
	}
	if err := m.store.Put(ctx, domainauth.SessionStorageKey, data); err != nil {
		m.logger.ErrorContext(ctx, "persist session failed", "error", err)
		if apperrors.GetCode(err) == "" {
			err = apperrors.Wrap(err, apperrors.ErrCodeInternal, "persist session")
		}
		return err
	}
	return nil
}

// RestoreSession reconstructs the session persisted by a previous run without any network call.
// A missing or malformed record yields false; a malformed record is deleted. It never fails.
func (m *SessionManager) RestoreSession(ctx context.Context) (domainauth.Session, bool) {
	if s, ok := m.Current(); ok {
		return s, true
	}
	epoch := m.currentEpoch()

	data, err := m.store.Get(ctx, domainauth.SessionStorageKey)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			m.logger.WarnContext(ctx, "read persisted session failed", "error", err)
		}
		return domainauth.Session{}, false
	}

	session, err := domainauth.DecodeSession(data)
	if err != nil {
		m.logger.WarnContext(ctx, "discarding persisted session", "error", err)
		if derr := m.store.Delete(ctx, domainauth.SessionStorageKey); derr != nil {
			m.logger.WarnContext(ctx, "delete malformed session failed", "error", derr)
		}
		return domainauth.Session{}, false
	}

	m.writeMu.Lock()
	m.mu.Lock()
	switch {
	case m.active:
		current := m.current
		m.mu.Unlock()
		m.writeMu.Unlock()
		return current, true
	case m.epoch != epoch:
		m.mu.Unlock()
		m.writeMu.Unlock()
		return domainauth.Session{}, false
	}
	listeners := m.swapLocked(session, true)
	m.mu.Unlock()
	m.writeMu.Unlock()
	notify(listeners, session, true)

	m.logger.InfoContext(ctx, "session restored", "key", session.Identity.Key, "session_id", session.ID)
	return session, true
}

// ChangeSecret replaces key's secret. On success a first-login flag on the active session is cleared
// and re-persisted. A failure leaves the local session untouched.
func (m *SessionManager) ChangeSecret(ctx context.Context, key, newSecret string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.ValidationField("key", "key is required")
	}
	if newSecret == "" {
		return apperrors.ValidationField("secret", "new secret is required")
	}

	if err := m.gateway.ChangeSecret(ctx, key, newSecret); err != nil {
		m.logger.InfoContext(ctx, "change secret rejected", "key", key, "error", err)
		if apperrors.GetCode(err) == "" {
			err = apperrors.Wrap(err, apperrors.ErrCodeRemoteRejected, "change secret failed")
		}
		return err
	}

	m.mu.Lock()
	current, ok, epoch := m.current, m.active, m.epoch
	m.mu.Unlock()
	if !ok || current.Identity.Key != key || !current.Identity.IsFirstLogin {
		return nil
	}
	current.Identity.IsFirstLogin = false
	err := m.commit(epoch, current, true, func() error { return m.persist(ctx, current) })
	if err == errSignedOut {
		// The secret change itself succeeded.
		return nil
	}
	return err
}

// Logout clears the persisted and in-memory session. It always succeeds; store errors are logged.
// A Login or biometric sign-in still in flight is abandoned.
func (m *SessionManager) Logout(ctx context.Context) {
	m.writeMu.Lock()
	m.mu.Lock()
	m.epoch++
	m.mu.Unlock()
	if err := m.store.Delete(ctx, domainauth.SessionStorageKey); err != nil && !apperrors.IsNotFound(err) {
		m.logger.WarnContext(ctx, "delete persisted session failed", "error", err)
	}
	m.mu.Lock()
	listeners := m.swapLocked(domainauth.Session{}, false)
	m.mu.Unlock()
	m.writeMu.Unlock()

	notify(listeners, domainauth.Session{}, false)
	m.logger.InfoContext(ctx, "logged out")
}

// Current returns the active session.
func (m *SessionManager) Current() (domainauth.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.active
}

// IsAuthenticated reports whether a session is active.
func (m *SessionManager) IsAuthenticated() bool {
	_, ok := m.Current()
	return ok
}

// Pending reports whether a Login is in flight.
func (m *SessionManager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Subscribe registers fn for session changes and returns a function that removes it.
func (m *SessionManager) Subscribe(fn SessionListener) (cancel func()) {
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

func (m *SessionManager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// commit runs write and then makes session current, provided no Logout happened since epoch.
// Listeners run after both locks are released.
func (m *SessionManager) commit(epoch uint64, session domainauth.Session, ok bool, write func() error) error {
	m.writeMu.Lock()
	if m.currentEpoch() != epoch {
		m.writeMu.Unlock()
		return errSignedOut
	}
	if err := write(); err != nil {
		m.writeMu.Unlock()
		return err
	}
	m.mu.Lock()
	listeners := m.swapLocked(session, ok)
	m.mu.Unlock()
	m.writeMu.Unlock()

	notify(listeners, session, ok)
	return nil
}

func (m *SessionManager) swapLocked(session domainauth.Session, ok bool) []SessionListener {
	m.current = session
	m.active = ok
	listeners := make([]SessionListener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

func notify(listeners []SessionListener, session domainauth.Session, ok bool) {
	for _, fn := range listeners {
		fn(session, ok)
	}
}

var (
	// errNoSession is returned by operations that require an active session.
	errNoSession = errors.New("no active session")
	errSignedOut = apperrors.Canceled("signed out before the session was established")
)

// RequireSession returns the active session or an InvalidState error.
func (m *SessionManager) RequireSession() (domainauth.Session, error) {
	s, ok := m.Current()
	if !ok {
		return domainauth.Session{}, apperrors.Wrap(errNoSession, apperrors.ErrCodeInvalidState, "not signed in")
	}
	return s, nil
}
