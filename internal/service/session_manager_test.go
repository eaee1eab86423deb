package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/opsconsole/internal/adapters/backend"
	"github.com/target/opsconsole/internal/clock"
	domainauth "github.com/target/opsconsole/internal/domain/auth"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/mocks"
	authmocks "github.com/target/opsconsole/internal/mocks/auth"
)

var epoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func seqIDs() func() string {
	var n atomic.Int64
	return func() string {
		return "session-" + string(rune('0'+n.Add(1)))
	}
}

func newTestSessionManager(gw *authmocks.MockAuthGateway, store *authmocks.MemoryDeviceStore) *SessionManager {
	return NewSessionManager(SessionManagerOptions{
		Gateway: gw,
		Store:   store,
		Clock:   clock.Fake(epoch),
		NewID:   seqIDs(),
	})
}

func TestSessionManager_LoginRejectedByBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := backend.NewClient(backend.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	store := authmocks.NewMemoryDeviceStore()
	mgr := NewSessionManager(SessionManagerOptions{Gateway: client, Store: store})

	_, err = mgr.Login(context.Background(), "103", "wrong")

	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidCredentials(err))
	assert.False(t, mgr.IsAuthenticated())
	assert.Equal(t, 0, store.Len())
}

func TestSessionManager_LoginPersistsBeforeNotifying(t *testing.T) {
	store := authmocks.NewMemoryDeviceStore()
	gw := &authmocks.MockAuthGateway{
		LoginFunc: func(_ context.Context, key, secret string) (domainauth.Identity, error) {
			assert.Equal(t, "s3cret", secret)
			return domainauth.Identity{Key: key, FirstName: "Ana", Role: "manager"}, nil
		},
	}
	mgr := newTestSessionManager(gw, store)

	var seen []bool
	cancel := mgr.Subscribe(func(_ domainauth.Session, ok bool) {
		assert.NotNil(t, store.Raw(domainauth.SessionStorageKey), "store written before listeners run")
		seen = append(seen, ok)
	})
	defer cancel()

	s, err := mgr.Login(context.Background(), " 103 ", "s3cret")
	require.NoError(t, err)

	assert.Equal(t, "session-1", s.ID)
	assert.Equal(t, domainauth.AuthMethodCredentials, s.AuthMethod)
	assert.Equal(t, domainauth.RoleManager, s.Role())
	assert.Equal(t, epoch, s.EstablishedAt)
	assert.Equal(t, []bool{true}, seen)

	decoded, err := domainauth.DecodeSession(store.Raw(domainauth.SessionStorageKey))
	require.NoError(t, err)
	assert.Equal(t, s.Identity, decoded.Identity)
}

func TestSessionManager_LoginFailsWhenStoreFails(t *testing.T) {
	store := authmocks.NewMemoryDeviceStore()
	store.PutErr = errors.New("disk full")
	mgr := newTestSessionManager(&authmocks.MockAuthGateway{}, store)

	_, err := mgr.Login(context.Background(), "103", "pw")

	require.Error(t, err)
	assert.False(t, mgr.IsAuthenticated())
}

func TestSessionManager_LoginBusyWhilePending(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	gw := &authmocks.MockAuthGateway{
		LoginFunc: func(_ context.Context, key, _ string) (domainauth.Identity, error) {
			close(entered)
			<-release
			return domainauth.Identity{Key: key, Role: domainauth.RoleOperator}, nil
		},
	}
	mgr := newTestSessionManager(gw, authmocks.NewMemoryDeviceStore())

	done := make(chan error, 1)
	go func() {
		_, err := mgr.Login(context.Background(), "1", "pw")
		done <- err
	}()
	<-entered

	assert.True(t, mgr.Pending())
	_, err := mgr.Login(context.Background(), "2", "pw")
	assert.True(t, apperrors.IsBusy(err))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, mgr.Pending())
}

func TestSessionManager_LogoutAbandonsInFlightLogin(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	entered := make(chan struct{})
	gw := &authmocks.MockAuthGateway{
		LoginFunc: func(_ context.Context, key, _ string) (domainauth.Identity, error) {
			if calls.Add(1) == 1 {
				close(entered)
				<-release
			}
			return domainauth.Identity{Key: key, Role: domainauth.RoleOperator}, nil
		},
	}
	store := authmocks.NewMemoryDeviceStore()
	mgr := newTestSessionManager(gw, store)

	done := make(chan error, 1)
	go func() {
		_, err := mgr.Login(context.Background(), "1", "pw")
		done <- err
	}()
	<-entered

	mgr.Logout(context.Background())
	close(release)

	err := <-done
	assert.True(t, apperrors.IsCanceled(err))
	assert.False(t, mgr.IsAuthenticated())
	assert.Nil(t, store.Raw(domainauth.SessionStorageKey))
	_, ok := mgr.RestoreSession(context.Background())
	assert.False(t, ok)

	_, err = mgr.Login(context.Background(), "1", "pw")
	require.NoError(t, err, "a login started after the logout is committed")
	assert.True(t, mgr.IsAuthenticated())
}

func TestSessionManager_LoginRequiresKey(t *testing.T) {
	mgr := newTestSessionManager(&authmocks.MockAuthGateway{}, authmocks.NewMemoryDeviceStore())
	_, err := mgr.Login(context.Background(), "  ", "pw")
	assert.True(t, apperrors.IsValidation(err))
}

func TestSessionManager_RestoreSessionIsIdempotentAndOffline(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockAuthGateway(ctrl) // no expectations: any call fails the test

	store := authmocks.NewMemoryDeviceStore()
	data, err := domainauth.EncodeSession(domainauth.Session{
		ID:            "abc",
		Identity:      domainauth.Identity{Key: "200", Role: domainauth.RoleAdmin},
		AuthMethod:    domainauth.AuthMethodBiometric,
		EstablishedAt: epoch,
	})
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), domainauth.SessionStorageKey, data))

	mgr := NewSessionManager(SessionManagerOptions{Gateway: gw, Store: store})

	first, ok := mgr.RestoreSession(context.Background())
	require.True(t, ok)
	second, ok := mgr.RestoreSession(context.Background())
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, "abc", first.ID)
	assert.Equal(t, domainauth.AuthMethodBiometric, first.AuthMethod)
	assert.True(t, first.EstablishedAt.Equal(epoch))
}

func TestSessionManager_RestoreSessionDiscardsMalformed(t *testing.T) {
	tests := map[string][]byte{
		"garbage":       []byte("{not json"),
		"role mismatch": []byte(`{"version":1,"id":"x","identity":{"key":"1","role":"ADMIN"},"role":"OPERATOR","auth_method":"CREDENTIALS"}`),
		"old version":   []byte(`{"version":0,"id":"x","identity":{"key":"1","role":"ADMIN"},"role":"ADMIN","auth_method":"CREDENTIALS"}`),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			store := authmocks.NewMemoryDeviceStore()
			require.NoError(t, store.Put(context.Background(), domainauth.SessionStorageKey, raw))
			mgr := newTestSessionManager(&authmocks.MockAuthGateway{}, store)

			_, ok := mgr.RestoreSession(context.Background())
			assert.False(t, ok)
			assert.Nil(t, store.Raw(domainauth.SessionStorageKey))

			_, ok = mgr.RestoreSession(context.Background())
			assert.False(t, ok)
		})
	}
}

func TestSessionManager_RestoreSessionEmptyStore(t *testing.T) {
	mgr := newTestSessionManager(&authmocks.MockAuthGateway{}, authmocks.NewMemoryDeviceStore())
	_, ok := mgr.RestoreSession(context.Background())
	assert.False(t, ok)
}

func TestSessionManager_ChangeSecret(t *testing.T) {
	store := authmocks.NewMemoryDeviceStore()
	var changed string
	gw := &authmocks.MockAuthGateway{
		LoginFunc: func(_ context.Context, key, _ string) (domainauth.Identity, error) {
			return domainauth.Identity{Key: key, Role: domainauth.RoleSupervisor, IsFirstLogin: true}, nil
		},
		ChangeSecretFunc: func(_ context.Context, key, newSecret string) error {
			changed = key + ":" + newSecret
			return nil
		},
	}
	mgr := newTestSessionManager(gw, store)
	_, err := mgr.Login(context.Background(), "7", "temp")
	require.NoError(t, err)

	require.NoError(t, mgr.ChangeSecret(context.Background(), "7", "fresh"))

	assert.Equal(t, "7:fresh", changed)
	current, ok := mgr.Current()
	require.True(t, ok)
	assert.False(t, current.Identity.IsFirstLogin)
	persisted, err := domainauth.DecodeSession(store.Raw(domainauth.SessionStorageKey))
	require.NoError(t, err)
	assert.False(t, persisted.Identity.IsFirstLogin)
}

func TestSessionManager_ChangeSecretRejectedLeavesSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockAuthGateway(ctrl)
	gw.EXPECT().Login(gomock.Any(), "7", "temp").
		Return(domainauth.Identity{Key: "7", Role: domainauth.RoleOperator, IsFirstLogin: true}, nil)
	gw.EXPECT().ChangeSecret(gomock.Any(), "7", "weak").
		Return(apperrors.RemoteRejected("secret too short"))

	mgr := NewSessionManager(SessionManagerOptions{Gateway: gw, Store: authmocks.NewMemoryDeviceStore()})
	before, err := mgr.Login(context.Background(), "7", "temp")
	require.NoError(t, err)

	err = mgr.ChangeSecret(context.Background(), "7", "weak")

	assert.True(t, apperrors.IsRemoteRejected(err))
	after, ok := mgr.Current()
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestSessionManager_ChangeSecretWrapsUncodedErrors(t *testing.T) {
	gw := &authmocks.MockAuthGateway{
		ChangeSecretFunc: func(context.Context, string, string) error { return errors.New("boom") },
	}
	mgr := newTestSessionManager(gw, authmocks.NewMemoryDeviceStore())
	err := mgr.ChangeSecret(context.Background(), "7", "x")
	assert.True(t, apperrors.IsRemoteRejected(err))
}

func TestSessionManager_LogoutAlwaysSucceeds(t *testing.T) {
	store := authmocks.NewMemoryDeviceStore()
	mgr := newTestSessionManager(&authmocks.MockAuthGateway{}, store)
	_, err := mgr.Login(context.Background(), "9", "pw")
	require.NoError(t, err)

	var last *bool
	mgr.Subscribe(func(_ domainauth.Session, ok bool) { last = &ok })

	store.DeleteErr = errors.New("read-only filesystem")
	mgr.Logout(context.Background())

	assert.False(t, mgr.IsAuthenticated())
	require.NotNil(t, last)
	assert.False(t, *last)
	_, err = mgr.RequireSession()
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidState))
}

func TestSessionManager_EstablishBiometric(t *testing.T) {
	store := authmocks.NewMemoryDeviceStore()
	mgr := newTestSessionManager(&authmocks.MockAuthGateway{}, store)

	s, err := mgr.EstablishBiometric(context.Background(), domainauth.Identity{Key: "200", Role: domainauth.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, domainauth.AuthMethodBiometric, s.AuthMethod)
	assert.NotNil(t, store.Raw(domainauth.SessionStorageKey))

	_, err = mgr.EstablishBiometric(context.Background(), domainauth.Identity{Key: "201", Role: "janitor"})
	assert.True(t, apperrors.IsValidation(err))
	current, _ := mgr.Current()
	assert.Equal(t, "200", current.Identity.Key)
}

func TestSessionManager_SubscribeCancel(t *testing.T) {
	mgr := newTestSessionManager(&authmocks.MockAuthGateway{}, authmocks.NewMemoryDeviceStore())
	calls := 0
	cancel := mgr.Subscribe(func(domainauth.Session, bool) { calls++ })
	cancel()
	cancel()

	_, err := mgr.Login(context.Background(), "1", "pw")
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}
