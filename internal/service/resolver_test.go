package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/target/opsconsole/internal/domain/auth"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/mocks"
	authmocks "github.com/target/opsconsole/internal/mocks/auth"
)

func TestResolver_FallbackWinsOverRemote(t *testing.T) {
	users := &authmocks.StaticUserDirectory{Users: []domainauth.Identity{
		{Key: "103", Role: domainauth.RoleOperator},
		{Key: "200", Role: domainauth.RoleAdmin},
	}}
	bio := NewBiometricDirectory(users, nil)
	require.NoError(t, bio.Refresh(context.Background()))

	r := NewResolver([]domainauth.Identity{{Key: "103", Role: domainauth.RoleManager}}, bio, nil)

	assert.Equal(t, []domainauth.Identity{
		{Key: "103", Role: domainauth.RoleManager},
		{Key: "200", Role: domainauth.RoleAdmin},
	}, r.Directory())

	id, err := r.Resolve(context.Background(), "103")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleManager, id.Role)
	assert.Equal(t, 1, users.Calls, "a loaded key resolves without a network call")
}

func TestResolver_RefreshesOnceOnMiss(t *testing.T) {
	users := &authmocks.StaticUserDirectory{}
	bio := NewBiometricDirectory(users, nil)
	r := NewResolver(nil, bio, nil)

	users.Users = []domainauth.Identity{{Key: "500", Role: domainauth.RoleSupervisor}}
	id, err := r.Resolve(context.Background(), "500")
	require.NoError(t, err)
	assert.Equal(t, "500", id.Key)
	assert.Equal(t, 1, users.Calls)

	_, err = r.Resolve(context.Background(), "501")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, 2, users.Calls)
}

func TestResolver_RefreshFailureStillResolvesFallback(t *testing.T) {
	users := &authmocks.StaticUserDirectory{
		Users: []domainauth.Identity{{Key: "200", Role: domainauth.RoleAdmin}},
	}
	bio := NewBiometricDirectory(users, nil)
	require.NoError(t, bio.Refresh(context.Background()))

	users.Err = apperrors.RemoteRejected("status 503")
	r := NewResolver([]domainauth.Identity{{Key: "1", Role: domainauth.RoleAdmin}}, bio, nil)

	_, err := r.Resolve(context.Background(), "404")
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsRemoteRejected(err), "refresh cause is kept")

	assert.Empty(t, bio.Snapshot(), "failed refresh clears the remote set")
	assert.Error(t, bio.Err())
	assert.Equal(t, []domainauth.Identity{{Key: "1", Role: domainauth.RoleAdmin}}, r.Directory())

	id, err := r.Resolve(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "1", id.Key)
}

func TestResolver_OverDirectoryCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockDirectoryClient(ctrl)
	client.EXPECT().ListEmployees(gomock.Any()).Return(employees(), nil).Times(1)

	cache := NewDirectoryCache(DirectoryCacheOptions{Client: client})
	r := NewResolver(nil, cache, nil)

	id, err := r.Resolve(context.Background(), "200")
	require.NoError(t, err)
	assert.Equal(t, "Bo", id.FirstName)

	id, err = r.Resolve(context.Background(), "103")
	require.NoError(t, err)
	assert.Equal(t, "Ana", id.FirstName)
}

func TestResolver_NoSource(t *testing.T) {
	r := NewResolver([]domainauth.Identity{{Key: "1", Role: domainauth.RoleAdmin}}, nil, nil)

	_, err := r.Resolve(context.Background(), "2")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = r.Resolve(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestBiometricDirectory_RefreshErrorIsReturned(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserDirectory(ctrl)
	boom := errors.New("dial tcp: refused")
	users.EXPECT().ListUsers(gomock.Any()).Return(nil, boom)

	bio := NewBiometricDirectory(users, nil)
	assert.ErrorIs(t, bio.Refresh(context.Background()), boom)
	assert.Nil(t, bio.Snapshot())
}
