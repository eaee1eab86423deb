package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "key 42 not found"},
			want: "key 42 not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeTransportUnavailable,
				Message: "login request failed",
				Cause:   errors.New("connection refused"),
			},
			want: "login request failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_UnwrapAndSentinel(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(cause, ErrCodeRemoteRejected, "create rejected"))

	require.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, &AppError{Code: ErrCodeRemoteRejected})
	assert.NotErrorIs(t, err, &AppError{Code: ErrCodeConflict})
}

func TestHasCode_WalksNestedAppErrors(t *testing.T) {
	inner := RemoteRejected("refresh failed")
	outer := Wrap(inner, ErrCodeNotFound, "key 7 not found")

	assert.True(t, IsNotFound(outer))
	assert.True(t, IsRemoteRejected(outer))
	assert.False(t, IsNoMatch(outer))
	assert.Equal(t, ErrCodeNotFound, GetCode(outer))
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
		is   func(error) bool
	}{
		{name: "invalid credentials", err: InvalidCredentials("bad"), code: ErrCodeInvalidCredentials, is: IsInvalidCredentials},
		{name: "remote rejected", err: RemoteRejectedf("status %d", 500), code: ErrCodeRemoteRejected, is: IsRemoteRejected},
		{name: "not found", err: NotFoundf("key %s", "9"), code: ErrCodeNotFound, is: IsNotFound},
		{name: "no match", err: NoMatch("nobody"), code: ErrCodeNoMatch, is: IsNoMatch},
		{name: "transport", err: TransportUnavailable(errors.New("x"), "down"), code: ErrCodeTransportUnavailable, is: IsTransportUnavailable},
		{name: "conflict", err: Conflictf("version %d", 3), code: ErrCodeConflict, is: IsConflict},
		{name: "busy", err: Busy("login pending"), code: ErrCodeBusy, is: IsBusy},
		{name: "canceled", err: Canceled("stopped"), code: ErrCodeCanceled, is: IsCanceled},
		{name: "validation", err: Validation("bad input"), code: ErrCodeValidation, is: IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.True(t, tt.is(tt.err))
		})
	}
}

func TestPlainConstructorsKeepPercentLiterals(t *testing.T) {
	const msg = "disk 100% full"
	for _, err := range []*AppError{
		InvalidCredentials(msg), RemoteRejected(msg), NotFound(msg), NoMatch(msg),
		Conflict(msg), Busy(msg), Canceled(msg), Validation(msg),
	} {
		assert.Equal(t, msg, err.Message, string(err.Code))
	}
	assert.Equal(t, "disk 100% full", RemoteRejectedf("disk %d%% full", 100).Message)
}

func TestValidationField(t *testing.T) {
	err := ValidationField("role", "unknown role")
	assert.Equal(t, "role", GetField(err))
	assert.Empty(t, GetField(errors.New("plain")))
}

func TestWrap_NilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "x"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "x %d", 1))
}
