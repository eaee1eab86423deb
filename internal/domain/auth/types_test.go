package auth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" manager ")
	assert.True(t, ok)
	assert.Equal(t, RoleManager, r)

	_, ok = ParseRole("janitor")
	assert.False(t, ok)
}

func TestIdentity_UnmarshalNormalizesRole(t *testing.T) {
	var id Identity
	require.NoError(t, json.Unmarshal([]byte(`{"key":"103","firstName":"Ana","lastName":"Ruiz","area":"Line 2","role":"supervisor"}`), &id))

	assert.Equal(t, RoleSupervisor, id.Role)
	assert.Equal(t, "Ana Ruiz", id.DisplayName())
	require.NoError(t, id.Validate())
}

func TestIdentity_Validate(t *testing.T) {
	assert.Error(t, Identity{Role: RoleAdmin}.Validate())
	assert.Error(t, Identity{Key: "1", Role: "CHEF"}.Validate())
	assert.NoError(t, Identity{Key: "1", Role: RoleOperator}.Validate())
}

func TestIdentity_Normalize(t *testing.T) {
	id := Identity{Key: " 7 ", FirstName: " Jo ", Role: "admin"}.Normalize()
	assert.Equal(t, "7", id.Key)
	assert.Equal(t, "Jo", id.FirstName)
	assert.Equal(t, RoleAdmin, id.Role)
}

func TestSessionRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s := Session{
		ID:            "abc",
		Identity:      Identity{Key: "103", FirstName: "Ana", Role: RoleManager, IsFirstLogin: true},
		AuthMethod:    AuthMethodCredentials,
		EstablishedAt: at,
	}

	data, err := EncodeSession(s)
	require.NoError(t, err)

	got, err := DecodeSession(data)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestDecodeSession_Rejects(t *testing.T) {
	tests := map[string]string{
		"garbage":        `{not json`,
		"old version":    `{"version":0,"identity":{"key":"1","role":"ADMIN"},"role":"ADMIN","auth_method":"CREDENTIALS"}`,
		"role mismatch":  `{"version":1,"identity":{"key":"1","role":"ADMIN"},"role":"MANAGER","auth_method":"CREDENTIALS"}`,
		"missing key":    `{"version":1,"identity":{"role":"ADMIN"},"role":"ADMIN","auth_method":"CREDENTIALS"}`,
		"unknown method": `{"version":1,"identity":{"key":"1","role":"ADMIN"},"role":"ADMIN","auth_method":"PIN"}`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSession([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedSession)
		})
	}
}
