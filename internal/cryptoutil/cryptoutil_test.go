package cryptoutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestAESGCMSealer_RoundTrip(t *testing.T) {
	s, err := NewAESGCMSealer(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal([]byte(`{"id":"x"}`), "opsconsole.session")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(sealed), "v1:"))
	assert.NotContains(t, string(sealed), `"id"`)

	got, err := s.Open(sealed, "opsconsole.session")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"x"}`, string(got))
}

func TestAESGCMSealer_BindsContext(t *testing.T) {
	s, err := NewAESGCMSealer(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("v"), "a")
	require.NoError(t, err)

	_, err = s.Open(sealed, "b")
	assert.Error(t, err)
}

func TestAESGCMSealer_WrongKey(t *testing.T) {
	a, err := NewAESGCMSealer(testKey())
	require.NoError(t, err)
	b, err := NewAESGCMSealer(DeriveKey("another passphrase"))
	require.NoError(t, err)

	sealed, err := a.Seal([]byte("v"), "k")
	require.NoError(t, err)
	_, err = b.Open(sealed, "k")
	assert.Error(t, err)
}

func TestAESGCMSealer_AcceptsPlainValues(t *testing.T) {
	s, err := NewAESGCMSealer(testKey())
	require.NoError(t, err)

	plain, err := PlainSealer{}.Seal([]byte("legacy"), "k")
	require.NoError(t, err)

	got, err := s.Open(plain, "k")
	require.NoError(t, err)
	assert.Equal(t, "legacy", string(got))

	_, err = s.Open([]byte(`{"raw":true}`), "k")
	assert.ErrorIs(t, err, ErrUnsealed)
}

func TestNewAESGCMSealer_KeyLength(t *testing.T) {
	_, err := NewAESGCMSealer([]byte("short"))
	assert.Error(t, err)
}

func TestDeriveKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	assert.Equal(t, byte(0xab), DeriveKey(hexKey)[0])
	assert.Len(t, DeriveKey("passphrase"), 32)
	assert.Equal(t, DeriveKey("passphrase"), DeriveKey("passphrase"))
}
