// Package cryptoutil seals persisted device state at rest.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sealer encrypts a value bound to a context string (the storage key).
// Open fails when the context differs from the one used to Seal.
type Sealer interface {
	Seal(plaintext []byte, context string) ([]byte, error)
	Open(sealed []byte, context string) ([]byte, error)
}

const (
	// Versioned prefixes make key or algorithm rotation possible without migrating stored records.
	sealedPrefixV1 = "v1:"
	plainPrefix    = "plain:"
)

// ErrUnsealed is returned by Open for values that were never sealed.
var ErrUnsealed = errors.New("value is not sealed")

// AESGCMSealer implements Sealer using AES-256-GCM with the context as additional data.
type AESGCMSealer struct {
	aead cipher.AEAD
}

// NewAESGCMSealer constructs a sealer. Key must be 32 bytes (AES-256).
func NewAESGCMSealer(key []byte) (*AESGCMSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCMSealer{aead: aead}, nil
}

// DeriveKey accepts either 64 hex characters or an arbitrary passphrase, which is hashed to 32 bytes.
func DeriveKey(material string) []byte {
	if decoded, err := hex.DecodeString(material); err == nil && len(decoded) == 32 {
		return decoded
	}
	sum := sha256.Sum256([]byte(material))
	return sum[:]
}

// Seal returns "v1:" followed by base64(nonce||ciphertext).
func (s *AESGCMSealer) Seal(plaintext []byte, context string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	ct := s.aead.Seal(nonce, nonce, plaintext, []byte(context))
	out := make([]byte, 0, len(sealedPrefixV1)+base64.StdEncoding.EncodedLen(len(ct)))
	out = append(out, sealedPrefixV1...)
	return base64.StdEncoding.AppendEncode(out, ct), nil
}

// Open reverses Seal. Values written by PlainSealer are accepted so enabling
// encryption on an existing device does not lose its session.
func (s *AESGCMSealer) Open(sealed []byte, context string) ([]byte, error) {
	str := string(sealed)
	if strings.HasPrefix(str, plainPrefix) {
		return PlainSealer{}.Open(sealed, context)
	}
	if !strings.HasPrefix(str, sealedPrefixV1) {
		return nil, ErrUnsealed
	}
	data, err := base64.StdEncoding.DecodeString(str[len(sealedPrefixV1):])
	if err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, errors.New("sealed value too short")
	}
	pt, err := s.aead.Open(nil, data[:n], data[n:], []byte(context))
	if err != nil {
		return nil, fmt.Errorf("open sealed value: %w", err)
	}
	return pt, nil
}

// PlainSealer marks values without encrypting them. It is used when no key is configured.
type PlainSealer struct{}

func (PlainSealer) Seal(plaintext []byte, _ string) ([]byte, error) {
	out := make([]byte, 0, len(plainPrefix)+base64.StdEncoding.EncodedLen(len(plaintext)))
	out = append(out, plainPrefix...)
	return base64.StdEncoding.AppendEncode(out, plaintext), nil
}

func (PlainSealer) Open(sealed []byte, _ string) ([]byte, error) {
	str := string(sealed)
	if !strings.HasPrefix(str, plainPrefix) {
		return nil, ErrUnsealed
	}
	return base64.StdEncoding.DecodeString(str[len(plainPrefix):])
}
