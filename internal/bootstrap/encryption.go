package bootstrap

import (
	"log/slog"

	"github.com/target/opsconsole/internal/cryptoutil"
)

// NewSealer builds the at-rest sealer for persisted values from key material.
// A 64-character hex key is used as-is; anything else is hashed to 32 bytes.
// An empty key yields a plaintext sealer, logged as a warning.
//
//nolint:ireturn // callers only need the Sealer behavior
func NewSealer(key string, logger *slog.Logger) (cryptoutil.Sealer, error) {
	if key == "" {
		if logger != nil {
			logger.Warn("store encryption key is empty, persisted values are not encrypted")
		}
		return cryptoutil.PlainSealer{}, nil
	}
	return cryptoutil.NewAESGCMSealer(cryptoutil.DeriveKey(key))
}
