// Package sealedstore encrypts values on their way into another DeviceStore.
package sealedstore

import (
	"context"
	"fmt"

	"github.com/target/opsconsole/internal/cryptoutil"
	"github.com/target/opsconsole/internal/ports"
)

var _ ports.DeviceStore = (*Store)(nil)

// Store seals every value with the storage key as context before delegating.
type Store struct {
	inner  ports.DeviceStore
	sealer cryptoutil.Sealer
}

// New wraps inner. A nil sealer stores values marked but unencrypted.
func New(inner ports.DeviceStore, sealer cryptoutil.Sealer) *Store {
	if sealer == nil {
		sealer = cryptoutil.PlainSealer{}
	}
	return &Store{inner: inner, sealer: sealer}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	value, err := s.sealer.Open(raw, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	sealed, err := s.sealer.Seal(value, key)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return s.inner.Put(ctx, key, sealed)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
