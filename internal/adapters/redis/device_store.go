package redis

// Package redis provides a Redis-backed device store so several kiosks can share state.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/ports"
)

var _ ports.DeviceStore = (*DeviceStore)(nil)

// DefaultPrefix namespaces every key the console writes.
const DefaultPrefix = "opsconsole:"

// DeviceStore is a Redis-based ports.DeviceStore.
// Values are stored verbatim; a positive TTL makes them expire.
type DeviceStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// DeviceStoreOptions groups optional settings.
type DeviceStoreOptions struct {
	Prefix string
	TTL    time.Duration
}

// NewDeviceStore creates a Redis-based device store.
func NewDeviceStore(client redis.UniversalClient, opts DeviceStoreOptions) *DeviceStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &DeviceStore{client: client, prefix: prefix, ttl: opts.TTL}
}

func (s *DeviceStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFoundf("key %q not found", key)
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (s *DeviceStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return apperrors.ValidationField("key", "key cannot be empty")
	}
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *DeviceStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
