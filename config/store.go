package config

import (
	"fmt"
	"strings"
	"time"
)

// StoreBackend selects where the persisted session lives.
type StoreBackend string

const (
	// StoreBackendFile keeps state in files under Path (the default for a single console).
	StoreBackendFile StoreBackend = "file"
	// StoreBackendRedis keeps state in Redis, for kiosks that share a profile.
	StoreBackendRedis StoreBackend = "redis"
	// StoreBackendPostgres keeps state in the device_state table.
	StoreBackendPostgres StoreBackend = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for StoreBackend.
func (b *StoreBackend) UnmarshalText(text []byte) error {
	v := StoreBackend(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case StoreBackendFile, StoreBackendRedis, StoreBackendPostgres:
		*b = v
		return nil
	default:
		return fmt.Errorf("invalid StoreBackend: %q (valid options: file, redis, postgres)", string(text))
	}
}

// StoreConfig configures the device store.
type StoreConfig struct {
	Backend StoreBackend `env:"STORE_BACKEND" envDefault:"file"`
	// Path is the file store directory; the XDG state directory when empty.
	Path string `env:"STORE_PATH"`
	// EncryptionKey seals stored values with AES-GCM: 64 hex characters or a passphrase.
	EncryptionKey string `env:"STORE_ENCRYPTION_KEY"`
	// KeyPrefix namespaces Redis keys.
	KeyPrefix string `env:"STORE_KEY_PREFIX" envDefault:"opsconsole:"`
	// TTL expires Redis entries; 0 keeps them.
	TTL time.Duration `env:"STORE_TTL" envDefault:"0s"`
	// DeviceID scopes Postgres rows; the host name when empty.
	DeviceID string `env:"STORE_DEVICE_ID"`
}

// Sanitize trims values and fills defaults.
func (c *StoreConfig) Sanitize() {
	if c.Backend == "" {
		c.Backend = StoreBackendFile
	}
	c.Path = strings.TrimSpace(c.Path)
	c.DeviceID = strings.TrimSpace(c.DeviceID)
	if c.TTL < 0 {
		c.TTL = 0
	}
}
