// Package camera provides ports.Camera implementations.
//
// Both cameras hand out one device at a time; Acquire while a device is open fails
// with ErrInUse, mirroring exclusive access to a physical capture device.
package camera

import (
	"context"
	"errors"
	"image"
	"sync"
)

// ErrInUse is returned by Acquire while another device handle is open.
var ErrInUse = errors.New("camera already in use")

// ErrClosed is returned by Snapshot on a released device.
var ErrClosed = errors.New("camera device released")

// exclusive guards the single open handle.
type exclusive struct {
	mu   sync.Mutex
	open bool
}

func (e *exclusive) claim() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open {
		return ErrInUse
	}
	e.open = true
	return nil
}

func (e *exclusive) release() {
	e.mu.Lock()
	e.open = false
	e.mu.Unlock()
}

// device is the handle shared by both cameras.
type device struct {
	once     sync.Once
	owner    *exclusive
	mu       sync.Mutex
	closed   bool
	snapshot func(ctx context.Context) (image.Image, error)
}

func (d *device) Snapshot(ctx context.Context) (image.Image, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return d.snapshot(ctx)
}

func (d *device) Close() error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.owner.release()
	})
	return nil
}
