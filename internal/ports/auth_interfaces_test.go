package ports_test

import (
	"testing"

	mocks "github.com/target/opsconsole/internal/mocks/auth"
	"github.com/target/opsconsole/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.DeviceStore = (*mocks.MemoryDeviceStore)(nil)
	var _ ports.AuthGateway = (*mocks.MockAuthGateway)(nil)
	var _ ports.UserDirectory = (*mocks.StaticUserDirectory)(nil)
	var _ ports.Camera = (*mocks.CountingCamera)(nil)
	var _ ports.Device = (*mocks.FakeDevice)(nil)
	var _ ports.Detector = (*mocks.ScriptedDetector)(nil)
}
