package statsd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" login/attempt ": "login_attempt",
		"capture..retry":  "capture.retry",
		".directory.":     "directory",
		"a:b|c":           "a_b_c",
		"   ":             "",
	}
	for input, want := range tests {
		assert.Equal(t, want, metricName(input), "metricName(%q)", input)
	}
}

func TestRenderTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " app ": " opsconsole "}
	local := map[string]string{"outcome": " success ", "": "ignored", "env": "stage"}

	assert.Equal(t, "|#app:opsconsole,env:stage,outcome:success", renderTags(global, local))
	assert.Empty(t, renderTags(nil, nil))
}

func TestClientLine(t *testing.T) {
	t.Parallel()

	c := &Client{prefix: "opsconsole", tags: map[string]string{"env": "dev"}}
	assert.Equal(t, "opsconsole.login.attempt:1|c|#env:dev,method:credentials",
		c.line("login.attempt", "1", "c", map[string]string{"method": "credentials"}))
	assert.Empty(t, c.line("  ", "1", "c", nil))

	bare := &Client{}
	assert.Equal(t, "capture.retry:2|c", bare.line("capture.retry", "2", "c", nil))
}

func TestClientWritesOverUDP(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	c, err := NewClient(context.Background(), Config{
		Enabled: true,
		Address: pc.LocalAddr().String(),
		Prefix:  ".opsconsole.",
	})
	require.NoError(t, err)
	defer c.Close()
	require.True(t, c.Enabled())

	c.Timing("directory.load", 1500*time.Microsecond, map[string]string{"outcome": "success"})

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 512)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "opsconsole.directory.load:1.5|ms|#outcome:success", string(buf[:n]))
}

func TestClientDisabled(t *testing.T) {
	t.Parallel()

	c, err := NewClient(context.Background(), Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	c.Count("login.attempt", 1, nil)
	require.NoError(t, c.Close())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	nilClient.Count("x", 1, nil)
	assert.NoError(t, nilClient.Close())
}

func TestClientCloseTwice(t *testing.T) {
	t.Parallel()

	clientConn, peer := net.Pipe()
	defer peer.Close()

	c := &Client{conn: clientConn}
	require.True(t, c.Enabled())
	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Close())
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}
