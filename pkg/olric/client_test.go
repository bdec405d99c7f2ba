package olric

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	olriclib "github.com/olric-data/olric"
	"github.com/olric-data/olric/config"
	"github.com/stretchr/testify/require"
)

// startNode runs a single-member Olric node on loopback and returns its
// client address.
func startNode(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	c := config.New("local")
	c.BindAddr = "127.0.0.1"
	c.BindPort = port
	c.PartitionCount = 7
	c.LogLevel = config.LogLevelError
	c.LogOutput = io.Discard
	c.LeaveTimeout = 500 * time.Millisecond
	c.MemberlistConfig.BindAddr = "127.0.0.1"
	c.MemberlistConfig.BindPort = 0
	c.MemberlistConfig.LogOutput = io.Discard
	c.MemberlistConfig.Name = net.JoinHostPort(c.BindAddr, strconv.Itoa(port))
	require.NoError(t, c.Sanitize())
	require.NoError(t, c.Validate())

	started := make(chan struct{})
	c.Started = func() { close(started) }

	db, err := olriclib.New(c)
	require.NoError(t, err)
	errc := make(chan error, 1)
	go func() { errc <- db.Start() }()

	select {
	case <-started:
	case err := <-errc:
		t.Fatalf("olric node exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("olric node did not start")
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Shutdown(ctx)
	})
	return c.MemberlistConfig.Name
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{Servers: []string{startNode(t)}, DMap: "test-blobs", Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestGetPut(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	value, ok, err := c.Get(ctx, "bafkmissing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, value)

	require.NoError(t, c.Put(ctx, "bafkone", []byte(`{"hr":61}`)))
	value, ok, err = c.Get(ctx, "bafkone")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"hr":61}`), value)

	require.NoError(t, c.Health(ctx))
}

func TestCanceledContext(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, c.Put(ctx, "bafkone", []byte("x")))
	_, ok, err := c.Get(ctx, "bafkone")
	require.Error(t, err)
	require.False(t, ok)
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(Config{Servers: []string{startNode(t)}}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	require.Equal(t, 10*time.Second, c.timeout)
	require.Equal(t, "carefolio-blobs", c.dmap.Name())
	require.NotNil(t, c.logger)
}

func TestCloseNilClient(t *testing.T) {
	var c Client
	require.NoError(t, c.Close(context.Background()))
}
