package tcpreactor

import (
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestConnectorNonRetryingReportsErrorOnRefusal dials a port nothing is
// listening on and expects the error callback to fire exactly once without
// any retry, since the connector was created with retry=false.
func TestConnectorNonRetryingReportsErrorOnRefusal(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go func() { _ = loop.Loop() }()
	defer loop.Quit()

	unused := findUnusedLoopbackPort(t)

	var errCount atomic.Int32
	done := make(chan struct{}, 1)
	loop.RunInLoop(func() {
		c := NewConnector(loop, unused, false)
		c.SetErrorCallback(func(err error) {
			errCount.Add(1)
			select {
			case done <- struct{}{}:
			default:
			}
		})
		c.Start()
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connector error callback")
	}
	require.Equal(t, int32(1), errCount.Load())
}

func findUnusedLoopbackPort(t *testing.T) netip.AddrPort {
	t.Helper()
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go func() { _ = loop.Loop() }()
	defer loop.Quit()

	addr := netip.MustParseAddrPort("127.0.0.1:0")
	acc, err := NewAcceptor(loop, addr)
	require.NoError(t, err)
	bound, err := localAddr(acc.listenFD)
	require.NoError(t, err)
	_ = closeFD(acc.listenFD)
	return bound.AddrPort()
}
