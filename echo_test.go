package tcpreactor

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestEchoLoopbackRoundTrip exercises the accept -> handoff -> message ->
// send path over a real loopback socket: the server echoes the bytes back
// unchanged and the client checks it receives "ping". Connection close is
// not exercised.
func TestEchoLoopbackRoundTrip(t *testing.T) {
	baseLoop, err := NewEventLoop()
	require.NoError(t, err)
	go func() { _ = baseLoop.Loop() }()
	defer baseLoop.Quit()

	addr := netip.MustParseAddrPort("127.0.0.1:0")
	server, err := NewTcpServer(baseLoop, "echo", addr)
	require.NoError(t, err)
	server.SetMessageCallback(func(conn *TcpConnection, buf *Buffer) {
		conn.Send([]byte(buf.RetrieveAllAsString()))
	})
	require.NoError(t, server.Start())
	defer server.Stop()

	listenAddr := waitAcceptorAddr(t, server.acceptor)

	clientLoop, err := NewEventLoop()
	require.NoError(t, err)
	go func() { _ = clientLoop.Loop() }()
	defer clientLoop.Quit()

	var received atomic.Value
	var wg sync.WaitGroup
	wg.Add(1)

	client := NewTcpClient(clientLoop, "echo-client", listenAddr, false)
	client.SetMessageCallback(func(conn *TcpConnection, buf *Buffer) {
		received.Store(buf.RetrieveAllAsString())
		wg.Done()
	})
	client.SetConnectionCallback(func(conn *TcpConnection) {
		if conn.Connected() {
			conn.Send([]byte("ping"))
		}
	})
	client.Connect()

	waitDone(t, &wg, 2*time.Second)
	require.Equal(t, "ping", received.Load())
}

func waitAcceptorAddr(t *testing.T, a *Acceptor) netip.AddrPort {
	t.Helper()
	addr, err := localAddr(a.listenFD)
	require.NoError(t, err)
	return addr.AddrPort()
}

func waitDone(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for echo round trip")
	}
}
