package tcpreactor

import (
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestTcpClientReconnectsAfterDrop checks that a retrying client, whose
// first connection the server force-closes, redials (after its 20ms
// reconnect interval) and is reported Connected a second time within 3s.
func TestTcpClientReconnectsAfterDrop(t *testing.T) {
	baseLoop, err := NewEventLoop()
	require.NoError(t, err)
	go func() { _ = baseLoop.Loop() }()
	defer baseLoop.Quit()

	addr := netip.MustParseAddrPort("127.0.0.1:0")
	server, err := NewTcpServer(baseLoop, "reconnect-srv", addr)
	require.NoError(t, err)

	var droppedOnce atomic.Bool
	server.SetConnectionCallback(func(conn *TcpConnection) {
		if conn.Connected() && !droppedOnce.Swap(true) {
			conn.ForceClose()
		}
	})
	require.NoError(t, server.Start())
	defer server.Stop()

	listenAddr, err := localAddr(server.acceptor.listenFD)
	require.NoError(t, err)

	clientLoop, err := NewEventLoop()
	require.NoError(t, err)
	go func() { _ = clientLoop.Loop() }()
	defer clientLoop.Quit()

	var connectCount atomic.Int32
	client := NewTcpClient(clientLoop, "reconnect-cli", listenAddr.AddrPort(), true,
		WithReconnectInterval(20*time.Millisecond))
	client.SetConnectionCallback(func(conn *TcpConnection) {
		if conn.Connected() {
			connectCount.Add(1)
		}
	})
	client.Connect()

	require.Eventually(t, func() bool {
		return connectCount.Load() >= 2
	}, 3*time.Second, 10*time.Millisecond)
}
