package tcpreactor

// The callback contracts from spec.md §6. Each slot is a stored invocable
// value rather than a method on a large interface, since most users only
// override a subset (spec.md §9 "Callback polymorphism").
type (
	// ConnectionCallback fires when a connection becomes Connected or
	// reaches Disconnected.
	ConnectionCallback func(conn *TcpConnection)

	// MessageCallback fires when bytes are appended to a connection's
	// input buffer. The buffer is mutable; the callback is expected to
	// Retrieve what it consumes.
	MessageCallback func(conn *TcpConnection, buf *Buffer)

	// WriteCompleteCallback fires when a connection's output buffer has
	// fully drained after a Send.
	WriteCompleteCallback func(conn *TcpConnection)

	// HighWaterMarkCallback fires when a connection's output buffer
	// crosses HighWaterMark upward.
	HighWaterMarkCallback func(conn *TcpConnection, size int)

	// NewConnectionCallback fires with a freshly accepted or connected
	// file descriptor and its addresses.
	NewConnectionCallback func(fd int, local, peer InetAddress)

	// ErrorCallback fires on a fatal Acceptor/Connector condition.
	ErrorCallback func(err error)

	// ThreadInitCallback fires once per worker loop at startup; index 0 is
	// the main loop.
	ThreadInitCallback func(index int, loop *EventLoop)

	// teardownCallback is the internal server/client teardown signal fired
	// from a connection's handleClose, always on the connection's owning
	// loop.
	teardownCallback func(conn *TcpConnection)
)
