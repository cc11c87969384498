package tcpreactor

import (
	"golang.org/x/sys/unix"
)

// TcpConnection represents one established socket for its entire lifetime,
// per spec.md §3/§4.7. It is created already Connecting and is driven
// through Connected -> Disconnecting -> Disconnected by its owning loop;
// every method that touches the socket or its buffers is only safe to call
// from that loop, with Send/Shutdown/ForceClose providing a RunInLoop hop
// for callers on other goroutines.
type TcpConnection struct {
	loop *EventLoop
	name string
	fd   int

	channel *Channel
	state   *connState

	local InetAddress
	peer  InetAddress

	inputBuffer  *Buffer
	outputBuffer *Buffer

	highWaterMark int

	onConnection     ConnectionCallback
	onMessage        MessageCallback
	onWriteComplete  WriteCompleteCallback
	onHighWaterMark  HighWaterMarkCallback
	onTeardown       teardownCallback

	logger Logger

	// context carries a single opaque application value, e.g. a protocol
	// decoder's accumulated state, mirroring knetlib's boost::any slot.
	context any
}

// NewTcpConnection wraps an already-accepted-or-connected, non-blocking fd.
// The connection starts in StateConnecting; callers must invoke
// connectEstablished once it is ready to begin dispatching I/O.
func NewTcpConnection(loop *EventLoop, name string, fd int, local, peer InetAddress) *TcpConnection {
	c := &TcpConnection{
		loop:          loop,
		name:          name,
		fd:            fd,
		state:         newConnState(StateConnecting),
		local:         local,
		peer:          peer,
		inputBuffer:   NewBuffer(),
		outputBuffer:  NewBuffer(),
		highWaterMark: 64 * 1024 * 1024,
		logger:        loop.logger,
	}
	c.channel = NewChannel(loop, fd)
	c.channel.Tie(c)
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleErrorCallback)
	_ = setTCPNoDelay(fd, true)
	return c
}

func (c *TcpConnection) Name() string        { return c.name }
func (c *TcpConnection) LocalAddr() InetAddress { return c.local }
func (c *TcpConnection) PeerAddr() InetAddress  { return c.peer }
func (c *TcpConnection) State() ConnState    { return c.state.Load() }
func (c *TcpConnection) Connected() bool     { return c.state.Load() == StateConnected }
func (c *TcpConnection) Loop() *EventLoop    { return c.loop }

func (c *TcpConnection) Context() any         { return c.context }
func (c *TcpConnection) SetContext(ctx any)   { c.context = ctx }

func (c *TcpConnection) SetConnectionCallback(cb ConnectionCallback)       { c.onConnection = cb }
func (c *TcpConnection) SetMessageCallback(cb MessageCallback)             { c.onMessage = cb }
func (c *TcpConnection) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.onWriteComplete = cb }
func (c *TcpConnection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.onHighWaterMark = cb
	c.highWaterMark = mark
}
func (c *TcpConnection) setTeardownCallback(cb teardownCallback) { c.onTeardown = cb }

// connectEstablished transitions Connecting -> Connected, ties the channel,
// enables reads, and fires onConnection. Must run on the owning loop.
func (c *TcpConnection) connectEstablished() {
	c.loop.AssertInLoopThread()
	if !c.state.CompareAndSwap(StateConnecting, StateConnected) {
		c.logger.Errorf("connection %s: connectEstablished from unexpected state %s", c.name, c.state.Load())
		return
	}
	c.channel.EnableRead()
	if c.onConnection != nil {
		c.onConnection(c)
	}
}

// connectDestroyed unregisters the channel and closes the descriptor,
// mirroring the original's two-phase teardown (handleClose fires the user
// callback, connectDestroyed reclaims the descriptor). It does not invoke
// onConnection itself.
func (c *TcpConnection) connectDestroyed() {
	c.loop.AssertInLoopThread()
	if c.state.Load() == StateConnected {
		c.state.Store(StateDisconnected)
		c.channel.DisableAll()
	}
	c.loop.RemoveChannel(c.channel)
	_ = closeFD(c.fd)
}

// Send queues data for delivery, hopping to the owning loop if necessary.
// Bytes already queued ahead of this call are always flushed first so that
// message ordering is preserved regardless of the calling goroutine.
func (c *TcpConnection) Send(data []byte) {
	if c.state.Load() != StateConnected {
		return
	}
	buf := append([]byte(nil), data...)
	if c.loop.IsInLoopThread() {
		c.sendInLoop(buf)
	} else {
		c.loop.QueueInLoop(func() { c.sendInLoop(buf) })
	}
}

// sendInLoop is the direct-write-then-buffer-remainder path from
// original_source/src/TcpConnection.cpp's sendInLoop: if nothing is already
// queued, it writes straight to the socket and only buffers what the kernel
// would not accept immediately.
func (c *TcpConnection) sendInLoop(data []byte) {
	if c.state.Load() == StateDisconnected {
		c.logger.Warnf("connection %s: send on disconnected connection, dropping %d bytes", c.name, len(data))
		return
	}

	written := 0
	remaining := len(data)
	faultError := false

	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.fd, data)
		switch {
		case err == nil:
			written = n
			remaining = len(data) - n
			if remaining == 0 && c.onWriteComplete != nil {
				c.loop.QueueInLoop(func() { c.onWriteComplete(c) })
			}
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			written = 0
		default:
			c.logger.Errorf("connection %s: write error: %v", c.name, err)
			faultError = true
			c.handleError(err)
		}
	}

	if !faultError && remaining > 0 {
		oldLen := c.outputBuffer.ReadableBytes()
		newLen := oldLen + remaining
		if newLen >= c.highWaterMark && oldLen < c.highWaterMark && c.onHighWaterMark != nil {
			c.loop.QueueInLoop(func() { c.onHighWaterMark(c, newLen) })
		}
		c.outputBuffer.Append(data[written:])
		if !c.channel.IsWriting() {
			c.channel.EnableWrite()
		}
	}
}

// Shutdown half-closes the write side once pending output has drained.
func (c *TcpConnection) Shutdown() {
	if !c.state.CompareAndSwap(StateConnected, StateDisconnecting) {
		return
	}
	c.loop.RunInLoop(c.shutdownInLoop)
}

func (c *TcpConnection) shutdownInLoop() {
	if !c.channel.IsWriting() {
		_ = shutdownWrite(c.fd)
	}
}

// StartRead re-enables read interest on the channel, routing to the owning
// loop per spec.md §4.7's thread-safety contract.
func (c *TcpConnection) StartRead() {
	c.loop.RunInLoop(func() { c.channel.EnableRead() })
}

// StopRead disables read interest without otherwise affecting the
// connection, e.g. to apply backpressure while an application-level
// consumer drains a slow downstream.
func (c *TcpConnection) StopRead() {
	c.loop.RunInLoop(func() { c.channel.DisableRead() })
}

// ForceClose closes the connection immediately regardless of pending
// output. Idempotent: repeated calls after the first are no-ops.
func (c *TcpConnection) ForceClose() {
	for {
		s := c.state.Load()
		if s == StateDisconnected {
			return
		}
		if c.state.CompareAndSwap(s, StateDisconnecting) {
			break
		}
	}
	c.loop.QueueInLoop(c.forceCloseInLoop)
}

func (c *TcpConnection) forceCloseInLoop() {
	if c.state.Load() == StateDisconnected {
		return
	}
	c.handleClose()
}

// handleRead is the Channel read callback: a scatter-read into inputBuffer,
// dispatched per spec.md §4.7's byte-count rules.
func (c *TcpConnection) handleRead() {
	n, err := c.inputBuffer.ReadFD(c.fd)
	switch {
	case n > 0:
		if c.onMessage != nil {
			c.onMessage(c, c.inputBuffer)
		}
	case n == 0:
		c.handleClose()
	default:
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		c.handleError(err)
	}
}

// handleWrite drains outputBuffer, disabling write interest once empty and
// completing a pending half-close if one was requested while data was still
// in flight.
func (c *TcpConnection) handleWrite() {
	if !c.channel.IsWriting() {
		return
	}
	n, err := unix.Write(c.fd, c.outputBuffer.Peek())
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		c.logger.Errorf("connection %s: write error: %v", c.name, err)
		c.handleError(err)
		return
	}
	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.ReadableBytes() == 0 {
		c.channel.DisableWrite()
		if c.onWriteComplete != nil {
			c.loop.QueueInLoop(func() { c.onWriteComplete(c) })
		}
		if c.state.Load() == StateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

// handleClose fires once, transitions to Disconnected, removes the channel
// from polling, and notifies the owning server/client so it can drop its
// reference to this connection.
func (c *TcpConnection) handleClose() {
	prior := c.state.Swap(StateDisconnected)
	if prior == StateDisconnected {
		return
	}
	c.channel.DisableAll()
	if c.onConnection != nil {
		c.onConnection(c)
	}
	if c.onTeardown != nil {
		c.onTeardown(c)
	}
}

// handleError logs the fault and always closes the connection, matching
// original_source/src/TcpConnection.cpp's handleError, which ends with a
// call to handleClose regardless of what triggered it.
func (c *TcpConnection) handleError(err error) {
	errno, sockErr := socketError(c.fd)
	if sockErr == nil && errno != 0 {
		c.logger.Errorf("connection %s: socket error: %v", c.name, unix.Errno(errno))
	} else if err != nil {
		c.logger.Errorf("connection %s: channel error: %v", c.name, err)
	}
	c.handleClose()
}

func (c *TcpConnection) handleErrorCallback() { c.handleError(nil) }
