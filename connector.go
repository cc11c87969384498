package tcpreactor

import (
	"math/rand"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"
)

// ConnectorState is the {Disconnected, Connecting, Connected} state from
// spec.md §4.6.
type ConnectorState int

const (
	ConnectorDisconnected ConnectorState = iota
	ConnectorConnecting
	ConnectorConnected
)

const (
	connectBackoffInitial = 500 * time.Millisecond
	connectBackoffMax     = 30 * time.Second
)

// Connector turns a non-blocking connect() call into an established
// connection, per spec.md §4.6. Retriable failures back off with capped
// exponential delay (spec.md §9 Open Question b) and retry until the
// connector is stopped; fatal failures invoke the error callback once and
// do not retry. The socket fd produced by a successful connect is handed to
// the caller's NewConnectionCallback; the Connector retains no ownership of
// it afterward.
type Connector struct {
	loop *EventLoop
	addr netip.AddrPort

	state   ConnectorState
	channel *Channel
	fd      int

	retry   bool
	backoff time.Duration
	timer   TimerHandle

	onNewConnection NewConnectionCallback
	onError         ErrorCallback
	logger          Logger
}

// NewConnector creates a connector targeting addr. retry controls whether
// retriable failures are retried with backoff (TcpClient sets this true;
// a one-shot dial sets it false).
func NewConnector(loop *EventLoop, addr netip.AddrPort, retry bool) *Connector {
	return &Connector{
		loop:    loop,
		addr:    addr,
		retry:   retry,
		backoff: connectBackoffInitial,
		logger:  loop.logger,
	}
}

func (c *Connector) SetNewConnectionCallback(cb NewConnectionCallback) { c.onNewConnection = cb }
func (c *Connector) SetErrorCallback(cb ErrorCallback)                 { c.onError = cb }

// Start begins (or restarts) a connection attempt. Must be called from the
// owning loop.
func (c *Connector) Start() {
	c.loop.AssertInLoopThread()
	c.connect()
}

// Stop cancels any pending retry timer and leaves the connector idle.
func (c *Connector) Stop() {
	c.loop.AssertInLoopThread()
	c.retry = false
	if c.timer != 0 {
		c.loop.CancelTimer(c.timer)
		c.timer = 0
	}
}

func (c *Connector) connect() {
	fd, err := newNonblockingSocket(c.addr)
	if err != nil {
		c.fail(err)
		return
	}

	c.state = ConnectorConnecting
	err = unix.Connect(fd, sockaddrFromAddrPort(c.addr))
	switch err {
	case nil:
		c.fd = fd
		c.completeConnect()
	case unix.EINPROGRESS, unix.EINTR:
		c.fd = fd
		c.channel = NewChannel(c.loop, fd)
		c.channel.SetWriteCallback(c.handleWrite)
		c.channel.SetErrorCallback(func() {
			c.loop.RemoveChannel(c.channel)
			_ = closeFD(c.fd)
			c.retryOrFail(ErrConnectorFailed)
		})
		c.channel.EnableWrite()
	case unix.ECONNREFUSED, unix.ECONNRESET, unix.ENETUNREACH, unix.ENETDOWN, unix.ETIMEDOUT:
		_ = closeFD(fd)
		c.retryOrFail(err)
	default:
		_ = closeFD(fd)
		c.fail(err)
	}
}

// handleWrite fires once the socket becomes writable; SO_ERROR disambiguates
// success from a deferred connect failure.
func (c *Connector) handleWrite() {
	c.loop.RemoveChannel(c.channel)
	errno, err := socketError(c.fd)
	if err != nil {
		c.retryOrFail(err)
		return
	}
	if errno != 0 {
		c.retryOrFail(unix.Errno(errno))
		return
	}
	c.completeConnect()
}

func (c *Connector) completeConnect() {
	c.state = ConnectorConnected
	c.backoff = connectBackoffInitial
	local, _ := localAddr(c.fd)
	peer, _ := peerAddr(c.fd)
	fd := c.fd
	c.fd = -1
	if c.onNewConnection != nil {
		c.onNewConnection(fd, local, NewInetAddress(peer.AddrPort()))
	} else {
		_ = closeFD(fd)
	}
}

func (c *Connector) retryOrFail(err error) {
	c.state = ConnectorDisconnected
	if !c.retry {
		c.fail(err)
		return
	}
	delay := c.backoff
	c.backoff *= 2
	if c.backoff > connectBackoffMax {
		c.backoff = connectBackoffMax
	}
	// jitter avoids a thundering herd of reconnecting clients all retrying
	// in lockstep after a shared upstream outage.
	delay += time.Duration(rand.Int63n(int64(delay) / 4 + 1))
	c.timer = c.loop.RunAfter(delay, func() { c.connect() })
}

func (c *Connector) fail(err error) {
	c.state = ConnectorDisconnected
	if c.onError != nil {
		c.onError(err)
	}
}
