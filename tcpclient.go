package tcpreactor

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
)

// TcpClient dials a single remote address from one loop, per spec.md §4.9.
// When configured to retry, a dropped connection is automatically redialed
// after Config.ReconnectInterval, and failed dial attempts are retried with
// the Connector's backoff; Stop disables further retries.
type TcpClient struct {
	loop *EventLoop
	name string
	addr netip.AddrPort

	connector *Connector
	config    Config

	onConnection    ConnectionCallback
	onMessage       MessageCallback
	onWriteComplete WriteCompleteCallback

	mu      sync.Mutex
	conn    *TcpConnection
	retry   bool
	nextID  atomic.Uint64
}

// NewTcpClient creates a client that will dial addr once Connect is called.
// retry controls whether a lost connection is automatically redialed.
func NewTcpClient(loop *EventLoop, name string, addr netip.AddrPort, retry bool, opts ...Option) *TcpClient {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &TcpClient{loop: loop, name: name, addr: addr, retry: retry, config: cfg}
	c.connector = NewConnector(loop, addr, retry)
	c.connector.SetNewConnectionCallback(c.newConnection)
	c.connector.SetErrorCallback(c.connectError)
	return c
}

func (c *TcpClient) SetConnectionCallback(cb ConnectionCallback)       { c.onConnection = cb }
func (c *TcpClient) SetMessageCallback(cb MessageCallback)             { c.onMessage = cb }
func (c *TcpClient) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.onWriteComplete = cb }

// Connect starts (or restarts) the dial attempt.
func (c *TcpClient) Connect() {
	c.loop.RunInLoop(c.connector.Start)
}

// Connection returns the current TcpConnection, or nil if none is
// established.
func (c *TcpClient) Connection() *TcpConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *TcpClient) newConnection(fd int, local, peer InetAddress) {
	id := c.nextID.Add(1)
	name := fmt.Sprintf("%s-%d", c.name, id)

	conn := NewTcpConnection(c.loop, name, fd, local, peer)
	conn.SetConnectionCallback(c.onConnection)
	conn.SetMessageCallback(c.onMessage)
	conn.SetWriteCompleteCallback(c.onWriteComplete)
	conn.SetHighWaterMarkCallback(nil, c.config.HighWaterMark)
	conn.setTeardownCallback(func(conn *TcpConnection) {
		c.mu.Lock()
		c.conn = nil
		retry := c.retry
		c.mu.Unlock()
		c.loop.QueueInLoop(conn.connectDestroyed)
		if retry {
			// spec.md §4.9: an optional retry timer, default every 3s
			// (Config.ReconnectInterval), separate from the Connector's own
			// exponential backoff over failed dial attempts.
			c.loop.RunAfter(c.config.ReconnectInterval, func() {
				c.mu.Lock()
				retry := c.retry
				c.mu.Unlock()
				if retry {
					c.connector.Start()
				}
			})
		}
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.connectEstablished()
}

func (c *TcpClient) connectError(err error) {
	c.loop.logger.Errorf("client %s: connect to %s failed permanently: %v", c.name, c.addr, err)
}

// Disable turns off automatic reconnection without touching any existing
// connection.
func (c *TcpClient) Disable() {
	c.mu.Lock()
	c.retry = false
	c.mu.Unlock()
}

// Disconnect half-closes the current connection, if any, letting pending
// output drain first. Unlike Stop, it leaves the retry policy untouched, so
// a client configured with retry=true will redial after
// Config.ReconnectInterval, per spec.md §4.9's disconnect()/destructor
// distinction (disconnect half-closes, the destructor force-closes).
func (c *TcpClient) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Shutdown()
	}
}

// Stop disables reconnection and force-closes any live connection.
func (c *TcpClient) Stop() {
	c.Disable()
	c.loop.RunInLoop(c.connector.Stop)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.ForceClose()
	}
}
