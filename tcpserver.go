package tcpreactor

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
)

// TcpServer accepts inbound connections on one base loop and hands each
// accepted descriptor off to a worker loop chosen round-robin, per spec.md
// §4.8. There is no global connection table: each worker owns the
// TcpConnections it was handed and tears them down independently, per
// spec.md §9 Open Question (a).
type TcpServer struct {
	baseLoop *EventLoop
	name     string
	acceptor *Acceptor
	pool     *EventLoopThreadPool

	config Config

	onConnection    ConnectionCallback
	onMessage       MessageCallback
	onWriteComplete WriteCompleteCallback

	mu      sync.Mutex
	started bool
	nextID  atomic.Uint64
}

// NewTcpServer creates a server listening on addr once Start is called.
func NewTcpServer(loop *EventLoop, name string, addr netip.AddrPort, opts ...Option) (*TcpServer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	acceptor, err := NewAcceptor(loop, addr)
	if err != nil {
		return nil, wrapErr("tcp server", err)
	}
	s := &TcpServer{
		baseLoop: loop,
		name:     name,
		acceptor: acceptor,
		pool:     NewEventLoopThreadPool(loop),
		config:   cfg,
	}
	acceptor.SetNewConnectionCallback(s.newConnection)
	return s, nil
}

func (s *TcpServer) SetConnectionCallback(cb ConnectionCallback)       { s.onConnection = cb }
func (s *TcpServer) SetMessageCallback(cb MessageCallback)             { s.onMessage = cb }
func (s *TcpServer) SetWriteCompleteCallback(cb WriteCompleteCallback) { s.onWriteComplete = cb }
func (s *TcpServer) SetThreadInitCallback(cb ThreadInitCallback)       { s.pool.SetThreadInitCallback(cb) }

// Loops returns the server's worker loops (empty if NumWorkerThreads is 0).
func (s *TcpServer) Loops() []*EventLoop { return s.pool.Loops() }

// Start spins up the worker pool and begins listening. Idempotent: a
// second call is a no-op returning ErrServerAlreadyStarted.
func (s *TcpServer) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrServerAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	var startErr error
	done := make(chan struct{})
	s.baseLoop.RunInLoop(func() {
		defer close(done)
		if err := s.pool.Start(s.config.NumWorkerThreads); err != nil {
			startErr = err
			return
		}
		startErr = s.acceptor.Listen()
	})
	<-done
	return startErr
}

// newConnection is the Acceptor's NewConnectionCallback, always invoked on
// the base loop. It immediately hands the descriptor to a worker loop,
// mirroring original_source/src/TcpServer.cpp's newConnection.
func (s *TcpServer) newConnection(fd int, local, peer InetAddress) {
	loop := s.pool.GetNextLoop()
	id := s.nextID.Add(1)
	name := fmt.Sprintf("%s-%d", s.name, id)

	loop.RunInLoop(func() {
		conn := NewTcpConnection(loop, name, fd, local, peer)
		conn.SetConnectionCallback(s.onConnection)
		conn.SetMessageCallback(s.onMessage)
		conn.SetWriteCompleteCallback(s.onWriteComplete)
		conn.SetHighWaterMarkCallback(nil, s.config.HighWaterMark)
		conn.setTeardownCallback(func(c *TcpConnection) {
			loop.QueueInLoop(c.connectDestroyed)
		})
		conn.connectEstablished()
	})
}

// Stop closes the acceptor and quits every worker loop. It does not force-
// close already-established connections; callers that need that should do
// so via their own ConnectionCallback bookkeeping before calling Stop.
func (s *TcpServer) Stop() error {
	done := make(chan struct{})
	var err error
	s.baseLoop.RunInLoop(func() {
		err = s.acceptor.Close()
		close(done)
	})
	<-done
	s.pool.Stop()
	return err
}
