package tcpreactor

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// AcceptorState is the Acceptor's {Idle, Listening} state from spec.md
// §4.5.
type AcceptorState int

const (
	AcceptorIdle AcceptorState = iota
	AcceptorListening
)

// Acceptor listens for inbound connections and delivers accepted
// descriptors via NewConnectionCallback, per spec.md §4.5. It owns exactly
// one listening socket and lives on the main EventLoop.
type Acceptor struct {
	loop     *EventLoop
	listenFD int
	channel  *Channel
	state    AcceptorState

	onNewConnection NewConnectionCallback
	logger          Logger
}

// NewAcceptor creates a non-blocking, close-on-exec listening socket with
// address- and port-reuse enabled, bound to addr. The caller must still
// call Listen to begin accepting.
func NewAcceptor(loop *EventLoop, addr netip.AddrPort) (*Acceptor, error) {
	fd, err := newNonblockingSocket(addr)
	if err != nil {
		return nil, err
	}
	if err := setReuseAddr(fd); err != nil {
		_ = closeFD(fd)
		return nil, fmt.Errorf("tcpreactor: setReuseAddr: %w", err)
	}
	if err := setReusePort(fd); err != nil {
		_ = closeFD(fd)
		return nil, fmt.Errorf("tcpreactor: setReusePort: %w", err)
	}
	if err := unix.Bind(fd, sockaddrFromAddrPort(addr)); err != nil {
		_ = closeFD(fd)
		return nil, fmt.Errorf("tcpreactor: bind: %w", err)
	}
	a := &Acceptor{loop: loop, listenFD: fd, logger: loop.logger}
	a.channel = NewChannel(loop, fd)
	a.channel.SetReadCallback(a.handleRead)
	return a, nil
}

func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) {
	a.onNewConnection = cb
}

// Listen transitions Idle -> Listening and registers the channel for reads.
// Must be called from the owning loop.
func (a *Acceptor) Listen() error {
	a.loop.AssertInLoopThread()
	if a.state == AcceptorListening {
		return ErrAcceptorAlreadyListening
	}
	if err := unix.Listen(a.listenFD, unix.SOMAXCONN); err != nil {
		return fmt.Errorf("tcpreactor: listen: %w", err)
	}
	a.state = AcceptorListening
	a.channel.EnableRead()
	return nil
}

// handleRead accepts until EAGAIN, per spec.md §4.5's accept loop. Soft
// errors (ConnectionAborted, TooManyOpenFiles) are logged and the loop
// resumes on the next readable event; anything else is fatal.
func (a *Acceptor) handleRead() {
	for {
		connFD, sa, err := unix.Accept4(a.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.ECONNABORTED:
				a.logger.Warnf("acceptor: connection aborted before accept completed")
				return
			case unix.EMFILE, unix.ENFILE:
				a.logger.Warnf("acceptor: file descriptor limit reached, dropping pending connection")
				return
			default:
				a.logger.Fatalf("acceptor: accept4 failed: %v", err)
				return
			}
		}

		peer := addrPortFromSockaddr(sa)
		local, localErr := localAddr(connFD)
		if localErr != nil {
			local = InetAddress{}
		}

		if a.onNewConnection == nil {
			_ = closeFD(connFD)
			continue
		}
		a.onNewConnection(connFD, local, NewInetAddress(peer))
	}
}

// Close unregisters and closes the listening socket.
func (a *Acceptor) Close() error {
	a.loop.RemoveChannel(a.channel)
	a.state = AcceptorIdle
	return closeFD(a.listenFD)
}
