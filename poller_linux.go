//go:build linux

package tcpreactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux Poller implementation: an fd-indexed table plus
// epoll_wait, adapted from the teacher's FastPoller. Registration state is
// kept in a map (addressed by fd) rather than storing a Channel pointer in
// epoll_event.data.ptr the way the original C++ Epoll does, since Go's
// unix.EpollEvent.Fd is an int32 slot, not a pointer.
type epollPoller struct {
	epfd     int
	mu       sync.RWMutex
	fds      map[int]*fdInfo
	eventBuf []unix.EpollEvent
}

func newPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("tcpreactor: epoll_create1: %w", err)
	}
	return &epollPoller{
		epfd:     epfd,
		fds:      make(map[int]*fdInfo),
		eventBuf: make([]unix.EpollEvent, 128),
	}, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

func (p *epollPoller) RegisterFD(fd int, events IOEvents, cb fdCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.fds[fd]; exists {
		return fmt.Errorf("tcpreactor: fd %d already registered", fd)
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("tcpreactor: epoll_ctl add: %w", err)
	}
	p.fds[fd] = &fdInfo{callback: cb, events: events, active: true}
	return nil
}

func (p *epollPoller) ModifyFD(fd int, events IOEvents) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.fds[fd]
	if !ok {
		return ErrChannelDisabled
	}
	info.events = events
	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		// A concurrent teardown may have already removed this fd from the
		// kernel's interest set; that is not this caller's problem.
		if err == unix.ENOENT || err == unix.EBADF {
			return nil
		}
		return fmt.Errorf("tcpreactor: epoll_ctl mod: %w", err)
	}
	return nil
}

func (p *epollPoller) UnregisterFD(fd int) error {
	p.mu.Lock()
	delete(p.fds, fd)
	p.mu.Unlock()
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		if err == unix.ENOENT || err == unix.EBADF {
			return nil
		}
		return fmt.Errorf("tcpreactor: epoll_ctl del: %w", err)
	}
	return nil
}

// PollIO blocks for at most timeoutMs and dispatches readiness callbacks for
// every fd that fired. An interrupted wait (EINTR) returns (0, nil) rather
// than an error, matching the original Epoll::poll's handling of signals.
func (p *epollPoller) PollIO(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("tcpreactor: epoll_wait: %w", err)
	}
	if n == len(p.eventBuf) {
		p.eventBuf = make([]unix.EpollEvent, len(p.eventBuf)*2)
	}
	p.mu.RLock()
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		info, ok := p.fds[fd]
		if !ok || !info.active {
			continue
		}
		cb := info.callback
		mask := epollToEvents(p.eventBuf[i].Events)
		p.mu.RUnlock()
		cb(mask)
		p.mu.RLock()
	}
	p.mu.RUnlock()
	return n, nil
}

func eventsToEpoll(events IOEvents) uint32 {
	var out uint32
	if events&EventRead != 0 {
		out |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		out |= unix.EPOLLOUT
	}
	return out
}

func epollToEvents(mask uint32) IOEvents {
	var out IOEvents
	if mask&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		out |= EventRead
	}
	if mask&unix.EPOLLOUT != 0 {
		out |= EventWrite
	}
	if mask&unix.EPOLLERR != 0 {
		out |= EventError
	}
	if mask&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		out |= EventHangup
	}
	return out
}
