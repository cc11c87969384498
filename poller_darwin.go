//go:build darwin

package tcpreactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the Darwin Poller implementation, adapted from the
// teacher's FastPoller (kqueue). Unlike epoll, kqueue needs a separate
// event per filter (EVFILT_READ / EVFILT_WRITE), so registration diffs the
// old and new interest masks instead of issuing one combined update.
type kqueuePoller struct {
	kq       int
	mu       sync.RWMutex
	fds      map[int]*fdInfo
	eventBuf []unix.Kevent_t
}

func newPoller() (*kqueuePoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("tcpreactor: kqueue: %w", err)
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{
		kq:       kq,
		fds:      make(map[int]*fdInfo),
		eventBuf: make([]unix.Kevent_t, 128),
	}, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}

func (p *kqueuePoller) RegisterFD(fd int, events IOEvents, cb fdCallback) error {
	p.mu.Lock()
	if _, exists := p.fds[fd]; exists {
		p.mu.Unlock()
		return fmt.Errorf("tcpreactor: fd %d already registered", fd)
	}
	p.fds[fd] = &fdInfo{callback: cb, events: events, active: true}
	p.mu.Unlock()

	kevents := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevents) > 0 {
		if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
			p.mu.Lock()
			delete(p.fds, fd)
			p.mu.Unlock()
			return fmt.Errorf("tcpreactor: kevent add: %w", err)
		}
	}
	return nil
}

func (p *kqueuePoller) ModifyFD(fd int, events IOEvents) error {
	p.mu.Lock()
	info, ok := p.fds[fd]
	if !ok {
		p.mu.Unlock()
		return ErrChannelDisabled
	}
	old := info.events
	info.events = events
	p.mu.Unlock()

	if removed := old &^ events; removed != 0 {
		if kevs := eventsToKevents(fd, removed, unix.EV_DELETE); len(kevs) > 0 {
			_, _ = unix.Kevent(p.kq, kevs, nil, nil)
		}
	}
	if added := events &^ old; added != 0 {
		if kevs := eventsToKevents(fd, added, unix.EV_ADD|unix.EV_ENABLE); len(kevs) > 0 {
			if _, err := unix.Kevent(p.kq, kevs, nil, nil); err != nil {
				return fmt.Errorf("tcpreactor: kevent add: %w", err)
			}
		}
	}
	return nil
}

func (p *kqueuePoller) UnregisterFD(fd int) error {
	p.mu.Lock()
	info, ok := p.fds[fd]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	events := info.events
	delete(p.fds, fd)
	p.mu.Unlock()

	if kevs := eventsToKevents(fd, events, unix.EV_DELETE); len(kevs) > 0 {
		_, _ = unix.Kevent(p.kq, kevs, nil, nil)
	}
	return nil
}

func (p *kqueuePoller) PollIO(timeoutMs int) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64(timeoutMs%1000) * 1000000,
		}
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("tcpreactor: kevent wait: %w", err)
	}
	p.mu.RLock()
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		info, ok := p.fds[fd]
		if !ok || !info.active {
			continue
		}
		cb := info.callback
		mask := keventToEvents(&p.eventBuf[i])
		p.mu.RUnlock()
		cb(mask)
		p.mu.RLock()
	}
	p.mu.RUnlock()
	return n, nil
}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&EventRead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
