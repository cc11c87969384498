package tcpreactor

import (
	"runtime"
	"weak"
)

// ReadCallback is invoked when a Channel's descriptor becomes readable.
type ReadCallback func()

// WriteCallback is invoked when a Channel's descriptor becomes writable.
type WriteCallback func()

// CloseCallback is invoked on hang-up without pending readable data.
type CloseCallback func()

// ChannelErrorCallback is invoked when the descriptor reports an error
// condition. It carries no error value; callers read errno themselves via
// socketError, the way the channel-level callback works in
// original_source/include/knetlib/Channel.h.
type ChannelErrorCallback func()

// Channel binds one file descriptor to a set of typed callbacks within one
// EventLoop, per spec.md §3/§4.2. It does not own the descriptor.
type Channel struct {
	loop *EventLoop
	fd   int

	interest   IOEvents
	registered bool

	onRead  ReadCallback
	onWrite WriteCallback
	onClose CloseCallback
	onError ChannelErrorCallback

	tie    weak.Pointer[TcpConnection]
	hasTie bool
}

// NewChannel creates a Channel for fd on loop. The Channel starts with no
// interest registered; call EnableRead/EnableWrite to begin receiving
// events.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd}
}

func (c *Channel) FD() int { return c.fd }

// Tie stores a weak reference to owner. Every subsequent HandleEvents call
// upgrades it to a strong reference for the duration of that single
// dispatch, per spec.md §4.2's lifetime contract; if the owner has already
// been collected, HandleEvents returns without invoking any callback.
func (c *Channel) Tie(owner *TcpConnection) {
	c.tie = weak.Make(owner)
	c.hasTie = true
}

func (c *Channel) update() {
	c.loop.updateChannel(c)
}

func (c *Channel) EnableRead() {
	c.interest |= EventRead
	c.update()
}

func (c *Channel) EnableWrite() {
	c.interest |= EventWrite
	c.update()
}

func (c *Channel) DisableWrite() {
	c.interest &^= EventWrite
	c.update()
}

func (c *Channel) DisableRead() {
	c.interest &^= EventRead
	c.update()
}

func (c *Channel) DisableAll() {
	c.interest = 0
	c.update()
}

func (c *Channel) IsWriting() bool { return c.interest&EventWrite != 0 }
func (c *Channel) IsReading() bool { return c.interest&EventRead != 0 }
func (c *Channel) IsNoneEvent() bool { return c.interest == 0 }

func (c *Channel) Interest() IOEvents { return c.interest }

func (c *Channel) SetRegistered(v bool) { c.registered = v }
func (c *Channel) Registered() bool     { return c.registered }

func (c *Channel) SetReadCallback(cb ReadCallback)   { c.onRead = cb }
func (c *Channel) SetWriteCallback(cb WriteCallback) { c.onWrite = cb }
func (c *Channel) SetCloseCallback(cb CloseCallback) { c.onClose = cb }
func (c *Channel) SetErrorCallback(cb ChannelErrorCallback) { c.onError = cb }

// HandleEvents dispatches readiness to the stored callbacks in the order
// error -> close -> read -> write, per spec.md §4.2. If a tie was set and
// its target has been garbage collected, no callback runs.
func (c *Channel) HandleEvents(events IOEvents) {
	if c.hasTie {
		strong := c.tie.Value()
		if strong == nil {
			return
		}
		defer runtime.KeepAlive(strong)
	}

	if events&EventError != 0 {
		if c.onError != nil {
			c.onError()
		}
		return
	}
	if events&EventHangup != 0 && events&EventRead == 0 {
		if c.onClose != nil {
			c.onClose()
		}
		return
	}
	if events&EventRead != 0 {
		if c.onRead != nil {
			c.onRead()
		}
	}
	if events&EventWrite != 0 {
		if c.onWrite != nil {
			c.onWrite()
		}
	}
}
