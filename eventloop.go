package tcpreactor

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Task is a unit of work that must run on its owning EventLoop.
type Task func()

const maxPollTimeout = 10 * time.Second

// poller is the platform-specific readiness backend wrapped by EventLoop,
// per spec.md §4.1.
type poller interface {
	RegisterFD(fd int, events IOEvents, cb fdCallback) error
	ModifyFD(fd int, events IOEvents) error
	UnregisterFD(fd int) error
	PollIO(timeoutMs int) (int, error)
	Close() error
}

// EventLoop is a single-threaded reactor: from the moment Loop is entered
// it is exclusively owned by the calling goroutine, per spec.md §3/§4.3.
// All Poller/Channel/TimerQueue mutation must originate on that goroutine;
// other goroutines may only reach the loop through RunInLoop/QueueInLoop or
// the Timer scheduling methods.
type EventLoop struct {
	state *loopState

	goroutineID  uint64
	goroutineSet bool

	poller poller

	wakeReadFD, wakeWriteFD int
	wakeChannel             *Channel

	mu       sync.Mutex
	pending  []Task
	handling bool

	timers *timerQueue

	quit chan struct{}

	logger Logger
}

// NewEventLoop constructs a loop bound to a fresh poller and wakeup
// descriptor. It does not start running until Loop is called.
func NewEventLoop() (*EventLoop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("tcpreactor: new poller: %w", err)
	}
	readFD, writeFD, err := createWakeFD()
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("tcpreactor: create wake fd: %w", err)
	}
	l := &EventLoop{
		state:       newLoopState(),
		poller:      p,
		wakeReadFD:  readFD,
		wakeWriteFD: writeFD,
		timers:      newTimerQueue(),
		quit:        make(chan struct{}),
		logger:      defaultLogger,
	}
	l.wakeChannel = NewChannel(l, readFD)
	l.wakeChannel.SetReadCallback(func() { _ = drainWakeFD(l.wakeReadFD) })
	if err := l.poller.RegisterFD(readFD, EventRead, l.wakeChannel.HandleEvents); err != nil {
		_ = p.Close()
		_ = closeWakeFD(readFD, writeFD)
		return nil, err
	}
	l.wakeChannel.interest = EventRead
	l.wakeChannel.registered = true
	return l, nil
}

// SetLogger overrides the loop's diagnostic logger.
func (l *EventLoop) SetLogger(logger Logger) { l.logger = logger }

// IsInLoopThread reports whether the calling goroutine is the one running
// Loop.
func (l *EventLoop) IsInLoopThread() bool {
	return l.goroutineSet && l.goroutineID == currentGoroutineID()
}

// AssertInLoopThread panics if the calling goroutine is not the loop's
// owner, per spec.md §4.3's "fatal if violated" contract.
func (l *EventLoop) AssertInLoopThread() {
	if !l.IsInLoopThread() {
		l.logger.Errorf("loop affinity violation: expected goroutine %d, got %d", l.goroutineID, currentGoroutineID())
		panic(ErrWrongThread)
	}
}

// Loop is the only way to enter the reactor; it blocks until Quit is
// called. Calling it more than once, or concurrently, is a programmer
// error.
func (l *EventLoop) Loop() error {
	if !l.state.TryTransition(StateAwake, StateRunning) {
		return ErrLoopAlreadyRunning
	}
	l.goroutineID = currentGoroutineID()
	l.goroutineSet = true
	defer func() {
		l.state.Store(StateTerminated)
		_ = l.poller.UnregisterFD(l.wakeReadFD)
		_ = l.poller.Close()
		_ = closeWakeFD(l.wakeReadFD, l.wakeWriteFD)
	}()

	for {
		select {
		case <-l.quit:
			return nil
		default:
		}

		timeout := l.nextPollTimeout()
		l.state.Store(StateSleeping)
		if _, err := l.poller.PollIO(timeout); err != nil {
			l.logger.Errorf("poll error: %v", err)
		}
		l.state.Store(StateRunning)

		now := time.Now()
		l.timers.expireTimers(now)

		l.mu.Lock()
		l.handling = true
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		for _, t := range batch {
			l.safeExecute(t)
		}

		l.mu.Lock()
		l.handling = false
		l.mu.Unlock()
	}
}

func (l *EventLoop) nextPollTimeout() int {
	when, ok := l.timers.nextDeadline()
	if !ok {
		return int(maxPollTimeout / time.Millisecond)
	}
	d := time.Until(when)
	if d <= 0 {
		return 0
	}
	if d > maxPollTimeout {
		d = maxPollTimeout
	}
	return int(d / time.Millisecond)
}

func (l *EventLoop) safeExecute(t Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorf("recovered panic in loop task: %v", r)
		}
	}()
	t()
}

// RunInLoop executes task inline if called from the owning goroutine,
// otherwise enqueues it and wakes the loop, per spec.md §4.3.
func (l *EventLoop) RunInLoop(task Task) {
	if l.IsInLoopThread() {
		l.safeExecute(task)
		return
	}
	l.QueueInLoop(task)
}

// QueueInLoop always enqueues task, waking the loop if necessary to avoid
// starving a task queued by a task currently running ("already handling
// pending tasks" rule from spec.md §4.3).
func (l *EventLoop) QueueInLoop(task Task) {
	l.mu.Lock()
	l.pending = append(l.pending, task)
	needsWake := !l.IsInLoopThread() || l.handling
	l.mu.Unlock()
	if needsWake {
		l.Wakeup()
	}
}

// Wakeup writes one byte to the wakeup descriptor to interrupt a blocked
// poll wait.
func (l *EventLoop) Wakeup() {
	if err := writeWakeFD(l.wakeWriteFD); err != nil {
		l.logger.Errorf("wakeup write failed: %v", err)
	}
}

// Quit stops the loop after its current iteration. Safe to call from any
// goroutine.
func (l *EventLoop) Quit() {
	select {
	case <-l.quit:
	default:
		close(l.quit)
	}
	l.Wakeup()
}

// updateChannel registers, modifies, or removes ch's poller registration
// based on its interest mask, per spec.md §4.1's Poller contract. Must be
// called from the owning loop thread.
func (l *EventLoop) updateChannel(ch *Channel) {
	l.AssertInLoopThread()
	switch {
	case !ch.registered && !ch.IsNoneEvent():
		if err := l.poller.RegisterFD(ch.fd, ch.interest, ch.HandleEvents); err != nil {
			l.logger.Errorf("register fd %d failed: %v", ch.fd, err)
			return
		}
		ch.registered = true
	case ch.registered && !ch.IsNoneEvent():
		if err := l.poller.ModifyFD(ch.fd, ch.interest); err != nil {
			l.logger.Errorf("modify fd %d failed: %v", ch.fd, err)
		}
	case ch.registered && ch.IsNoneEvent():
		if err := l.poller.UnregisterFD(ch.fd); err != nil {
			l.logger.Errorf("unregister fd %d failed: %v", ch.fd, err)
		}
		ch.registered = false
	}
}

// RemoveChannel unregisters ch unconditionally. Must be called from the
// owning loop thread.
func (l *EventLoop) RemoveChannel(ch *Channel) {
	l.AssertInLoopThread()
	if ch.registered {
		_ = l.poller.UnregisterFD(ch.fd)
		ch.registered = false
	}
}

// RunAfter schedules fn to run once after delay, callable from any thread;
// the TimerQueue mutation itself always happens on the owning loop.
func (l *EventLoop) RunAfter(delay time.Duration, fn func()) TimerHandle {
	return l.scheduleTimer(delay, 0, fn)
}

// RunEvery schedules fn to run repeatedly every interval, starting after
// interval elapses.
func (l *EventLoop) RunEvery(interval time.Duration, fn func()) TimerHandle {
	return l.scheduleTimer(interval, interval, fn)
}

func (l *EventLoop) scheduleTimer(delay, interval time.Duration, fn func()) TimerHandle {
	when := time.Now().Add(delay)
	result := make(chan TimerHandle, 1)
	l.RunInLoop(func() {
		result <- l.timers.addTimer(when, interval, fn)
	})
	return <-result
}

// CancelTimer cancels a previously scheduled timer; safe from any thread.
func (l *EventLoop) CancelTimer(h TimerHandle) {
	l.RunInLoop(func() { l.timers.cancelTimer(h) })
}

func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGoroutineID(buf[:n])
}

// parseGoroutineID extracts the numeric id from the "goroutine N [...]"
// prefix runtime.Stack produces, the same trick the teacher's event loop
// uses to detect loop-thread affinity without a sentinel value stored in a
// goroutine-local (which Go has no public API for).
func parseGoroutineID(stack []byte) uint64 {
	const prefix = "goroutine "
	if len(stack) <= len(prefix) || string(stack[:len(prefix)]) != prefix {
		return 0
	}
	stack = stack[len(prefix):]
	var id uint64
	for _, c := range stack {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
