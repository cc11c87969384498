package tcpreactor

// EventLoopThreadPool hands out worker loops in round-robin order, per
// spec.md §4.11. With zero worker threads every call to GetNextLoop returns
// the base loop, so a TcpServer degrades to single-threaded operation
// without special-casing its accept path.
type EventLoopThreadPool struct {
	baseLoop *EventLoop
	threads  []*EventLoopThread
	loops    []*EventLoop
	next     int

	threadInit ThreadInitCallback
}

// NewEventLoopThreadPool creates a pool bound to baseLoop, which always
// remains the acceptor's loop.
func NewEventLoopThreadPool(baseLoop *EventLoop) *EventLoopThreadPool {
	return &EventLoopThreadPool{baseLoop: baseLoop}
}

func (p *EventLoopThreadPool) SetThreadInitCallback(cb ThreadInitCallback) { p.threadInit = cb }

// Start spawns numThreads worker loops. Must be called from the base loop,
// before the base loop starts accepting connections, per spec.md §9 Open
// Question (a)'s resolution: the acceptor always stays on the base loop and
// only hands accepted descriptors off to workers.
func (p *EventLoopThreadPool) Start(numThreads int) error {
	if p.threadInit != nil {
		p.threadInit(0, p.baseLoop)
	}
	for i := 0; i < numThreads; i++ {
		thread := NewEventLoopThread(i+1, p.threadInit)
		loop, err := thread.Start()
		if err != nil {
			return wrapErr("thread pool start", err)
		}
		p.threads = append(p.threads, thread)
		p.loops = append(p.loops, loop)
	}
	return nil
}

// GetNextLoop returns the next worker loop in round-robin order, or the
// base loop if the pool has no workers. Every Nth call since pool creation
// sees each worker exactly once per full cycle, giving the ⌊k/N⌋/⌈k/N⌉
// balance spec.md §8 requires.
func (p *EventLoopThreadPool) GetNextLoop() *EventLoop {
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	loop := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return loop
}

// Loops returns a snapshot of the pool's worker loops, excluding the base
// loop.
func (p *EventLoopThreadPool) Loops() []*EventLoop {
	out := make([]*EventLoop, len(p.loops))
	copy(out, p.loops)
	return out
}

// GetAllLoops returns the base loop followed by every worker loop, per
// spec.md §4.11's getAllLoops.
func (p *EventLoopThreadPool) GetAllLoops() []*EventLoop {
	out := make([]*EventLoop, 0, len(p.loops)+1)
	out = append(out, p.baseLoop)
	out = append(out, p.loops...)
	return out
}

// Stop quits every worker loop and waits for its goroutine to exit.
func (p *EventLoopThreadPool) Stop() {
	for _, t := range p.threads {
		t.Stop()
	}
}
