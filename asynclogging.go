package tcpreactor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	asyncLogBufferSize  = 64 * 1024
	asyncLogMaxPending  = 25
	defaultLogRollSize  = 500 * 1024 * 1024
	defaultFlushInterval = 3 * time.Second
)

// asyncLogBuffer is a fixed-capacity byte region, per spec.md §3's
// AsyncLogging buffers description.
type asyncLogBuffer struct {
	data []byte
}

func newAsyncLogBuffer() *asyncLogBuffer {
	return &asyncLogBuffer{data: make([]byte, 0, asyncLogBufferSize)}
}

func (b *asyncLogBuffer) len() int  { return len(b.data) }
func (b *asyncLogBuffer) reset()    { b.data = b.data[:0] }
func (b *asyncLogBuffer) append(p []byte) {
	b.data = append(b.data, p...)
}

// AsyncLogging is the front-end/back-end double-buffer log writer from
// spec.md §4.12, grounded on original_source/src/AsyncLogging.cpp. It
// implements io.Writer so structured-logging front ends (logiface, zap) can
// target it directly.
type AsyncLogging struct {
	basename      string
	rollSize      int64
	flushInterval time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	current *asyncLogBuffer
	spare   *asyncLogBuffer
	pending []*asyncLogBuffer

	running atomic.Int32
	done    chan struct{}
}

// NewAsyncLogging constructs a writer that rolls basename+".log" when it
// reaches rollSize bytes, flushing at least every flushInterval.
func NewAsyncLogging(basename string, rollSize int64, flushInterval time.Duration) *AsyncLogging {
	if rollSize <= 0 {
		rollSize = defaultLogRollSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	a := &AsyncLogging{
		basename:      basename,
		rollSize:      rollSize,
		flushInterval: flushInterval,
		current:       newAsyncLogBuffer(),
		spare:         newAsyncLogBuffer(),
		done:          make(chan struct{}),
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Start launches the background writer goroutine.
func (a *AsyncLogging) Start() {
	a.running.Store(1)
	go a.threadFunc()
}

// Stop signals the background writer to drain and exit, then waits for it.
func (a *AsyncLogging) Stop() {
	a.running.Store(0)
	a.mu.Lock()
	a.cond.Signal()
	a.mu.Unlock()
	<-a.done
}

// Write implements io.Writer: it is the append() operation from
// spec.md §4.12 — copy into current if there's room, otherwise rotate
// buffers under the lock and signal the background writer.
func (a *AsyncLogging) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current.len()+len(p) < asyncLogBufferSize {
		a.current.append(p)
		return len(p), nil
	}

	a.pending = append(a.pending, a.current)
	if a.spare != nil {
		a.current = a.spare
		a.spare = nil
	} else {
		a.current = newAsyncLogBuffer()
	}
	a.current.append(p)
	a.cond.Signal()
	return len(p), nil
}

func (a *AsyncLogging) threadFunc() {
	defer close(a.done)

	newBuffer1 := newAsyncLogBuffer()
	newBuffer2 := newAsyncLogBuffer()

	logFile := logFileName(a.basename)

	for a.running.Load() == 1 {
		var toWrite []*asyncLogBuffer

		a.mu.Lock()
		if len(a.pending) == 0 && a.current.len() == 0 {
			waitWithTimeout(a.cond, a.flushInterval)
		}
		if a.current.len() > 0 {
			a.pending = append(a.pending, a.current)
			a.current = nil
		}
		if a.current == nil {
			if newBuffer1 == nil {
				if len(a.pending) > 0 {
					newBuffer1 = a.pending[len(a.pending)-1]
					a.pending = a.pending[:len(a.pending)-1]
					newBuffer1.reset()
				} else {
					newBuffer1 = newAsyncLogBuffer()
				}
			}
			a.current = newBuffer1
			newBuffer1 = nil
		}
		toWrite, a.pending = a.pending, nil
		if a.spare == nil {
			if newBuffer2 == nil {
				newBuffer2 = newAsyncLogBuffer()
			}
			a.spare = newBuffer2
			newBuffer2 = nil
		}
		a.mu.Unlock()

		if len(toWrite) == 0 {
			continue
		}

		if len(toWrite) > asyncLogMaxPending {
			fmt.Fprintf(os.Stderr, "tcpreactor: dropped log buffers at %s, %d larger buffers\n",
				a.basename, len(toWrite)-2)
			toWrite = toWrite[:2]
		}

		for _, buf := range toWrite {
			if fi, err := os.Stat(logFile); err == nil && fi.Size() >= a.rollSize {
				rollLogFile(a.basename, logFile)
				logFile = logFileName(a.basename)
			}
			if f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
				_, _ = f.Write(buf.data)
				_ = f.Close()
			}
		}

		if len(toWrite) > 2 {
			toWrite = toWrite[len(toWrite)-2:]
		}
		if newBuffer1 == nil && len(toWrite) > 0 {
			newBuffer1 = toWrite[len(toWrite)-1]
			toWrite = toWrite[:len(toWrite)-1]
			newBuffer1.reset()
		}
		if newBuffer2 == nil && len(toWrite) > 0 {
			newBuffer2 = toWrite[len(toWrite)-1]
			toWrite = toWrite[:len(toWrite)-1]
			newBuffer2.reset()
		}
	}

	a.mu.Lock()
	if a.current != nil && a.current.len() > 0 {
		a.pending = append(a.pending, a.current)
		a.current = nil
	}
	remaining := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(remaining) > 0 {
		if f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			for _, buf := range remaining {
				_, _ = f.Write(buf.data)
			}
			_ = f.Close()
		}
	}
}

// waitWithTimeout waits on cond (caller holds cond.L) until either Signal
// fires or timeout elapses, matching cond_.wait_for in AsyncLogging.cpp.
func waitWithTimeout(cond *sync.Cond, timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}

// logFileName returns basename with a ".log" suffix appended if it doesn't
// already have one.
func logFileName(basename string) string {
	if strings.HasSuffix(basename, ".log") {
		return basename
	}
	return basename + ".log"
}

// rollLogFile renames the active log file to
// "<basename>.<UTC-YYYYMMDD-HHMMSS>.log", disambiguated with ".N" if that
// name already exists, per spec.md §6 and
// original_source/src/AsyncLogging.cpp's rollFile().
func rollLogFile(basename, currentFile string) {
	stamp := time.Now().UTC().Format("20060102-150405")
	target := insertRollTimestamp(currentFile, stamp)

	final := target
	for n := 1; fileExists(final); n++ {
		final = strings.TrimSuffix(target, ".log") + "." + strconv.Itoa(n) + ".log"
	}

	if fileExists(currentFile) {
		_ = os.Rename(currentFile, final)
	}
}

func insertRollTimestamp(filename, stamp string) string {
	const suffix = ".log"
	if strings.HasSuffix(filename, suffix) {
		return strings.TrimSuffix(filename, suffix) + "." + stamp + suffix
	}
	return filename + "." + stamp + suffix
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
