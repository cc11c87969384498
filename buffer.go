package tcpreactor

import (
	"errors"

	"golang.org/x/sys/unix"
)

const (
	bufferPrependSize  = 8
	bufferInitialSize  = 1024
	bufferScatterExtra = 65536
)

var errBufferEOF = errors.New("tcpreactor: buffer has no more readable bytes")

// Buffer is a growable contiguous byte region with a cheap-prepend reserve,
// per spec.md's §3/§4.7 description: bytes in [readerIndex, writerIndex) are
// readable, the first readerIndex bytes are a reclaimable prepend area, and
// the region from writerIndex to capacity is writable.
type Buffer struct {
	buf    []byte
	reader int
	writer int
}

// NewBuffer returns an empty Buffer with the default reserve and capacity.
func NewBuffer() *Buffer {
	return &Buffer{
		buf:    make([]byte, bufferPrependSize+bufferInitialSize),
		reader: bufferPrependSize,
		writer: bufferPrependSize,
	}
}

func (b *Buffer) ReadableBytes() int  { return b.writer - b.reader }
func (b *Buffer) WritableBytes() int  { return len(b.buf) - b.writer }
func (b *Buffer) PrependableBytes() int { return b.reader }

// Peek returns the readable region without consuming it.
func (b *Buffer) Peek() []byte { return b.buf[b.reader:b.writer] }

// Retrieve consumes n bytes from the front of the readable region.
func (b *Buffer) Retrieve(n int) {
	if n >= b.ReadableBytes() {
		b.RetrieveAll()
		return
	}
	b.reader += n
}

// RetrieveAll resets the buffer to empty, reclaiming the whole region as
// prepend space.
func (b *Buffer) RetrieveAll() {
	b.reader = bufferPrependSize
	b.writer = bufferPrependSize
}

// RetrieveAsString consumes and returns the first n readable bytes.
func (b *Buffer) RetrieveAsString(n int) string {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	s := string(b.buf[b.reader : b.reader+n])
	b.Retrieve(n)
	return s
}

// RetrieveAllAsString consumes and returns the entire readable region.
func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

// Append appends data to the writable region, growing the buffer if needed.
func (b *Buffer) Append(data []byte) {
	b.ensureWritable(len(data))
	n := copy(b.buf[b.writer:], data)
	b.writer += n
}

// Prepend writes data immediately before the readable region, for a header
// that is cheaper to prepend than to re-copy the whole payload for.
func (b *Buffer) Prepend(data []byte) {
	if len(data) > b.reader {
		panic("tcpreactor: prepend exceeds reserved prependable space")
	}
	b.reader -= len(data)
	copy(b.buf[b.reader:], data)
}

// ensureWritable grows the buffer so WritableBytes() >= n, first trying to
// reclaim the prepend area (muduo's "cheap prepend" trick) before
// reallocating.
func (b *Buffer) ensureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	readable := b.ReadableBytes()
	if b.PrependableBytes()+b.WritableBytes() >= n+bufferPrependSize {
		copy(b.buf[bufferPrependSize:], b.buf[b.reader:b.writer])
		b.reader = bufferPrependSize
		b.writer = b.reader + readable
		return
	}
	newCap := len(b.buf)*2 + n
	newBuf := make([]byte, newCap)
	copy(newBuf[bufferPrependSize:], b.buf[b.reader:b.writer])
	b.buf = newBuf
	b.reader = bufferPrependSize
	b.writer = b.reader + readable
}

// ReadFD performs a scatter read: the socket contents land first in the
// buffer's existing writable region, then spill into a stack-local extent
// buffer so that a single syscall can read more than currently fits,
// without growing the buffer for every large message. Returns the number of
// bytes read, or a negative value paired with an error.
func (b *Buffer) ReadFD(fd int) (int, error) {
	var extra [bufferScatterExtra]byte
	writable := b.WritableBytes()
	iov := [2][]byte{
		b.buf[b.writer:],
		extra[:],
	}
	n, err := unix.Readv(fd, iov[:])
	if err != nil {
		return -1, err
	}
	if n <= writable {
		b.writer += n
	} else {
		b.writer = len(b.buf)
		b.Append(extra[:n-writable])
	}
	return n, nil
}
