package mux

import (
	"bytes"
	"io"
	"sync"
	"time"

	qnet "github.com/lthibault/qnet/pkg"
)

// DefaultWindow is the buffer capacity of a ByteChannel unless overridden
// by OptWindow.
const DefaultWindow = 64 * 1024

// ByteChannel is a bounded, single-direction, ordered byte buffer.  Reads
// block while the buffer is empty and writes block while it is full.  Each
// side closes independently:  buffered bytes survive CloseWrite and remain
// drainable, whereas CloseRead discards nothing but fails the writer fast.
//
// One goroutine is expected to read and one to write at a time.  Close may
// race freely with either.
type ByteChannel struct {
	cap int

	mu          sync.Mutex
	buf         bytes.Buffer
	writeClosed bool
	readClosed  bool

	readDeadline  time.Time
	writeDeadline time.Time

	readable chan struct{}
	writable chan struct{}
}

// NewByteChannel with the given buffer capacity.  Nonpositive capacities
// fall back to DefaultWindow.
func NewByteChannel(capacity int) *ByteChannel {
	if capacity <= 0 {
		capacity = DefaultWindow
	}

	return &ByteChannel{
		cap:      capacity,
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func asyncNotify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Read up to len(b) bytes, blocking until at least one byte is available.
// Returns io.EOF once the writer has closed and the buffer is drained.
func (c *ByteChannel) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	for {
		c.mu.Lock()
		if c.buf.Len() > 0 {
			n, _ := c.buf.Read(b)
			c.mu.Unlock()
			asyncNotify(c.writable)
			return n, nil
		}

		if c.writeClosed {
			c.mu.Unlock()
			return 0, io.EOF
		}

		if c.readClosed {
			c.mu.Unlock()
			return 0, qnet.ErrStreamClosed
		}

		deadline := c.readDeadline
		c.mu.Unlock()

		if err := c.wait(c.readable, deadline); err != nil {
			return 0, err
		}
	}
}

// Write appends b to the buffer, blocking while it is at capacity.  Returns
// the number of bytes accepted, which is len(b) unless an error occurs.
func (c *ByteChannel) Write(b []byte) (int, error) {
	var n int
	for n < len(b) {
		c.mu.Lock()
		if c.writeClosed {
			c.mu.Unlock()
			return n, qnet.ErrStreamClosed
		}

		if c.readClosed {
			c.mu.Unlock()
			return n, qnet.ErrPeerGone
		}

		if space := c.cap - c.buf.Len(); space > 0 {
			k := len(b) - n
			if k > space {
				k = space
			}
			c.buf.Write(b[n : n+k])
			n += k
			c.mu.Unlock()
			asyncNotify(c.readable)
			continue
		}

		deadline := c.writeDeadline
		c.mu.Unlock()

		if err := c.wait(c.writable, deadline); err != nil {
			return n, err
		}
	}

	return n, nil
}

// wait for a notification, bounded by the deadline if one is set.
func (c *ByteChannel) wait(notify <-chan struct{}, deadline time.Time) error {
	if deadline.IsZero() {
		<-notify
		return nil
	}

	d := time.Until(deadline)
	if d <= 0 {
		return qnet.ErrDeadlineExceeded
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-notify:
		return nil
	case <-t.C:
		return qnet.ErrDeadlineExceeded
	}
}

// CloseWrite marks the writer side closed.  The reader drains whatever is
// buffered, then observes io.EOF.  Idempotent.
func (c *ByteChannel) CloseWrite() {
	c.mu.Lock()
	c.writeClosed = true
	c.mu.Unlock()

	asyncNotify(c.readable)
	asyncNotify(c.writable)
}

// CloseRead marks the reader side closed.  Subsequent writes fail with
// ErrPeerGone.  Idempotent.
func (c *ByteChannel) CloseRead() {
	c.mu.Lock()
	c.readClosed = true
	c.mu.Unlock()

	asyncNotify(c.readable)
	asyncNotify(c.writable)
}

// WriteClosed reports whether the writer side has closed.
func (c *ByteChannel) WriteClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeClosed
}

// ReadClosed reports whether the reader side has closed.
func (c *ByteChannel) ReadClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readClosed
}

// Len reports the number of buffered bytes.
func (c *ByteChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Len()
}

// SetReadDeadline bounds subsequent (and in-flight) reads.  The zero value
// means block forever.
func (c *ByteChannel) SetReadDeadline(t time.Time) {
	c.mu.Lock()
	c.readDeadline = t
	c.mu.Unlock()
	asyncNotify(c.readable)
}

// SetWriteDeadline bounds subsequent (and in-flight) writes.  The zero
// value means block forever.
func (c *ByteChannel) SetWriteDeadline(t time.Time) {
	c.mu.Lock()
	c.writeDeadline = t
	c.mu.Unlock()
	asyncNotify(c.writable)
}
