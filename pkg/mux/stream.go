package mux

import (
	"context"
	"io"
	"sync"
	"time"

	qnet "github.com/lthibault/qnet/pkg"
)

// stream pairs two ByteChannels into a bidirectional pipe.  Close is a
// half-close in the TCP sense:  it seals the outbound direction, and the
// peer may go on draining (and writing) until it closes in turn.
type stream struct {
	id  uint32
	in  *ByteChannel // peer writes, we read
	out *ByteChannel // we write, peer reads

	c      context.Context
	cancel context.CancelFunc

	release func()

	mu     sync.Mutex
	closed bool
	dead   bool
}

func newStream(c context.Context, id uint32, in, out *ByteChannel, release func()) *stream {
	s := &stream{id: id, in: in, out: out, release: release}
	s.c, s.cancel = context.WithCancel(c)
	return s
}

func (s *stream) StreamID() uint32         { return s.id }
func (s *stream) Context() context.Context { return s.c }

func (s *stream) Write(b []byte) (int, error) { return s.out.Write(b) }

func (s *stream) Read(b []byte) (n int, err error) {
	if n, err = s.in.Read(b); err == io.EOF {
		s.maybeRelease()
	}
	return
}

// State derives the lifecycle position from the two channel ends.  The
// remote side is considered closed once the peer has sealed its writer.
func (s *stream) State() qnet.StreamState {
	s.mu.Lock()
	dead, closed := s.dead, s.closed
	s.mu.Unlock()

	remote := s.in.WriteClosed()

	switch {
	case dead, closed && remote:
		return qnet.StreamClosed
	case closed:
		return qnet.StreamLocalClosed
	case remote:
		return qnet.StreamRemoteClosed
	}

	return qnet.StreamOpen
}

// Close seals the outbound direction.  Buffered bytes remain drainable by
// the peer, and the peer may keep writing until it closes in turn.  The
// stream stays registered with its connection until both directions have
// finished, so a reader still draining the reply after a half-close
// remains reachable by the connection's teardown cascade.  Idempotent:
// closing twice is a no-op.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.out.CloseWrite()
	s.cancel()
	s.maybeRelease()

	return nil
}

// maybeRelease deregisters the stream from its owning connection once it
// has reached its terminal state.  Safe to call repeatedly.
func (s *stream) maybeRelease() {
	s.mu.Lock()
	terminal := s.dead || (s.closed && s.in.WriteClosed())
	s.mu.Unlock()

	if terminal && s.release != nil {
		s.release()
	}
}

// kill tears the stream down in both directions.  Called when the owning
// connection cascades its own closure; afterwards the stream is inert and
// blocked readers and writers on either side wake promptly.
func (s *stream) kill() {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return
	}
	s.dead = true
	s.closed = true
	s.mu.Unlock()

	s.out.CloseWrite()
	s.in.CloseRead()
	s.cancel()

	if s.release != nil {
		s.release()
	}
}

func (s *stream) SetDeadline(t time.Time) error {
	s.in.SetReadDeadline(t)
	s.out.SetWriteDeadline(t)
	return nil
}

func (s *stream) SetReadDeadline(t time.Time) error {
	s.in.SetReadDeadline(t)
	return nil
}

func (s *stream) SetWriteDeadline(t time.Time) error {
	s.out.SetWriteDeadline(t)
	return nil
}
