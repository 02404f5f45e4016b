package generic

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/SentimensRG/ctx"
	qnet "github.com/lthibault/qnet/pkg"

	"github.com/hashicorp/yamux"
	"github.com/pkg/errors"
	uuid "github.com/satori/uuid"
)

type listener struct {
	serverMuxAdapter
	net.Listener
}

func (l listener) Accept(c context.Context) (qnet.Conn, error) {
	raw, err := l.Listener.Accept()
	if err != nil {
		return nil, errors.Wrap(err, "listener")
	}

	conn, err := l.AdaptServer(raw)
	if err != nil {
		raw.Close()
		return nil, errors.Wrap(err, "mux")
	}

	return conn, nil
}

type connection struct {
	*yamux.Session

	id string
	o  sync.Once
	ch chan acceptResult
}

type acceptResult struct {
	s   *yamux.Stream
	err error
}

func newConnection(sess *yamux.Session) *connection {
	return &connection{
		Session: sess,
		id:      uuid.NewV4().String(),
		ch:      make(chan acceptResult),
	}
}

func (c *connection) ID() string { return c.id }

func (c *connection) Context() context.Context {
	return ctx.AsContext(ctx.C(c.CloseChan()))
}

func (c *connection) OpenStream() (qnet.Stream, error) {
	s, err := c.Session.OpenStream()
	if err != nil {
		return nil, chkClosed(err)
	}

	return mkStream(c.Context(), s), nil
}

// AcceptStream pops the next inbound stream, honoring cx.  A stream
// surfaced after the caller gave up is not lost; the next call receives
// it.
func (c *connection) AcceptStream(cx context.Context) (qnet.Stream, error) {
	c.o.Do(func() { go c.pump() })

	select {
	case r := <-c.ch:
		if r.err != nil {
			return nil, chkClosed(r.err)
		}
		return mkStream(c.Context(), r.s), nil
	case <-cx.Done():
		if cx.Err() == context.DeadlineExceeded {
			return nil, qnet.ErrAcceptTimeout
		}
		return nil, cx.Err()
	case <-c.CloseChan():
		return nil, qnet.ErrConnClosed
	}
}

func (c *connection) pump() {
	for {
		s, err := c.Session.AcceptStream()

		select {
		case c.ch <- acceptResult{s: s, err: err}:
		case <-c.CloseChan():
			return
		}

		if err != nil {
			return
		}
	}
}

func chkClosed(err error) error {
	if err == yamux.ErrSessionShutdown || err == yamux.ErrRemoteGoAway {
		return qnet.ErrConnClosed
	}
	return err
}

type stream struct {
	c      context.Context
	cancel func()
	s      *yamux.Stream
}

func mkStream(c context.Context, s *yamux.Stream) (strm *stream) {
	strm = &stream{s: s}
	strm.c, strm.cancel = context.WithCancel(c)
	return
}

func (s *stream) StreamID() uint32         { return s.s.StreamID() }
func (s *stream) Context() context.Context { return s.c }

func (s *stream) State() qnet.StreamState {
	select {
	case <-s.c.Done():
		return qnet.StreamClosed
	default:
		return qnet.StreamOpen
	}
}

func (s *stream) Read(b []byte) (n int, err error) {
	if n, err = s.s.Read(b); err != nil {
		err = s.chkErr(err)
	}
	return
}

func (s *stream) Write(b []byte) (n int, err error) {
	if n, err = s.s.Write(b); err != nil {
		err = s.chkErr(err)
	}
	return
}

func (s *stream) SetDeadline(t time.Time) error {
	if err := s.s.SetDeadline(t); err != nil {
		return s.chkErr(err)
	}
	return nil
}

func (s *stream) SetReadDeadline(t time.Time) error {
	if err := s.s.SetReadDeadline(t); err != nil {
		return s.chkErr(err)
	}
	return nil
}

func (s *stream) SetWriteDeadline(t time.Time) error {
	if err := s.s.SetWriteDeadline(t); err != nil {
		return s.chkErr(err)
	}
	return nil
}

func (s *stream) chkErr(err error) error {
	if e, ok := err.(net.Error); ok && e.Temporary() {
		return err
	}

	s.cancel()
	return err
}

func (s *stream) Close() error {
	s.cancel()
	return s.s.Close()
}

// Transport adapts raw net.Conn byte pipes into qnet connections.  It is
// the bridge for callers that already hold both ends of a pipe (e.g.
// net.Pipe) and want streams multiplexed over it.
type Transport struct {
	MuxAdapter
	NetListener
	NetDialer
}

// Listen Generic
func (t Transport) Listen(c context.Context, a net.Addr) (qnet.Listener, error) {
	l, err := t.NetListener.Listen(c, a.Network(), a.String())
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}

	return listener{
		serverMuxAdapter: t.MuxAdapter,
		Listener:         l,
	}, nil
}

// Dial Generic
func (t Transport) Dial(c context.Context, a net.Addr) (qnet.Conn, error) {
	raw, err := t.NetDialer.DialContext(c, a.Network(), a.String())
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}

	return t.AdaptClient(raw)
}

// MuxConfig is a MuxAdapter that uses github.com/hashicorp/yamux
type MuxConfig struct{ *yamux.Config }

// AdaptServer is called by the listener
func (c MuxConfig) AdaptServer(conn net.Conn) (qnet.Conn, error) {
	sess, err := yamux.Server(conn, c.Config)
	if err != nil {
		return nil, errors.Wrap(err, "yamux")
	}
	return newConnection(sess), nil
}

// AdaptClient is called by the dialer
func (c MuxConfig) AdaptClient(conn net.Conn) (qnet.Conn, error) {
	sess, err := yamux.Client(conn, c.Config)
	if err != nil {
		return nil, errors.Wrap(err, "yamux")
	}
	return newConnection(sess), nil
}

// New Generic Transport
func New(opt ...Option) (t Transport) {
	OptMuxAdapter(MuxConfig{})(&t)
	for _, fn := range opt {
		fn(&t)
	}

	return t
}
