package proto

import (
	"context"
	"net"
	"sync"

	"github.com/SentimensRG/ctx"
	synctoolz "github.com/lthibault/toolz/pkg/sync"

	log "github.com/lthibault/log/pkg"
	qnet "github.com/lthibault/qnet/pkg"
)

// DefaultStrategy is a global dial strategy that allows dialers to share a
// global connection pool.
var DefaultStrategy DialStrategy = NewStreamCountStrategy()

// PipeDialer is the client end of a qnet Transport.
type PipeDialer interface {
	Dial(context.Context, net.Addr) (qnet.Conn, error)
}

// DialStrategy is responsible for dialing connections and opening streams.
// This is where connection/stream reuse is to be implemented.
type DialStrategy interface {
	GetConn(context.Context, PipeDialer, net.Addr) (qnet.Conn, error)
}

// A Client connects to a server
type Client struct {
	Dialer   PipeDialer
	Strategy DialStrategy
	Logger   log.Logger

	o sync.Once
}

func (c *Client) init() {
	if c.Strategy == nil {
		c.Strategy = DefaultStrategy
	}
	if c.Logger == nil {
		c.Logger = log.New(log.OptLevel(log.NullLevel))
	}
}

// Connect to the specified server
func (c *Client) Connect(cx context.Context, a net.Addr) (qnet.Stream, error) {
	c.o.Do(c.init)

	conn, err := c.Strategy.GetConn(cx, c.Dialer, a)
	if err != nil {
		return nil, err
	}

	return conn.OpenStream()
}

// StreamCountStrategy reuses one connection per address and automatically
// closes it when its stream count falls back to zero.
type StreamCountStrategy struct {
	mu sync.Mutex
	cs map[string]*ctrConn
}

// NewStreamCountStrategy ...
func NewStreamCountStrategy() *StreamCountStrategy {
	return &StreamCountStrategy{cs: make(map[string]*ctrConn)}
}

func (ds *StreamCountStrategy) gc(addr string) func() {
	return func() {
		ds.mu.Lock()
		delete(ds.cs, addr)
		ds.mu.Unlock()
	}
}

// GetConn returns an existing conn if one exists for the given address,
// else dials a new connection.
func (ds *StreamCountStrategy) GetConn(c context.Context, d PipeDialer, a net.Addr) (qnet.Conn, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if conn, ok := ds.cs[a.String()]; ok {
		return conn, nil
	}

	// slow path
	conn, err := d.Dial(c, a)
	if err != nil {
		return nil, err
	}

	rconn := &ctrConn{Conn: conn}
	ds.cs[a.String()] = rconn

	ctx.Defer(conn.Context(), ds.gc(a.String()))

	return rconn, nil
}

// ctrConn counts the streams open on a conn and closes it when the last
// one is released.
type ctrConn struct {
	mu sync.RWMutex
	synctoolz.Ctr
	qnet.Conn
}

func (c *ctrConn) gc() {
	c.mu.Lock()
	if c.Ctr.Decr() == 0 {
		c.Conn.Close()
	}
	c.mu.Unlock()
}

func (c *ctrConn) wrapStream(s qnet.Stream) qnet.Stream {
	return ctrStream{Stream: s, done: c.gc}
}

func (c *ctrConn) AcceptStream(cx context.Context) (s qnet.Stream, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if s, err = c.Conn.AcceptStream(cx); err == nil {
		c.Ctr.Incr()
		s = c.wrapStream(s)
	}

	return
}

func (c *ctrConn) OpenStream() (s qnet.Stream, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if s, err = c.Conn.OpenStream(); err == nil {
		c.Ctr.Incr()
		s = c.wrapStream(s)
	}

	return
}

type ctrStream struct {
	qnet.Stream
	done func()
}

func (s ctrStream) Close() error {
	defer s.done() // decr-ing before close might cause Close() to report errors
	return s.Stream.Close()
}
