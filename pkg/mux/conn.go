package mux

import (
	"context"
	"sync"

	"github.com/SentimensRG/ctx"
	qnet "github.com/lthibault/qnet/pkg"
	uuid "github.com/satori/uuid"
)

// Conn is one endpoint of an in-process link.  It owns the streams it has
// opened or accepted, allocates their ids, and buffers the peer's
// stream-open requests until they are accepted.
//
// Conn is safe for concurrent use.  Operations on distinct streams of the
// same Conn may proceed in parallel.
type Conn struct {
	id  string
	cfg config

	queue *acceptQueue // owned:  the peer's opens land here
	peer  *acceptQueue // back-reference, inert once the peer closes

	cq chan struct{}

	openMu sync.Mutex
	nextID uint32

	mu      sync.Mutex
	closed  bool
	streams map[uint32]*stream
}

func newConn(first uint32, cfg config) *Conn {
	return &Conn{
		id:      uuid.NewV4().String(),
		cfg:     cfg,
		queue:   newAcceptQueue(cfg.backlog),
		cq:      make(chan struct{}),
		nextID:  first,
		streams: make(map[uint32]*stream),
	}
}

// Pair establishes an in-process link:  two connections whose accept
// queues are cross-wired, simulating a network path with zero real I/O.
// Anything the client opens is accepted by the server, and vice versa.
// Both connections start open with no streams.
func Pair(opt ...Option) (client, server *Conn) {
	var cfg config
	cfg.apply(opt)

	// Odd ids originate client-side, even ids server-side, so a
	// connection's registry never collides between the streams it opened
	// and the streams it accepted.
	client = newConn(1, cfg)
	server = newConn(2, cfg)
	client.peer = server.queue
	server.peer = client.queue
	return
}

// ID uniquely identifies the connection endpoint.
func (c *Conn) ID() string { return c.id }

// Context expires when the connection is closed.
func (c *Conn) Context() context.Context { return ctx.AsContext(ctx.C(c.cq)) }

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// OpenStream allocates the next stream id, constructs a fresh channel
// pair, and publishes the peer-visible ends on the peer's accept queue.
// Id allocation and delivery are atomic with respect to other opens, so
// the peer accepts streams in open order.
func (c *Conn) OpenStream() (qnet.Stream, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if c.isClosed() {
		return nil, qnet.ErrConnClosed
	}

	id := c.nextID
	in := NewByteChannel(c.cfg.window)  // peer -> local
	out := NewByteChannel(c.cfg.window) // local -> peer

	// The request carries the mirrored view of the channel pair.
	if err := c.peer.push(request{id: id, in: out, out: in}, !c.cfg.nonblocking, c.cq); err != nil {
		return nil, err
	}
	c.nextID += 2

	s, err := c.register(id, in, out)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// AcceptStream pops one pending request in FIFO order and materializes the
// local side of the pair.  It returns ErrAcceptTimeout when ctx carries a
// deadline that expires first, and ErrConnClosed once the connection is
// closed.  An already-expired context acts as an immediate poll.
func (c *Conn) AcceptStream(cx context.Context) (qnet.Stream, error) {
	r, err := c.queue.pop(cx)
	if err != nil {
		return nil, err
	}

	s, err := c.register(r.id, r.in, r.out)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (c *Conn) register(id uint32, in, out *ByteChannel) (*stream, error) {
	s := newStream(c.Context(), id, in, out, func() {
		c.mu.Lock()
		delete(c.streams, id)
		c.mu.Unlock()
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.kill()
		return nil, qnet.ErrConnClosed
	}
	c.streams[id] = s
	c.mu.Unlock()

	return s, nil
}

// NumStreams reports the number of live streams owned by the connection.
func (c *Conn) NumStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// Close the connection.  Blocked accepts wake with ErrConnClosed, closure
// cascades to every owned stream, and the peer's back-reference becomes
// inert:  its subsequent opens fail with ErrConnClosed rather than
// dangle.  Idempotent — closing twice is a no-op, never an error.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	streams := make([]*stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()

	close(c.cq)
	c.queue.close()

	for _, s := range streams {
		s.kill()
	}

	return nil
}
