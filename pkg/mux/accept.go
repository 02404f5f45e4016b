package mux

import (
	"context"
	"sync"

	qnet "github.com/lthibault/qnet/pkg"
)

// DefaultBacklog bounds the number of stream-open requests a connection
// buffers on behalf of its peer before applying backpressure.
const DefaultBacklog = 256

// request is a pending stream-open.  The channel ends are named from the
// acceptor's point of view and are fully constructed before the request is
// ever published, so an acceptor can never observe a half-initialized pair.
type request struct {
	id      uint32
	in, out *ByteChannel
}

// acceptQueue is the ordered backlog of stream-open requests awaiting an
// AcceptStream call.  A single mutex orders push against pop, which keeps
// delivery FIFO with respect to the peer's OpenStream calls.
type acceptQueue struct {
	mu      sync.Mutex
	pending []request
	limit   int
	closed  bool

	cq       chan struct{}
	readable chan struct{}
	writable chan struct{}
}

func newAcceptQueue(limit int) *acceptQueue {
	if limit <= 0 {
		limit = DefaultBacklog
	}

	return &acceptQueue{
		limit:    limit,
		cq:       make(chan struct{}),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

// push publishes a stream-open request.  When the queue is full it either
// blocks the opener until space frees (default) or fails fast with
// ErrBackpressure.  abort is the opener's own close signal, so a blocked
// opener never outlives its connection.
func (q *acceptQueue) push(r request, block bool, abort <-chan struct{}) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return qnet.ErrConnClosed
		}

		if len(q.pending) < q.limit {
			q.pending = append(q.pending, r)
			q.mu.Unlock()
			asyncNotify(q.readable)
			return nil
		}
		q.mu.Unlock()

		if !block {
			return qnet.ErrBackpressure
		}

		select {
		case <-q.writable:
		case <-q.cq:
		case <-abort:
			return qnet.ErrConnClosed
		}
	}
}

// pop removes exactly one request in FIFO order.  A pending request is
// returned even when ctx has already expired, which gives an expired (or
// zero-timeout) context poll semantics.
func (q *acceptQueue) pop(ctx context.Context) (request, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			r := q.pending[0]
			q.pending = q.pending[1:]
			more := len(q.pending) > 0
			q.mu.Unlock()

			asyncNotify(q.writable)
			if more {
				asyncNotify(q.readable)
			}
			return r, nil
		}

		closed := q.closed
		q.mu.Unlock()

		if closed {
			return request{}, qnet.ErrConnClosed
		}

		select {
		case <-q.readable:
		case <-q.cq:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return request{}, qnet.ErrAcceptTimeout
			}
			return request{}, ctx.Err()
		}
	}
}

// close wakes blocked pushers and poppers and tears down any requests that
// were never accepted, so their openers observe closure instead of
// hanging.  Idempotent.
func (q *acceptQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	close(q.cq)

	for _, r := range pending {
		r.out.CloseWrite()
		r.in.CloseRead()
	}
}
