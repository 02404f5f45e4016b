package proto

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/SentimensRG/ctx"
	"github.com/jpillora/backoff"
	log "github.com/lthibault/log/pkg"
	qnet "github.com/lthibault/qnet/pkg"
	"golang.org/x/sync/errgroup"
)

// Server is a generic server that handles incoming streams
type Server struct {
	Handler
	Backoff backoff.Backoff
	Logger  log.Logger

	init sync.Once
	mu   sync.Mutex
	cq   chan struct{}
	ls   *listenerSet
	cs   connSet
}

func (s *Server) setup() {
	s.cq = make(chan struct{})
	s.ls = &listenerSet{ls: make(map[*qnet.Listener]struct{}), mu: &s.mu}
	s.cs.cs = make(map[io.Closer]struct{})
	if s.Logger == nil {
		s.Logger = log.New(log.OptLevel(log.NullLevel))
	}
}

// Serve streams.  Serve always returns a non-nil error and closes l.
func (s *Server) Serve(l qnet.Listener) error {
	s.init.Do(s.setup)

	l = &closeOnceListener{Listener: l}
	defer l.Close()

	if !s.ls.Add(&l) {
		return ErrServerClosed
	}
	defer s.ls.Del(&l)

	c := ctx.AsContext(ctx.C(s.cq))

	for {
		conn, e := l.Accept(c)
		if e != nil {
			select {
			case <-s.cq:
				return ErrServerClosed
			default:
			}

			if ne, ok := e.(net.Error); ok && ne.Temporary() {
				s.Logger.WithError(e).
					WithField("addr", l.Addr()).
					WithField("retry", s.Backoff.ForAttempt(s.Backoff.Attempt())).
					Debug("failed to accept connection")
				time.Sleep(s.Backoff.Duration())
				continue
			}
			return e
		}

		go s.serveConn(c, conn)
	}
}

func (s *Server) serveConn(c context.Context, conn qnet.Conn) {
	s.cs.Add(conn)
	defer s.cs.Del(conn)
	defer conn.Close()

	b := backoff.Backoff{Max: time.Minute, Jitter: true}

	for {
		stream, err := conn.AcceptStream(c)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				s.Logger.WithError(err).
					WithField("conn", conn.ID()).
					WithField("retry", b.ForAttempt(b.Attempt())).
					Debug("failed to accept stream")
				time.Sleep(b.Duration())
				continue
			}
			return
		}

		go s.serveStream(stream)
	}
}

func (s *Server) serveStream(stream qnet.Stream) {
	s.cs.Add(stream)
	defer s.cs.Del(stream)
	s.ServeStream(stream)
}

// Close immediately, terminating all active qnet.Listeners and any
// connections.  For graceful shutdown, use Shutdown.
func (s *Server) Close() error {
	s.init.Do(s.setup)

	select {
	case <-s.cq:
		return ErrServerClosed
	default:
		close(s.cq)
		return s.cs.CloseAll()
	}
}

// Shutdown gracefully shuts down the server without interrupting any
// active connections.
func (s *Server) Shutdown(c context.Context) error {
	s.init.Do(s.setup)

	var g errgroup.Group
	g.Go(s.ls.CloseAll)
	g.Go(func() error {
		ticker := time.NewTicker(time.Millisecond * 500)
		defer ticker.Stop()

		for {
			select {
			case <-c.Done():
				return c.Err()
			case <-ticker.C:
				if s.cs.quiescent() {
					return nil
				}
			}
		}
	})
	return g.Wait()
}

type closeOnceListener struct {
	sync.Once
	qnet.Listener
	err error
}

func (l *closeOnceListener) Close() error {
	l.Do(func() { l.err = l.Listener.Close() })
	return l.err
}

type listenerSet struct {
	mu     sync.Locker
	ls     map[*qnet.Listener]struct{}
	closed bool
}

func (s *listenerSet) Add(l *qnet.Listener) (active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.ls[l] = struct{}{}
		active = true
	}

	return
}

func (s *listenerSet) Del(l *qnet.Listener) {
	s.mu.Lock()
	delete(s.ls, l)
	s.mu.Unlock()
}

func (s *listenerSet) CloseAll() error {
	s.mu.Lock()

	s.closed = true

	var g errgroup.Group
	for l := range s.ls {
		g.Go((*l).Close)
	}

	s.mu.Unlock()
	return g.Wait()
}

type connSet struct {
	mu sync.Mutex
	cs map[io.Closer]struct{}
}

func (c *connSet) quiescent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cs) == 0
}

func (c *connSet) Add(cl io.Closer) {
	c.mu.Lock()
	c.cs[cl] = struct{}{}
	c.mu.Unlock()
}

func (c *connSet) Del(cl io.Closer) {
	c.mu.Lock()
	delete(c.cs, cl)
	c.mu.Unlock()
}

func (c *connSet) CloseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var g errgroup.Group
	for conn := range c.cs {
		g.Go(conn.Close)
	}
	return g.Wait()
}
