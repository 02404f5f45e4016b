package inproc

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"

	qnet "github.com/lthibault/qnet/pkg"
)

type listener struct {
	o       sync.Once
	cq      chan struct{}
	ch      chan qnet.Conn
	a       Addr
	release func()
}

func newListener(a Addr, release func()) *listener {
	return &listener{
		a:       a,
		ch:      make(chan qnet.Conn),
		cq:      make(chan struct{}),
		release: release,
	}
}

func (l *listener) Addr() net.Addr { return l.a }

func (l *listener) Close() (err error) {
	err = errors.New("already closed")

	l.o.Do(func() {
		close(l.cq)
		close(l.ch)
		l.release()
		err = nil
	})

	return
}

func (l *listener) Accept(c context.Context) (qnet.Conn, error) {
	select {
	case conn, ok := <-l.ch:
		if !ok {
			return nil, errors.New("closed")
		}
		return conn, nil
	case <-c.Done():
		return nil, c.Err()
	}
}

// connect offers the remote end of a freshly established pair to the
// accept loop.  A send on a closed listener is refused, not a panic.
func (l *listener) connect(c context.Context, conn qnet.Conn) (err error) {
	defer func() {
		if recover() != nil {
			err = errors.New("connection refused")
		}
	}()

	select {
	case <-c.Done():
		err = c.Err()
	case <-l.cq:
		err = errors.New("connection refused")
	case l.ch <- conn:
	}

	return
}
