package inproc

import (
	"context"
	"net"

	"github.com/pkg/errors"

	qnet "github.com/lthibault/qnet/pkg"
	"github.com/lthibault/qnet/pkg/mux"
)

const network = "inproc"

// Addr of an in-process listener
type Addr string

// Network satisfies net.Addr
func (Addr) Network() string { return network }

func (a Addr) String() string { return string(a) }

// Transport bytes around the process.  Listeners bind addresses in a
// namespace; Dial establishes a connection to whatever is bound there.
// Each successful Dial hands the listener one end of a fresh mux.Pair and
// returns the other, so no real I/O ever happens.
type Transport struct {
	ns  *Namespace
	opt []mux.Option
}

// New in-process Transport
func New(opt ...Option) *Transport {
	t := &Transport{ns: defaultNamespace}
	for _, o := range opt {
		o(t)
	}
	return t
}

// Listen for incoming connections
func (t *Transport) Listen(c context.Context, a net.Addr) (qnet.Listener, error) {
	if a.Network() != network {
		return nil, errors.Errorf("invalid network %s", a.Network())
	}

	return t.ns.bind(Addr(a.String()))
}

// Dial establishes a connection to the listener bound at a.  The dialer's
// end opens streams that the listener's end accepts, and vice versa.
func (t *Transport) Dial(c context.Context, a net.Addr) (qnet.Conn, error) {
	if a.Network() != network {
		return nil, errors.Errorf("invalid network %s", a.Network())
	}

	l, ok := t.ns.getListener(a.String())
	if !ok {
		return nil, errors.New("connection refused")
	}

	local, remote := mux.Pair(t.opt...)
	if err := l.connect(c, remote); err != nil {
		local.Close()
		remote.Close()
		return nil, err
	}

	return local, nil
}
