package handle

import (
	"io"

	qnet "github.com/lthibault/qnet/pkg"
	"github.com/pkg/errors"
)

// Status is the plain-old-data return code a binding layer reports across
// the foreign-function boundary.  StatusOK is zero so that bindings can
// return it directly as a C-style success code.
type Status int

const (
	// StatusOK reports success.
	StatusOK Status = iota
	// StatusResourceExhausted reports an allocation failure.
	StatusResourceExhausted
	// StatusConnClosed reports an operation on a closed connection.
	StatusConnClosed
	// StatusStreamClosed reports an operation on a closed stream.
	StatusStreamClosed
	// StatusPeerGone reports a write whose reader has gone away.
	StatusPeerGone
	// StatusBackpressure reports a full accept backlog.
	StatusBackpressure
	// StatusTimeout reports an elapsed wait or deadline.
	StatusTimeout
	// StatusUnknown reports an error outside the core taxonomy.
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusResourceExhausted:
		return "resource exhausted"
	case StatusConnClosed:
		return "connection closed"
	case StatusStreamClosed:
		return "stream closed"
	case StatusPeerGone:
		return "peer gone"
	case StatusBackpressure:
		return "backpressure"
	case StatusTimeout:
		return "timeout"
	case StatusUnknown:
		return "unknown"
	}

	panic("unreachable")
}

// StatusOf flattens an error into its boundary return code.  Wrapped
// errors are unwrapped to their cause first, so call sites are free to
// annotate.  Timeouts and closures flatten to distinct codes here even
// when a particular ABI collapses them into one sentinel value.
func StatusOf(err error) Status {
	switch errors.Cause(err) {
	case nil:
		return StatusOK
	case qnet.ErrResourceExhausted:
		return StatusResourceExhausted
	case qnet.ErrConnClosed:
		return StatusConnClosed
	case qnet.ErrStreamClosed:
		return StatusStreamClosed
	case qnet.ErrPeerGone:
		return StatusPeerGone
	case qnet.ErrBackpressure:
		return StatusBackpressure
	case qnet.ErrAcceptTimeout, qnet.ErrDeadlineExceeded:
		return StatusTimeout
	}

	return StatusUnknown
}

// ReadResult flattens a read outcome into the signed count contract used
// at the boundary:  >0 bytes read, 0 end-of-stream, <0 failure.
func ReadResult(n int, err error) int {
	switch errors.Cause(err) {
	case nil:
		return n
	case io.EOF:
		return 0
	}

	return -int(StatusOf(err))
}
