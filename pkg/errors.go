package qnet

// Error is a failure of a qnet operation.  It mirrors the standard library's
// net.Error so that callers can test for timeouts and retryability without
// depending on concrete error values.
type Error interface {
	error
	Timeout() bool   // Is the error a timeout?
	Temporary() bool // Is the error temporary?
}

type opError struct {
	msg                string
	timeout, temporary bool
}

func (e *opError) Error() string   { return e.msg }
func (e *opError) Timeout() bool   { return e.timeout }
func (e *opError) Temporary() bool { return e.temporary }

var (
	// ErrResourceExhausted indicates an allocation failure while
	// establishing a link, stream, or handle.
	ErrResourceExhausted Error = &opError{msg: "resource exhausted"}

	// ErrConnClosed indicates an operation on a closed connection, or on
	// a connection whose peer has been closed.
	ErrConnClosed Error = &opError{msg: "connection closed"}

	// ErrStreamClosed indicates an operation on a stream whose relevant
	// local direction has been closed.
	ErrStreamClosed Error = &opError{msg: "stream closed"}

	// ErrPeerGone indicates a write whose reader has gone away.  Bytes
	// already buffered were not observed by the peer.
	ErrPeerGone Error = &opError{msg: "peer gone"}

	// ErrBackpressure indicates the peer's accept backlog is full and the
	// connection was configured not to block the opener.
	ErrBackpressure Error = &opError{msg: "accept backlog full", temporary: true}

	// ErrAcceptTimeout indicates AcceptStream's wait elapsed with nothing
	// pending.
	ErrAcceptTimeout Error = &opError{msg: "accept timed out", timeout: true, temporary: true}

	// ErrDeadlineExceeded indicates an expired read or write deadline.
	ErrDeadlineExceeded Error = &opError{msg: "i/o deadline exceeded", timeout: true, temporary: true}
)
