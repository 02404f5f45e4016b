package qnet

import (
	"context"
	"net"
	"time"
)

// Transport is a means by which to connect to and listen for connections
// from other peers.
type Transport interface {
	Listen(context.Context, net.Addr) (Listener, error)
	Dial(context.Context, net.Addr) (Conn, error)
}

// Listener can listen for incoming connections
type Listener interface {
	Addr() net.Addr
	Close() error
	Accept(context.Context) (Conn, error)
}

// Conn represents a logical connection between two peers.  Streams are
// multiplexed onto connections.
type Conn interface {
	// ID uniquely identifies the connection endpoint.
	ID() string

	// Context expires when the connection is closed.
	Context() context.Context

	// OpenStream allocates a fresh stream and announces it to the peer.
	// The peer observes it through AcceptStream.
	OpenStream() (Stream, error)

	// AcceptStream pops exactly one pending stream, in the order the peer
	// opened them.  It blocks until a stream is pending, the context
	// expires, or the connection is closed, whichever comes first.
	AcceptStream(context.Context) (Stream, error)

	// Close the connection and all of its streams.  Idempotent.
	Close() error
}

// Stream is a bidirectional, ordered byte-pipe multiplexed onto a Conn.
// Bytes are delivered in write order with no message boundaries:  a single
// Write may be observed across several Reads, and vice versa.
type Stream interface {
	StreamID() uint32
	Context() context.Context
	State() StreamState
	Close() error
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	SetDeadline(time.Time) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

const (
	// StreamOpen streams pass bytes in both directions.
	StreamOpen StreamState = iota
	// StreamLocalClosed means this side has closed.  The peer may still
	// drain buffered bytes.
	StreamLocalClosed
	// StreamRemoteClosed means the peer has closed.  Reads drain whatever
	// the peer wrote, then report end-of-stream.
	StreamRemoteClosed
	// StreamClosed is terminal.
	StreamClosed
)

// StreamState tracks the lifecycle of a Stream
type StreamState uint8

func (s StreamState) String() string {
	switch s {
	case StreamOpen:
		return "stream open"
	case StreamLocalClosed:
		return "stream half-closed (local)"
	case StreamRemoteClosed:
		return "stream half-closed (remote)"
	case StreamClosed:
		return "stream closed"
	}

	panic("unreachable")
}
