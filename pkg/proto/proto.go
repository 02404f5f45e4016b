package proto

import (
	"errors"

	qnet "github.com/lthibault/qnet/pkg"
)

var (
	// ErrServerClosed indicates that the server is no longer accepting
	// connections.
	ErrServerClosed = errors.New("server closed")
)

// Handler responds to an incoming stream
type Handler interface {
	ServeStream(qnet.Stream)
}

// HandlerFunc is a type-adapter to allow the use of ordinary functions as
// stream handlers.
type HandlerFunc func(qnet.Stream)

// ServeStream calls f(s)
func (f HandlerFunc) ServeStream(s qnet.Stream) { f(s) }
