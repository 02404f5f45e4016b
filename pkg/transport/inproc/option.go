package inproc

import "github.com/lthibault/qnet/pkg/mux"

// Option for Transport
type Option func(*Transport) (prev Option)

// OptNamespace sets the namespace for the Transport
func OptNamespace(ns *Namespace) Option {
	return func(t *Transport) (prev Option) {
		prev = OptNamespace(t.ns)
		t.ns = ns
		return
	}
}

// OptLink sets options on the connection pairs the Transport establishes,
// e.g. mux.OptWindow or mux.OptBacklog.
func OptLink(opt ...mux.Option) Option {
	return func(t *Transport) (prev Option) {
		prev = OptLink(t.opt...)
		t.opt = opt
		return
	}
}
