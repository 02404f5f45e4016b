package mux

type config struct {
	window      int
	backlog     int
	nonblocking bool
}

func (c *config) apply(opt []Option) {
	for _, o := range opt {
		o(c)
	}
}

// Option for an in-process link
type Option func(*config) (prev Option)

// OptWindow sets the buffer capacity of each stream direction.
// Nonpositive values select DefaultWindow.
func OptWindow(n int) Option {
	return func(c *config) (prev Option) {
		prev = OptWindow(c.window)
		c.window = n
		return
	}
}

// OptBacklog bounds the number of unaccepted stream-open requests each
// connection buffers for its peer.  Nonpositive values select
// DefaultBacklog.
func OptBacklog(n int) Option {
	return func(c *config) (prev Option) {
		prev = OptBacklog(c.backlog)
		c.backlog = n
		return
	}
}

// OptNonBlockingOpen makes OpenStream fail fast with ErrBackpressure when
// the peer's backlog is full, instead of blocking the opener until the
// peer accepts.
func OptNonBlockingOpen(nb bool) Option {
	return func(c *config) (prev Option) {
		prev = OptNonBlockingOpen(c.nonblocking)
		c.nonblocking = nb
		return
	}
}
