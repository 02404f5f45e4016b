package inproc

import (
	"sync"

	radix "github.com/armon/go-radix"
	"github.com/pkg/errors"
)

var defaultNamespace = NewNamespace()

// Namespace is an isolated in-process address space.  Transports sharing
// a Namespace can reach each other's listeners; transports in distinct
// Namespaces cannot.
type Namespace struct {
	sync.RWMutex
	r *radix.Tree
}

// NewNamespace returns an empty address space.
func NewNamespace() *Namespace { return &Namespace{r: radix.New()} }

func (n *Namespace) getListener(path string) (l *listener, ok bool) {
	n.RLock()
	defer n.RUnlock()

	var v interface{}
	if v, ok = n.r.Get(path); ok {
		l = v.(*listener)
	}

	return
}

func (n *Namespace) bind(a Addr) (*listener, error) {
	n.Lock()
	defer n.Unlock()

	if _, ok := n.r.Get(a.String()); ok {
		return nil, errors.New("address already bound")
	}

	l := newListener(a, func() { n.unbind(a.String()) })
	n.r.Insert(a.String(), l)
	return l, nil
}

func (n *Namespace) unbind(path string) {
	n.Lock()
	n.r.Delete(path)
	n.Unlock()
}
