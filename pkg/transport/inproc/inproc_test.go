package inproc

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	qnet "github.com/lthibault/qnet/pkg"
	"github.com/lthibault/qnet/pkg/mux"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/stretchr/testify/assert"
)

const (
	dialerSends    = "dialer"
	dialerSendSize = int64(len(dialerSends))

	listenerSends    = "listener"
	listenerSendSize = int64(len(listenerSends))
)

func listenTest(c context.Context, t *testing.T, wg *sync.WaitGroup, l qnet.Listener) {
	defer wg.Done()

	conn, err := l.Accept(c)
	assert.NoError(t, err)
	assert.NotNil(t, conn)
	defer func() { assert.NoError(t, conn.Close()) }()

	s, err := conn.OpenStream()
	assert.NoError(t, err)
	defer func() { assert.NoError(t, s.Close()) }()

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(s, bytes.NewBufferString(listenerSends))
		return errors.Wrap(err, "listener send")
	})

	g.Go(func() error {
		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, io.LimitReader(s, dialerSendSize)); err != nil {
			return errors.Wrap(err, "listener recv")
		}

		assert.Equal(t, dialerSends, buf.String())
		return nil
	})

	assert.NoError(t, g.Wait())
}

func dialTest(c context.Context, t *testing.T, wg *sync.WaitGroup, tp qnet.Transport, a Addr) {
	defer wg.Done()

	conn, err := tp.Dial(c, a)
	assert.NoError(t, err)
	assert.NotNil(t, conn)
	defer func() { assert.NoError(t, conn.Close()) }()

	s, err := conn.AcceptStream(c)
	assert.NoError(t, err)
	defer func() { assert.NoError(t, s.Close()) }()

	var g errgroup.Group

	g.Go(func() error {
		_, err := io.Copy(s, bytes.NewBufferString(dialerSends))
		return errors.Wrap(err, "dialer send")
	})

	g.Go(func() error {
		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, io.LimitReader(s, listenerSendSize)); err != nil {
			return errors.Wrap(err, "dialer recv")
		}

		assert.Equal(t, listenerSends, buf.String())
		return nil
	})

	assert.NoError(t, g.Wait())
}

func integrationTest(c context.Context, t *testing.T, tp qnet.Transport, addr Addr) {
	l, err := tp.Listen(c, addr)
	assert.NoError(t, err)
	assert.NotNil(t, l)
	defer func() { assert.NoError(t, l.Close()) }()

	var wg sync.WaitGroup
	wg.Add(2)
	go listenTest(c, t, &wg, l)
	go dialTest(c, t, &wg, tp, addr)
	wg.Wait()
}

func TestIntegration(t *testing.T) {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("Single", func(t *testing.T) {
		integrationTest(c, t, New(), "/test")
	})

	t.Run("PrivateNamespace", func(t *testing.T) {
		ns := NewNamespace()
		integrationTest(c, t, New(OptNamespace(ns)), "/test")
	})

	t.Run("LinkOptions", func(t *testing.T) {
		tp := New(OptLink(mux.OptWindow(16), mux.OptBacklog(4)))
		integrationTest(c, t, tp, "/opts")
	})
}

func TestTransport(t *testing.T) {
	c := context.Background()

	t.Run("InvalidNetwork", func(t *testing.T) {
		tp := New(OptNamespace(NewNamespace()))

		_, err := tp.Listen(c, Addr("x").as("tcp"))
		assert.Error(t, err)

		_, err = tp.Dial(c, Addr("x").as("tcp"))
		assert.Error(t, err)
	})

	t.Run("DialUnbound", func(t *testing.T) {
		tp := New(OptNamespace(NewNamespace()))

		_, err := tp.Dial(c, Addr("/nobody-home"))
		assert.Error(t, err)
	})

	t.Run("AddressCollision", func(t *testing.T) {
		tp := New(OptNamespace(NewNamespace()))

		l, err := tp.Listen(c, Addr("/bound"))
		assert.NoError(t, err)
		defer l.Close()

		_, err = tp.Listen(c, Addr("/bound"))
		assert.Error(t, err)
	})

	t.Run("RebindAfterClose", func(t *testing.T) {
		tp := New(OptNamespace(NewNamespace()))

		l, err := tp.Listen(c, Addr("/rebind"))
		assert.NoError(t, err)
		assert.NoError(t, l.Close())

		l, err = tp.Listen(c, Addr("/rebind"))
		assert.NoError(t, err)
		assert.NoError(t, l.Close())
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		a, b := New(OptNamespace(NewNamespace())), New(OptNamespace(NewNamespace()))

		l, err := a.Listen(c, Addr("/isolated"))
		assert.NoError(t, err)
		defer l.Close()

		_, err = b.Dial(c, Addr("/isolated"))
		assert.Error(t, err)
	})
}

// as rewrites the network name, for invalid-network tests.
func (a Addr) as(network string) fakeAddr { return fakeAddr{network: network, addr: string(a)} }

type fakeAddr struct{ network, addr string }

func (a fakeAddr) Network() string { return a.network }
func (a fakeAddr) String() string  { return a.addr }
