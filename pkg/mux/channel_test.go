package mux

import (
	"io"
	"testing"
	"time"

	qnet "github.com/lthibault/qnet/pkg"
	"github.com/stretchr/testify/assert"
)

func TestByteChannel(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		ch := NewByteChannel(64)

		n, err := ch.Write([]byte("hello"))
		assert.NoError(t, err)
		assert.Equal(t, 5, n)

		b := make([]byte, 32)
		n, err = ch.Read(b)
		assert.NoError(t, err)
		assert.Equal(t, "hello", string(b[:n]))
	})

	t.Run("SplitWrite", func(t *testing.T) {
		ch := NewByteChannel(64)

		_, err := ch.Write([]byte("0123456789"))
		assert.NoError(t, err)

		var got []byte
		b := make([]byte, 4)
		for len(got) < 10 {
			n, err := ch.Read(b)
			assert.NoError(t, err)
			assert.True(t, n > 0, "read must return a positive count when data exists")
			got = append(got, b[:n]...)
		}

		assert.Equal(t, "0123456789", string(got))
	})

	t.Run("CoalesceWrites", func(t *testing.T) {
		ch := NewByteChannel(64)

		_, err := ch.Write([]byte("foo"))
		assert.NoError(t, err)
		_, err = ch.Write([]byte("bar"))
		assert.NoError(t, err)

		b := make([]byte, 32)
		n, err := ch.Read(b)
		assert.NoError(t, err)
		assert.Equal(t, "foobar", string(b[:n]))
	})

	t.Run("EmptyRead", func(t *testing.T) {
		ch := NewByteChannel(64)

		n, err := ch.Read(nil)
		assert.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("DrainThenEOF", func(t *testing.T) {
		ch := NewByteChannel(64)

		_, err := ch.Write([]byte("tail"))
		assert.NoError(t, err)

		ch.CloseWrite()

		b := make([]byte, 32)
		n, err := ch.Read(b)
		assert.NoError(t, err)
		assert.Equal(t, "tail", string(b[:n]))

		_, err = ch.Read(b)
		assert.Equal(t, io.EOF, err)
	})

	t.Run("WriteAfterCloseWrite", func(t *testing.T) {
		ch := NewByteChannel(64)
		ch.CloseWrite()

		_, err := ch.Write([]byte("nope"))
		assert.Equal(t, qnet.ErrStreamClosed, err)
	})

	t.Run("WriteAfterCloseRead", func(t *testing.T) {
		ch := NewByteChannel(64)
		ch.CloseRead()

		_, err := ch.Write([]byte("nope"))
		assert.Equal(t, qnet.ErrPeerGone, err)
	})

	t.Run("ReadAfterCloseRead", func(t *testing.T) {
		ch := NewByteChannel(64)
		ch.CloseRead()

		_, err := ch.Read(make([]byte, 1))
		assert.Equal(t, qnet.ErrStreamClosed, err)
	})

	t.Run("CloseIdempotent", func(t *testing.T) {
		ch := NewByteChannel(64)
		ch.CloseWrite()
		ch.CloseWrite()
		ch.CloseRead()
		ch.CloseRead()

		assert.True(t, ch.WriteClosed())
		assert.True(t, ch.ReadClosed())
	})
}

func TestByteChannelBlocking(t *testing.T) {
	t.Run("WriterBlocksAtCapacity", func(t *testing.T) {
		ch := NewByteChannel(4)

		done := make(chan error, 1)
		go func() {
			_, err := ch.Write([]byte("0123456789abcdef"))
			done <- err
		}()

		var got []byte
		b := make([]byte, 3)
		for len(got) < 16 {
			n, err := ch.Read(b)
			if !assert.NoError(t, err) {
				t.FailNow()
			}
			got = append(got, b[:n]...)
		}

		assert.NoError(t, <-done)
		assert.Equal(t, "0123456789abcdef", string(got))
	})

	t.Run("ReaderWakesOnWrite", func(t *testing.T) {
		ch := NewByteChannel(64)

		done := make(chan string, 1)
		go func() {
			b := make([]byte, 32)
			n, _ := ch.Read(b)
			done <- string(b[:n])
		}()

		time.Sleep(time.Millisecond)
		_, err := ch.Write([]byte("wake"))
		assert.NoError(t, err)
		assert.Equal(t, "wake", <-done)
	})

	t.Run("ReaderWakesOnClose", func(t *testing.T) {
		ch := NewByteChannel(64)

		done := make(chan error, 1)
		go func() {
			_, err := ch.Read(make([]byte, 1))
			done <- err
		}()

		time.Sleep(time.Millisecond)
		ch.CloseWrite()

		select {
		case err := <-done:
			assert.Equal(t, io.EOF, err)
		case <-time.After(time.Second):
			t.Error("blocked reader did not observe closure")
		}
	})

	t.Run("WriterWakesOnClose", func(t *testing.T) {
		ch := NewByteChannel(1)

		_, err := ch.Write([]byte{0xff}) // fill
		assert.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, err := ch.Write([]byte{0xff})
			done <- err
		}()

		time.Sleep(time.Millisecond)
		ch.CloseRead()

		select {
		case err := <-done:
			assert.Equal(t, qnet.ErrPeerGone, err)
		case <-time.After(time.Second):
			t.Error("blocked writer did not observe closure")
		}
	})
}

func TestByteChannelDeadline(t *testing.T) {
	t.Run("ExpiredRead", func(t *testing.T) {
		ch := NewByteChannel(64)
		ch.SetReadDeadline(time.Now().Add(-time.Second))

		_, err := ch.Read(make([]byte, 1))
		assert.Equal(t, qnet.ErrDeadlineExceeded, err)
		assert.True(t, err.(qnet.Error).Timeout())
	})

	t.Run("ReadTimesOut", func(t *testing.T) {
		ch := NewByteChannel(64)
		ch.SetReadDeadline(time.Now().Add(10 * time.Millisecond))

		start := time.Now()
		_, err := ch.Read(make([]byte, 1))
		assert.Equal(t, qnet.ErrDeadlineExceeded, err)
		assert.True(t, time.Since(start) >= 10*time.Millisecond)
	})

	t.Run("WriteTimesOut", func(t *testing.T) {
		ch := NewByteChannel(1)
		_, err := ch.Write([]byte{0xff}) // fill
		assert.NoError(t, err)

		ch.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
		_, err = ch.Write([]byte{0xff})
		assert.Equal(t, qnet.ErrDeadlineExceeded, err)
	})

	t.Run("ClearedDeadline", func(t *testing.T) {
		ch := NewByteChannel(64)
		ch.SetReadDeadline(time.Now().Add(-time.Second))
		ch.SetReadDeadline(time.Time{})

		_, err := ch.Write([]byte("ok"))
		assert.NoError(t, err)

		b := make([]byte, 2)
		_, err = ch.Read(b)
		assert.NoError(t, err)
	})
}
