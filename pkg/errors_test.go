package qnet

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	for _, tt := range []struct {
		err                Error
		timeout, temporary bool
	}{
		{ErrResourceExhausted, false, false},
		{ErrConnClosed, false, false},
		{ErrStreamClosed, false, false},
		{ErrPeerGone, false, false},
		{ErrBackpressure, false, true},
		{ErrAcceptTimeout, true, true},
		{ErrDeadlineExceeded, true, true},
	} {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.timeout, tt.err.Timeout())
			assert.Equal(t, tt.temporary, tt.err.Temporary())
		})
	}
}

func TestErrorCause(t *testing.T) {
	// sentinels survive wrapping at call sites
	err := errors.Wrap(ErrConnClosed, "accept")
	assert.Equal(t, ErrConnClosed, errors.Cause(err))
}
