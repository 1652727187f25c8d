package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", fmt.Errorf("read: %w", os.ErrDeadlineExceeded), ErrTimeout},
		{"ctx deadline", context.DeadlineExceeded, ErrTimeout},
		{"eof", fmt.Errorf("receive message 2: %w", io.EOF), ErrIO},
		{"closed", net.ErrClosed, ErrIO},
		{"canceled", context.Canceled, ErrIO},
		{"bad sig", errors.New("invalid signature"), ErrHandshakeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err)
			assert.ErrorIs(t, err, tt.want)
			var ne *NegotiationError
			require.ErrorAs(t, err, &ne)
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, Classify(nil))
}

func TestClassify_KeepsNegotiationError(t *testing.T) {
	orig := NewNegotiationError(KindTimeout, errors.New("x"))
	assert.Same(t, orig, Classify(orig))
}

func TestCheckExpected(t *testing.T) {
	a, err := identity.Derive(1)
	require.NoError(t, err)
	b, err := identity.Derive(2)
	require.NoError(t, err)

	assert.NoError(t, CheckExpected("", a.PeerID()))
	assert.NoError(t, CheckExpected(a.PeerID(), a.PeerID()))

	err = CheckExpected(a.PeerID(), b.PeerID())
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	var mismatch *PeerMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Contains(t, err.Error(), b.PeerID().String())
}

func TestWithHandshakeDeadline_Cancel(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := WithHandshakeDeadline(ctx, c1, time.Minute)
	defer done()

	errCh := make(chan error, 1)
	go func() {
		_, err := c1.Read(make([]byte, 1))
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, Classify(err), ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("read not interrupted by cancel")
	}
}
