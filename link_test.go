package heapipc

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLinkRoundTrip(t *testing.T) {
	controller, renderer, err := LinkPair()
	require.NoError(t, err)
	defer controller.Close()
	defer renderer.Close()

	assert.Equal(t, RoleController, controller.Role())
	assert.Equal(t, RoleRenderer, renderer.Role())

	words := []uint32{0, 1, 63, 4096, ^uint32(0)}

	var g errgroup.Group
	g.Go(func() error {
		for range words {
			v, err := renderer.Recv()
			if err != nil {
				return err
			}
			if err := renderer.Send(v); err != nil {
				return err
			}
		}
		return nil
	})

	for _, w := range words {
		require.NoError(t, controller.Send(w))
		got, err := controller.Recv()
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
	require.NoError(t, g.Wait())

	sent, received := controller.Counts()
	assert.Equal(t, uint64(len(words)), sent)
	assert.Equal(t, uint64(len(words)), received)
}

func TestLinkShortRead(t *testing.T) {
	tests := []struct {
		name    string
		partial []byte
		cause   error
	}{
		{"closed at word boundary", nil, io.EOF},
		{"closed mid word", []byte{1, 2}, io.ErrUnexpectedEOF},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r, w, err := os.Pipe()
			require.NoError(t, err)
			link := NewLink(RoleController, r, w)
			defer r.Close()

			if test.partial != nil {
				_, err := w.Write(test.partial)
				require.NoError(t, err)
			}
			require.NoError(t, w.Close())

			_, err = link.Recv()
			assert.ErrorIs(t, err, ErrShortTransfer)
			assert.ErrorIs(t, err, ErrProtocolViolation)
			assert.ErrorIs(t, err, test.cause)
			assert.Equal(t, ErrCodeProtocolViolation, CodeOf(err))
		})
	}
}

func TestLinkSendToClosedPeer(t *testing.T) {
	controller, renderer, err := LinkPair()
	require.NoError(t, err)
	defer controller.Close()
	require.NoError(t, renderer.Close())

	err = controller.Send(7)
	assert.ErrorIs(t, err, ErrShortTransfer)
}
