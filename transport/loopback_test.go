package transport

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopback_RecvWouldBlockWhenEmpty(t *testing.T) {
	lb := NewLoopback()
	fd, _ := lb.Pair()

	buf := make([]byte, 16)
	n, err := lb.Recv(fd, buf)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrAgain)
}

func TestLoopback_PeerToFD(t *testing.T) {
	lb := NewLoopback()
	fd, peer := lb.Pair()

	_, err := peer.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := lb.Recv(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestLoopback_FDToPeer(t *testing.T) {
	lb := NewLoopback()
	fd, peer := lb.Pair()

	n, err := lb.Send(fd, []byte("response"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	buf := make([]byte, 16)
	n, err = peer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "response", string(buf[:n]))
}

func TestLoopback_PeerCloseYieldsEOFAfterDrain(t *testing.T) {
	lb := NewLoopback()
	fd, peer := lb.Pair()

	_, err := peer.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, peer.Close())

	buf := make([]byte, 16)
	n, err := lb.Recv(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(buf[:n]))

	_, err = lb.Recv(fd, buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLoopback_FDCloseUnblocksPeer(t *testing.T) {
	lb := NewLoopback()
	fd, peer := lb.Pair()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := peer.Read(buf)
		done <- err
	}()

	require.NoError(t, lb.Close(fd))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("peer read did not observe close")
	}
}

func TestLoopback_SendBackpressure(t *testing.T) {
	lb := NewLoopback()
	fd, _ := lb.Pair()

	chunk := make([]byte, loopbackCapacity)
	n, err := lb.Send(fd, chunk)
	require.NoError(t, err)
	assert.Equal(t, loopbackCapacity, n)

	_, err = lb.Send(fd, []byte{1})
	assert.ErrorIs(t, err, ErrAgain)
}

func TestLoopback_UnknownDescriptor(t *testing.T) {
	lb := NewLoopback()

	_, err := lb.Recv(99, make([]byte, 1))
	assert.ErrorIs(t, err, ErrBadDescriptor)
	_, err = lb.Send(99, []byte{1})
	assert.ErrorIs(t, err, ErrBadDescriptor)
	assert.ErrorIs(t, lb.Close(99), ErrBadDescriptor)
}

func TestLoopback_DoubleClose(t *testing.T) {
	lb := NewLoopback()
	fd, _ := lb.Pair()

	require.NoError(t, lb.Close(fd))
	assert.ErrorIs(t, lb.Close(fd), ErrBadDescriptor)
}
