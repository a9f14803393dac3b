package fake_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-tls/api"
	"github.com/momentics/hioload-tls/fake"
)

func TestTransportReadChunks(t *testing.T) {
	tr := fake.NewTransport()
	tr.AddRecvData([]byte("hello"))
	tr.AddRecvData([]byte("world"))

	buf := make([]byte, 16)
	n, err := tr.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	n, err = tr.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	_, err = tr.Read(buf, 0)
	assert.ErrorIs(t, err, api.ErrWouldBlock)

	tr.CloseRemote()
	_, err = tr.Read(buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTransportReadWaitsForData(t *testing.T) {
	tr := fake.NewTransport()
	go func() {
		time.Sleep(10 * time.Millisecond)
		tr.AddRecvData([]byte("late"))
	}()
	buf := make([]byte, 8)
	n, err := tr.Read(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", string(buf[:n]))
}

func TestTransportWriteControls(t *testing.T) {
	tr := fake.NewTransport()
	tr.SetWriteLimit(2)
	tr.BlockWrites(1)

	_, err := tr.Write([]byte("abc"))
	assert.ErrorIs(t, err, api.ErrWouldBlock)

	n, err := tr.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]byte{[]byte("ab")}, tr.GetSentData())

	boom := errors.New("boom")
	tr.SetSendError(boom)
	_, err = tr.Write([]byte("c"))
	assert.ErrorIs(t, err, boom)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.True(t, tr.Closed())
	assert.Equal(t, 2, tr.CloseCount())
}

func TestTransportHeldWriteReleasedByInterrupt(t *testing.T) {
	tr := fake.NewTransport()
	tr.HoldWrites()

	done := make(chan error, 1)
	go func() {
		_, err := tr.Write([]byte("stuck"))
		done <- err
	}()
	require.Eventually(t, func() bool { return tr.HeldWrites() == 1 }, time.Second, time.Millisecond)

	tr.Interrupt()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, api.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("held write not released")
	}
	assert.Equal(t, 1, tr.InterruptCount())
	assert.Equal(t, 0, tr.HeldWrites())
	assert.Empty(t, tr.GetSentData())
}
