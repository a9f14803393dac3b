package transport_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-tls/api"
	"github.com/momentics/hioload-tls/fake"
	"github.com/momentics/hioload-tls/internal/certgen"
	"github.com/momentics/hioload-tls/internal/transport"
	"github.com/momentics/hioload-tls/tlsengine"
)

func loopback(t *testing.T) (local, peer net.Conn) {
	t.Helper()
	ln, err := transport.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()
	local, err = transport.Dial(context.Background(), ln.Addr().String(), time.Second)
	require.NoError(t, err)
	peer = <-accepted
	require.NotNil(t, peer)
	require.NoError(t, transport.Tune(peer))
	t.Cleanup(func() {
		local.Close()
		peer.Close()
	})
	return local, peer
}

func TestPlainTriState(t *testing.T) {
	local, peer := loopback(t)
	tr := transport.NewPlain(local)
	assert.False(t, tr.Secure())
	assert.NotNil(t, tr.RemoteAddr())

	buf := make([]byte, 64)
	_, err := tr.Read(buf, 0)
	assert.ErrorIs(t, err, api.ErrWouldBlock)

	start := time.Now()
	_, err = tr.Read(buf, 30*time.Millisecond)
	assert.ErrorIs(t, err, api.ErrWouldBlock)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	_, err = peer.Write([]byte("abc"))
	require.NoError(t, err)
	n, err := tr.Read(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	n, err = tr.Write([]byte("reply"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	got := make([]byte, 5)
	_, err = io.ReadFull(peer, got)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(got))

	require.NoError(t, peer.Close())
	_, err = tr.Read(buf, time.Second)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.True(t, tr.Closed())
	_, err = tr.Read(buf, 0)
	assert.ErrorIs(t, err, api.ErrClosed)
	_, err = tr.Write([]byte("x"))
	assert.ErrorIs(t, err, api.ErrClosed)
}

func TestPlainCloseUnblocksRead(t *testing.T) {
	local, _ := loopback(t)
	tr := transport.NewPlain(local)

	done := make(chan error, 1)
	go func() {
		_, err := tr.Read(make([]byte, 8), 5*time.Second)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, local.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, api.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not return after close")
	}
}

func TestPlainDeadlinePath(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	tr := transport.NewPlain(a)
	defer tr.Close()

	_, err := tr.Read(make([]byte, 8), 0)
	assert.ErrorIs(t, err, api.ErrWouldBlock)

	go func() { _, _ = b.Write([]byte("hi")) }()
	buf := make([]byte, 8)
	n, err := tr.Read(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))

	assert.NoError(t, transport.Tune(a))
}

func TestWriteFullChunksAndRetries(t *testing.T) {
	tr := fake.NewTransport()
	tr.SetWriteLimit(3)
	tr.BlockWrites(2)

	n, err := transport.WriteFull(tr, []byte("abcdefgh"), time.Millisecond, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "abcdefgh", string(tr.Sent()))
	assert.Len(t, tr.GetSentData(), 3)
}

func TestWriteFullStopsOnError(t *testing.T) {
	tr := fake.NewTransport()
	boom := errors.New("reset")
	tr.SetSendError(boom)
	n, err := transport.WriteFull(tr, []byte("abc"), time.Millisecond, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, n)
}

func TestWriteFullStopsWhenInactive(t *testing.T) {
	tr := fake.NewTransport()
	tr.BlockWrites(1000)
	calls := 0
	active := func() bool {
		calls++
		return calls < 3
	}
	_, err := transport.WriteFull(tr, []byte("abc"), time.Millisecond, active)
	assert.ErrorIs(t, err, api.ErrClosed)
}

func TestInterruptReachesOnlyInterrupters(t *testing.T) {
	tr := fake.NewTransport()
	transport.Interrupt(tr)
	assert.Equal(t, 1, tr.InterruptCount())

	local, _ := loopback(t)
	plain := transport.NewPlain(local)
	_, ok := api.Transport(plain).(transport.Interrupter)
	assert.False(t, ok, "plain writes are already bounded")
	transport.Interrupt(plain)
	assert.False(t, plain.Closed())
}

func TestSecureTransport(t *testing.T) {
	key, cert, err := certgen.WriteTemp(t.TempDir())
	require.NoError(t, err)
	srv, err := tlsengine.NewContext(api.RoleServer)
	require.NoError(t, err)
	require.NoError(t, srv.ConfigureIdentity(key, cert))
	cli, err := tlsengine.NewContext(api.RoleClient, tlsengine.WithInsecureSkipVerify(true))
	require.NoError(t, err)

	local, peer := loopback(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan *tlsengine.Session, 1)
	go func() {
		s, err := srv.Accept(ctx, peer)
		if err != nil {
			close(accepted)
			return
		}
		accepted <- s
	}()
	cs, err := cli.Connect(ctx, local)
	require.NoError(t, err)
	ss := <-accepted
	require.NotNil(t, ss)

	client := transport.NewSecure(cs)
	server := transport.NewSecure(ss)
	assert.True(t, server.Secure())
	assert.Same(t, ss, server.Session())
	var _ transport.Interrupter = server

	_, err = transport.WriteFull(client, []byte("secret"), time.Millisecond, nil)
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := server.Read(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(buf[:n]))

	require.NoError(t, client.Close())
	assert.True(t, cs.IsShutdown())
	_, err = server.Read(buf, time.Second)
	assert.ErrorIs(t, err, io.EOF)
	_ = server.Close()
	_ = server.Close()
	_, err = server.Read(buf, 0)
	assert.ErrorIs(t, err, api.ErrClosed)
}
