package server_test

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-tls/adapters"
	"github.com/momentics/hioload-tls/api"
	"github.com/momentics/hioload-tls/internal/certgen"
	"github.com/momentics/hioload-tls/lowlevel/server"
)

var loopback = api.Endpoint{Address: "127.0.0.1", Port: 0}

func testConfig() *server.Config {
	cfg := server.DefaultConfig()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.RetryInterval = 5 * time.Millisecond
	cfg.HandshakeTimeout = 2 * time.Second
	return cfg
}

func openServer(t *testing.T, cfg *server.Config, id api.Identity, opts ...server.Option) *server.Server {
	t.Helper()
	srv := server.NewServer(cfg, opts...)
	require.NoError(t, srv.Open(loopback, id))
	t.Cleanup(srv.Close)
	return srv
}

func writeIdentity(t *testing.T) api.Identity {
	t.Helper()
	key, cert, err := certgen.WriteTemp(t.TempDir())
	require.NoError(t, err)
	return api.Identity{KeyFile: key, CertFile: cert}
}

func echoOnce(t *testing.T, conn net.Conn, msg string) string {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	_, err := conn.Write([]byte(msg))
	require.NoError(t, err)
	got := make([]byte, len(msg))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	return string(got)
}

// assertPeerClosed expects EOF or a reset, never a read timeout.
func assertPeerClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	for {
		_, err := conn.Read(buf)
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok {
			assert.False(t, ne.Timeout(), "peer did not close the connection")
		}
		return
	}
}

func TestOpenCloseLifecycle(t *testing.T) {
	srv := server.NewServer(testConfig())
	assert.False(t, srv.IsOpen())
	srv.Close()

	require.NoError(t, srv.Open(loopback, api.Identity{}))
	assert.True(t, srv.IsOpen())
	require.NotNil(t, srv.Addr())
	assert.ErrorIs(t, srv.Open(loopback, api.Identity{}), api.ErrAlreadyOpen)

	srv.Close()
	assert.False(t, srv.IsOpen())
	assert.Nil(t, srv.Addr())
	srv.Close()
	assert.False(t, srv.IsOpen())

	// A closed server can be opened again.
	require.NoError(t, srv.Open(loopback, api.Identity{}))
	assert.True(t, srv.IsOpen())
	srv.Close()
	assert.False(t, srv.IsOpen())
}

func TestConcurrentClose(t *testing.T) {
	srv := server.NewServer(testConfig())
	require.NoError(t, srv.Open(loopback, api.Identity{}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.Close()
			assert.False(t, srv.IsOpen())
		}()
	}
	wg.Wait()
}

func TestOpenBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	srv := server.NewServer(testConfig())
	err = srv.Open(api.Endpoint{Address: "127.0.0.1", Port: uint16(port)}, api.Identity{})
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeSetup, api.CodeOf(err))
	assert.ErrorIs(t, err, syscall.EADDRINUSE)
	assert.False(t, srv.IsOpen())
	srv.Close()
}

func TestOpenBadIdentity(t *testing.T) {
	srv := server.NewServer(testConfig())
	dir := t.TempDir()
	err := srv.Open(loopback, api.Identity{
		KeyFile:  filepath.Join(dir, "missing-key.pem"),
		CertFile: filepath.Join(dir, "missing-cert.pem"),
	})
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeSetup, api.CodeOf(err))
	assert.False(t, srv.IsOpen())
	assert.Nil(t, srv.Addr())
}

func TestPlainEcho(t *testing.T) {
	srv := openServer(t, testConfig(), api.Identity{})
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "hello", echoOnce(t, conn, "hello"))
	assert.Equal(t, "again", echoOnce(t, conn, "again"))

	stats := srv.GetControl().Stats()
	assert.Equal(t, int64(1), stats["server.accepted"])
	assert.Equal(t, false, srv.GetControl().GetConfig()["server.tls"])
}

func TestTLSEcho(t *testing.T) {
	id := writeIdentity(t)
	srv := openServer(t, testConfig(), id)

	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "secure hello", echoOnce(t, conn, "secure hello"))
	assert.Equal(t, true, srv.GetControl().GetConfig()["server.tls"])
}

func TestLargeMessageEcho(t *testing.T) {
	srv := openServer(t, testConfig(), writeIdentity(t))
	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	defer conn.Close()

	payload := bytes.Repeat([]byte("0123456789"), 10000)
	assert.Equal(t, string(payload), echoOnce(t, conn, string(payload)))
}

func TestCustomHandlerAndMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.Handler = adapters.HandlerFunc(func(msg []byte) ([]byte, error) {
		return bytes.ToUpper(msg), nil
	})
	ctrl := adapters.NewControlAdapter()
	srv := openServer(t, cfg, api.Identity{},
		server.WithControl(ctrl),
		server.WithMiddleware(adapters.MetricsMiddleware(ctrl)))

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "SHOUT", echoOnce(t, conn, "shout"))
	assert.Same(t, ctrl, srv.GetControl())
	assert.Equal(t, int64(1), ctrl.Counter("handler.processed"))
}

func TestManyClientsShutdownIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownConcurrency = 4
	srv := server.NewServer(cfg)
	require.NoError(t, srv.Open(loopback, api.Identity{}))

	const clients = 20
	conns := make([]net.Conn, 0, clients)
	for i := 0; i < clients; i++ {
		c, err := net.Dial("tcp", srv.Addr().String())
		require.NoError(t, err)
		defer c.Close()
		assert.Equal(t, "ping"+strconv.Itoa(i), echoOnce(t, c, "ping"+strconv.Itoa(i)))
		conns = append(conns, c)
	}
	require.Eventually(t, func() bool { return srv.ActiveWorkers() == clients }, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	srv.Close()
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.False(t, srv.IsOpen())
	assert.Equal(t, 0, srv.ActiveWorkers())

	for _, c := range conns {
		assertPeerClosed(t, c)
	}
}

func TestFinishedWorkersAreReaped(t *testing.T) {
	srv := openServer(t, testConfig(), api.Identity{})
	for i := 0; i < 3; i++ {
		c, err := net.Dial("tcp", srv.Addr().String())
		require.NoError(t, err)
		assert.Equal(t, "x", echoOnce(t, c, "x"))
		require.NoError(t, c.Close())
	}
	require.Eventually(t, func() bool {
		stats := srv.GetControl().Stats()
		return srv.ActiveWorkers() == 0 && stats["debug.server.workers.registered"] == int64(0)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestMaxConnections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	srv := openServer(t, cfg, api.Identity{})

	first, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer first.Close()
	assert.Equal(t, "one", echoOnce(t, first, "one"))

	second, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer second.Close()
	assertPeerClosed(t, second)

	require.Eventually(t, func() bool {
		return srv.GetControl().Stats()["server.rejected"] == int64(1)
	}, time.Second, 10*time.Millisecond)
}

func TestHandshakeFailureKeepsServing(t *testing.T) {
	srv := openServer(t, testConfig(), writeIdentity(t))

	plain, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer plain.Close()
	_, err = plain.Write([]byte("this is not a tls record\r\n\r\n"))
	require.NoError(t, err)
	assertPeerClosed(t, plain)
	require.Eventually(t, func() bool {
		v, _ := srv.GetControl().Stats()["server.handshake_failures"].(int64)
		return v >= 1
	}, time.Second, 10*time.Millisecond)

	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "still here", echoOnce(t, conn, "still here"))
}

func TestCloseAbortsPendingHandshake(t *testing.T) {
	cfg := testConfig()
	cfg.HandshakeTimeout = 30 * time.Second
	srv := server.NewServer(cfg)
	require.NoError(t, srv.Open(loopback, writeIdentity(t)))

	silent, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer silent.Close()
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	srv.Close()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, srv.IsOpen())
}

func TestTLSShutdownWithStalledReader(t *testing.T) {
	cfg := testConfig()
	// Far beyond the shutdown bound below, so only Close can free the worker.
	cfg.WriteTimeout = 30 * time.Second
	srv := server.NewServer(cfg)
	require.NoError(t, srv.Open(loopback, writeIdentity(t)))

	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.ActiveWorkers() == 1 }, time.Second, 10*time.Millisecond)

	// Flood without ever reading the echo until both directions back up.
	chunk := bytes.Repeat([]byte("f"), 64<<10)
	go func() {
		for {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if _, err := conn.Write(chunk); err != nil {
				return
			}
		}
	}()
	time.Sleep(time.Second)

	closed := make(chan struct{})
	start := time.Now()
	go func() {
		srv.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked behind a worker writing to a stalled peer")
	}
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.False(t, srv.IsOpen())
	assert.Equal(t, 0, srv.ActiveWorkers())
}

func TestReloadHookMayCallServer(t *testing.T) {
	srv := server.NewServer(testConfig())
	seen := make(chan net.Addr, 1)
	srv.GetControl().OnReload(func() {
		select {
		case seen <- srv.Addr():
		default:
		}
	})

	opened := make(chan error, 1)
	go func() { opened <- srv.Open(loopback, api.Identity{}) }()
	select {
	case err := <-opened:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Open deadlocked in a reload hook")
	}
	t.Cleanup(srv.Close)

	select {
	case addr := <-seen:
		require.NotNil(t, addr)
		assert.Equal(t, srv.Addr().String(), addr.String())
	default:
		t.Fatal("reload hook did not run during Open")
	}
	assert.Equal(t, srv.Addr().String(), srv.GetControl().GetConfig()["server.listen_addr"])
}

func TestDefaultWriteTimeoutIsBounded(t *testing.T) {
	srv := openServer(t, server.DefaultConfig(), api.Identity{})
	assert.Equal(t, "10s", srv.GetControl().GetConfig()["server.write_timeout"])

	cfg := testConfig()
	cfg.WriteTimeout = -1
	unbounded := openServer(t, cfg, api.Identity{})
	assert.Equal(t, "0s", unbounded.GetControl().GetConfig()["server.write_timeout"])
}

func leafSerial(addr string) string {
	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		return ""
	}
	defer conn.Close()
	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return ""
	}
	return certs[0].SerialNumber.String()
}

func TestIdentityHotReload(t *testing.T) {
	id := writeIdentity(t)
	cfg := testConfig()
	cfg.WatchIdentity = true
	cfg.ReloadDelay = 20 * time.Millisecond
	srv := openServer(t, cfg, id)

	before := leafSerial(srv.Addr().String())
	require.NotEmpty(t, before)

	reloaded := make(chan struct{}, 1)
	srv.GetControl().OnReload(func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	pair, err := certgen.Generate(certgen.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, pair.Write(id.KeyFile, id.CertFile))

	block, _ := pem.Decode(pair.CertPEM)
	require.NotNil(t, block)
	want, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return leafSerial(srv.Addr().String()) == want.SerialNumber.String()
	}, 5*time.Second, 50*time.Millisecond)
	assert.NotEqual(t, before, want.SerialNumber.String())

	select {
	case <-reloaded:
	case <-time.After(time.Second):
		t.Fatal("reload hook not called")
	}
	reloads, _ := srv.GetControl().Stats()["tls.identity_reloads"].(int64)
	assert.GreaterOrEqual(t, reloads, int64(1))
}
