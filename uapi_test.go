package corplink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// pipeDialer serves UAPI requests in memory.
type pipeDialer struct {
	respond func(req []string) string
	err     error

	requests [][]string
	lock     sync.Mutex
}

func (d *pipeDialer) DialUAPI(context.Context) (net.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}

	client, engine := net.Pipe()

	go d.serve(engine)

	return client, nil
}

func (d *pipeDialer) serve(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)

	var req []string

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}

		if line = strings.TrimSuffix(line, "\n"); line == "" {
			break
		}

		req = append(req, line)
	}

	d.lock.Lock()
	d.requests = append(d.requests, req)
	d.lock.Unlock()

	_, _ = conn.Write([]byte(d.respond(req)))
}

func testParams() TunnelParams {
	return TunnelParams{
		Address:         "10.10.0.2/32",
		Address6:        "fd10::2/128",
		PeerAddress:     "203.0.113.7:51820",
		MTU:             1400,
		PublicKey:       "hSDwCYkwp1R0i33ctD73Wg2/Og0mOBr066SpjqqbTmo=",
		PrivateKey:      "yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk=",
		PeerKey:         "xTIBA5rboUvnH4htodjb6e697QjLERt1NAB4mZqp8Dg=",
		Routes:          []string{"10.10.0.0/16", "10.20.0.1", "fd10::1"},
		DNS:             "10.10.0.53",
		Protocol:        ProtocolUDP,
		ProtocolVersion: "v2",
		APIHost:         "https://203.0.113.7:8443",
		issued:          true,
	}
}

func TestConfigRequest(t *testing.T) {
	req, err := configRequest(testParams())
	require.NoError(t, err)

	require.Equal(t, strings.Join([]string{
		"set=1",
		"private_key=c809f3e5317e9575c9b5ed78b638b7ce530dabe85ddab614220241801ddf0669",
		"replace_peers=true",
		"public_key=c53201039adba14be71f886da1d8dbe9eebded08cb111b75340078999aa9f038",
		"replace_allowed_ips=true",
		"endpoint=203.0.113.7:51820",
		"persistent_keepalive_interval=10",
		"allowed_ip=10.10.0.0/16",
		"allowed_ip=10.20.0.1/32",
		"allowed_ip=fd10::1/128",
		"address=10.10.0.2/32",
		"address=fd10::2/128",
		"mtu=1400",
		"up=true",
		"route=10.10.0.0/16",
		"route=10.20.0.1/32",
		"route=fd10::1/128",
		"",
		"",
	}, "\n"), string(req))
}

func TestConfigRequest_InvalidKey(t *testing.T) {
	params := testParams()
	params.PeerKey = "not base64!"

	_, err := configRequest(params)
	require.Error(t, err)
}

func TestWithDefaultMask(t *testing.T) {
	require.Equal(t, "10.0.0.1/32", withDefaultMask("10.0.0.1"))
	require.Equal(t, "10.0.0.0/8", withDefaultMask("10.0.0.0/8"))
	require.Equal(t, "fd00::1/128", withDefaultMask("fd00::1"))
	require.Equal(t, "fd00::/64", withDefaultMask("fd00::/64"))
}

func TestConfigure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dialer := &pipeDialer{respond: func([]string) string { return "errno=0\n\n" }}

	require.NoError(t, NewUAPIClient(dialer).Configure(context.Background(), testParams()))

	want, err := configRequest(testParams())
	require.NoError(t, err)

	require.Len(t, dialer.requests, 1)
	require.Equal(t, strings.TrimSuffix(string(want), "\n\n"), strings.Join(dialer.requests[0], "\n"))
}

func TestConfigure_Errno(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dialer := &pipeDialer{respond: func([]string) string { return "errno=22\n\n" }}

	err := NewUAPIClient(dialer).Configure(context.Background(), testParams())

	var protoErr *TunnelProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, "errno=22", protoErr.Response)
}

func TestConfigure_NotIssued(t *testing.T) {
	dialer := &pipeDialer{respond: func([]string) string { return "errno=0\n\n" }}

	params := testParams()
	params.issued = false

	require.Error(t, NewUAPIClient(dialer).Configure(context.Background(), params))
	require.Empty(t, dialer.requests)
}

func TestConfigure_DialFailure(t *testing.T) {
	dialer := &pipeDialer{err: errors.New("no such socket")}

	err := NewUAPIClient(dialer).Configure(context.Background(), testParams())

	var dialErr *dialError
	require.ErrorAs(t, err, &dialErr)
}

func handshakeResponse(sec int64) func([]string) string {
	return func(req []string) string {
		if len(req) == 0 || req[0] != "get=1" {
			return "errno=1\n\n"
		}

		return fmt.Sprintf("private_key=00\npublic_key=00\nlast_handshake_time_sec=%d\nlast_handshake_time_nsec=0\nerrno=0\n\n", sec)
	}
}

func TestWatchHealth_Stale(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dialer := &pipeDialer{respond: handshakeResponse(time.Now().Add(-time.Hour).Unix())}

	err := NewUAPIClient(dialer).WithInterval(10 * time.Millisecond).WatchHealth(context.Background())
	require.ErrorIs(t, err, ErrHandshakeTimeout)
	require.Len(t, dialer.requests, 1)
}

func TestWatchHealth_Healthy(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	now := time.Now()

	dialer := &pipeDialer{respond: handshakeResponse(now.Unix())}

	uapi := NewUAPIClient(dialer).WithInterval(10 * time.Millisecond)
	uapi.now = func() time.Time { return now }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, uapi.WatchHealth(ctx), context.DeadlineExceeded)
	require.NotEmpty(t, dialer.requests)
}

func TestWatchHealth_NoHandshakeYet(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dialer := &pipeDialer{respond: handshakeResponse(0)}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, NewUAPIClient(dialer).WithInterval(10*time.Millisecond).WatchHealth(ctx), context.DeadlineExceeded)
}

func TestWatchHealth_DialFailure(t *testing.T) {
	dialer := &pipeDialer{err: errors.New("engine is gone")}

	err := NewUAPIClient(dialer).WithInterval(10 * time.Millisecond).WatchHealth(context.Background())

	var dialErr *dialError
	require.ErrorAs(t, err, &dialErr)
}

func TestUnixDialer(t *testing.T) {
	dir, err := os.MkdirTemp("", "uapi")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "corplink.sock")

	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		_, _ = conn.Write([]byte("errno=0\n\n"))
	}()

	dialer := &UnixDialer{Path: path, Attempts: 3, Backoff: time.Millisecond}

	conn, err := dialer.DialUAPI(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	res, err := readResponse(bufio.NewReader(conn))
	require.NoError(t, err)
	require.Equal(t, []string{"errno=0"}, res)
}

func TestUnixDialer_Missing(t *testing.T) {
	dialer := &UnixDialer{Path: filepath.Join(t.TempDir(), "missing.sock"), Attempts: 2, Backoff: time.Millisecond}

	_, err := dialer.DialUAPI(context.Background())
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = dialer.DialUAPI(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewUnixDialer(t *testing.T) {
	require.Equal(t, "/var/run/wireguard/corplink.sock", NewUnixDialer("corplink").Path)
}
