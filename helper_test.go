package corplink_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	corplink "github.com/corplink-go/go-corplink"
	"github.com/corplink-go/go-corplink/server"
	"github.com/stretchr/testify/require"
)

type saved struct {
	state corplink.AuthState
	seed  string
}

type memoryStore struct {
	saves []saved
	lock  sync.Mutex
}

func (store *memoryStore) SaveAuth(state corplink.AuthState, seed string) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	store.saves = append(store.saves, saved{state: state, seed: seed})

	return nil
}

func (store *memoryStore) last() saved {
	store.lock.Lock()
	defer store.lock.Unlock()

	if len(store.saves) == 0 {
		return saved{}
	}

	return store.saves[len(store.saves)-1]
}

type fakeConsole struct {
	readLine   func() (string, error)
	readSecret func() (string, error)

	displayed []string
	lock      sync.Mutex
}

func (c *fakeConsole) ReadLine(context.Context) (string, error) {
	if c.readLine == nil {
		return "", fmt.Errorf("unexpected read")
	}

	return c.readLine()
}

func (c *fakeConsole) ReadSecret(context.Context) (string, error) {
	if c.readSecret == nil {
		return "", fmt.Errorf("unexpected secret read")
	}

	return c.readSecret()
}

func (c *fakeConsole) Display(msg string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.displayed = append(c.displayed, msg)
}

func testCreds(t *testing.T, username, password string) corplink.Credentials {
	t.Helper()

	return corplink.Credentials{
		Username:   username,
		Password:   password,
		DeviceID:   "4b3d9b0e7c8a2f1e5d6c7b8a9f0e1d2c",
		DeviceName: "DollarOS",
		PublicKey:  "hSDwCYkwp1R0i33ctD73Wg2/Og0mOBr066SpjqqbTmo=",
		PrivateKey: "yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk=",
	}
}

func newTestClient(t *testing.T, s *server.Server, creds corplink.Credentials, console corplink.Console, opts ...corplink.Option) (*corplink.Manager, *corplink.Client, *memoryStore) {
	t.Helper()

	m := corplink.New(append([]corplink.Option{
		corplink.WithServerURL(s.GetHostURL()),
		corplink.WithTransport(corplink.InsecureTransport()),
	}, opts...)...)
	t.Cleanup(m.Close)

	store := &memoryStore{}

	c, err := m.NewClient(creds, store, console)
	require.NoError(t, err)

	return m, c, store
}

// fakeEngine is an in-memory tunnel engine speaking UAPI.
type fakeEngine struct {
	handshake func() int64
	errno     int
	startErr  error

	// panicAfter makes every dial after the first n panic.
	panicAfter int
	dials      int

	configs []string
	started bool
	stopped bool
	lock    sync.Mutex
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{handshake: func() int64 { return time.Now().Unix() }}
}

func (e *fakeEngine) Start(context.Context, corplink.TunnelParams) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.startErr != nil {
		return e.startErr
	}

	e.started = true

	return nil
}

func (e *fakeEngine) Stop() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.stopped = true

	return nil
}

func (e *fakeEngine) isStarted() bool {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.started
}

func (e *fakeEngine) getConfigs() []string {
	e.lock.Lock()
	defer e.lock.Unlock()

	return append([]string{}, e.configs...)
}

func (e *fakeEngine) isStopped() bool {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.stopped
}

func (e *fakeEngine) DialUAPI(context.Context) (net.Conn, error) {
	e.lock.Lock()
	e.dials++
	shouldPanic := e.panicAfter > 0 && e.dials > e.panicAfter
	e.lock.Unlock()

	if shouldPanic {
		panic("engine socket gone")
	}

	client, engine := net.Pipe()

	go e.serve(engine)

	return client, nil
}

func (e *fakeEngine) serve(conn net.Conn) {
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

	if len(req) == 0 {
		return
	}

	switch req[0] {
	case "set=1":
		e.lock.Lock()
		e.configs = append(e.configs, strings.Join(req, "\n"))
		errno := e.errno
		e.lock.Unlock()

		fmt.Fprintf(conn, "errno=%d\n\n", errno)

	case "get=1":
		fmt.Fprintf(conn, "public_key=00\nlast_handshake_time_sec=%d\nlast_handshake_time_nsec=0\nerrno=0\n\n", e.handshake())
	}
}

// failingTransport answers the first n requests to path with the given status instead of forwarding them.
type failingTransport struct {
	next   http.RoundTripper
	path   string
	status int
	n      atomic.Int32
}

func newFailingTransport(path string, status, n int) *failingTransport {
	tr := &failingTransport{next: corplink.InsecureTransport(), path: path, status: status}
	tr.n.Store(int32(n))

	return tr
}

func (tr *failingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Path != tr.path || tr.n.Add(-1) < 0 {
		return tr.next.RoundTrip(req)
	}

	return &http.Response{
		Status:     http.StatusText(tr.status),
		StatusCode: tr.status,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader("{}")),
		Request:    req,
	}, nil
}

type recoverHandler struct {
	recovered atomic.Int32
}

func (h *recoverHandler) HandlePanic() {
	if r := recover(); r != nil {
		h.recovered.Add(1)
	}
}
