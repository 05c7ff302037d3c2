package corplink_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	corplink "github.com/corplink-go/go-corplink"
	"github.com/corplink-go/go-corplink/server"
	"github.com/stretchr/testify/require"
)

func TestNetCtl_TransportErrorIsNotLogout(t *testing.T) {
	s := server.New()
	defer s.Close()

	netCtl := corplink.NewNetCtl()

	var dials atomic.Int32

	netCtl.OnDial(func(net.Conn) { dials.Add(1) })

	creds := testCreds(t, "alice", "pass")
	creds.State = corplink.StateLogin

	_, c, store := newTestClient(t, s, creds, &fakeConsole{}, corplink.WithTransport(netCtl.Transport()))

	netCtl.Disable()

	_, err := c.ListVPN(context.Background())
	require.Error(t, err)
	require.False(t, corplink.IsLogout(err))
	require.Zero(t, dials.Load())

	// The session is kept.
	state, _ := c.State()
	require.Equal(t, corplink.StateLogin, state)
	require.Empty(t, store.saves)

	netCtl.Enable()

	// The server answers, without a logged in session.
	_, err = c.ListVPN(context.Background())
	require.ErrorIs(t, err, corplink.ErrLogout)
	require.NotZero(t, dials.Load())
}

func TestRun_NetworkLost(t *testing.T) {
	s := server.New()
	defer s.Close()

	s.SetLoginOrders(corplink.PlatformCorporate)
	s.AddVPN("hk", corplink.ProtocolUDP)
	require.NoError(t, s.CreateUser("alice", "pass", true, "password"))

	netCtl := corplink.NewNetCtl()

	_, c, _ := newTestClient(t, s, testCreds(t, "alice", "pass"), &fakeConsole{}, corplink.WithTransport(netCtl.Transport()))

	engine := newFakeEngine()

	r := corplink.NewRunner(c, engine, corplink.NewUAPIClient(engine)).WithKeepAliveInterval(10 * time.Millisecond)

	type result struct {
		code corplink.ExitCode
		err  error
	}

	resCh := make(chan result, 1)

	go func() {
		code, err := r.Run(context.Background())
		resCh <- result{code: code, err: err}
	}()

	require.Eventually(t, func() bool {
		return len(s.GetReports()) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	netCtl.Disable()

	res := <-resCh
	require.Error(t, res.err)
	require.False(t, corplink.IsLogout(res.err))
	require.Equal(t, corplink.ExitTimedOut, res.code)
	require.True(t, engine.isStopped())

	state, _ := c.State()
	require.Equal(t, corplink.StateLogin, state)
}
