package corplink

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
)

// NetCtl controls whether connections made through its transport can dial, read or write.
// It is used to simulate the network going away under a running tunnel.
type NetCtl struct {
	canDial  atomicBool
	canRead  atomicBool
	canWrite atomicBool

	onDial []func(net.Conn)
	lock   sync.Mutex
}

// NewNetCtl returns a new NetCtl allowing everything.
func NewNetCtl() *NetCtl {
	ctl := &NetCtl{}

	ctl.Enable()

	return ctl
}

func (c *NetCtl) SetCanDial(canDial bool) {
	c.canDial.Store(canDial)
}

func (c *NetCtl) SetCanRead(canRead bool) {
	c.canRead.Store(canRead)
}

func (c *NetCtl) SetCanWrite(canWrite bool) {
	c.canWrite.Store(canWrite)
}

// OnDial adds a callback that is called with the created connection when a dial is successful.
func (c *NetCtl) OnDial(f func(net.Conn)) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.onDial = append(c.onDial, f)
}

// Disable is equivalent to disallowing dial, read and write.
func (c *NetCtl) Disable() {
	c.SetCanDial(false)
	c.SetCanRead(false)
	c.SetCanWrite(false)
}

// Enable is equivalent to allowing dial, read and write.
func (c *NetCtl) Enable() {
	c.SetCanDial(true)
	c.SetCanRead(true)
	c.SetCanWrite(true)
}

// Transport returns an insecure transport whose connections obey the controller.
// Connections are not reused so that a disabled controller takes effect on the next request.
func (c *NetCtl) Transport() *http.Transport {
	tr := InsecureTransport()

	tr.Proxy = nil
	tr.DisableKeepAlives = true
	tr.DialContext = c.dialContext
	tr.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := c.dialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		tlsConn := tls.Client(conn, &tls.Config{ServerName: host, InsecureSkipVerify: true}) //nolint:gosec

		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}

		return tlsConn, nil
	}

	return tr
}

func (c *NetCtl) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if !c.canDial.Load() {
		return nil, errors.New("cannot dial")
	}

	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	for _, f := range c.onDial {
		f(conn)
	}

	return &ctlConn{Conn: conn, ctl: c}, nil
}

// ctlConn is a connection that can only read or write while its controller allows it.
type ctlConn struct {
	net.Conn

	ctl *NetCtl
}

func (c *ctlConn) Read(b []byte) (int, error) {
	if !c.ctl.canRead.Load() {
		return 0, errors.New("cannot read")
	}

	return c.Conn.Read(b)
}

func (c *ctlConn) Write(b []byte) (int, error) {
	if !c.ctl.canWrite.Load() {
		return 0, errors.New("cannot write")
	}

	return c.Conn.Write(b)
}
