package corplink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// SocketDirectory holds the UAPI sockets of running tunnel engines.
	SocketDirectory = "/var/run/wireguard"

	// DefaultHealthInterval is how often the handshake is checked, and how old it may get.
	DefaultHealthInterval = 5 * time.Minute

	persistentKeepalive = 10
)

// ErrHandshakeTimeout is returned when the last handshake is older than the health interval.
var ErrHandshakeTimeout = errors.New("last handshake timed out")

// TunnelProtocolError is returned when the tunnel engine does not acknowledge a configuration.
type TunnelProtocolError struct {
	Response string
}

func (err *TunnelProtocolError) Error() string {
	return fmt.Sprintf("tunnel engine returned unexpected result: %q", err.Response)
}

// Dialer opens a UAPI channel to the tunnel engine.
type Dialer interface {
	DialUAPI(ctx context.Context) (net.Conn, error)
}

// UnixDialer dials the UAPI unix socket, waiting for the engine to create it.
type UnixDialer struct {
	Path     string
	Attempts int
	Backoff  time.Duration
}

func NewUnixDialer(name string) *UnixDialer {
	return &UnixDialer{
		Path:     filepath.Join(SocketDirectory, name+".sock"),
		Attempts: 10,
		Backoff:  time.Second,
	}
}

func (d *UnixDialer) DialUAPI(ctx context.Context) (net.Conn, error) {
	for attempt := 1; attempt <= d.Attempts; attempt++ {
		if _, err := os.Stat(d.Path); err == nil {
			break
		}

		logrus.WithFields(logrus.Fields{
			"pkg":     "go-corplink",
			"path":    d.Path,
			"attempt": attempt,
		}).Debug("Socket not ready, waiting")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-time.After(d.Backoff):
		}
	}

	var dialer net.Dialer

	return dialer.DialContext(ctx, "unix", d.Path)
}

// UAPIClient configures a tunnel engine and watches its health over UAPI.
type UAPIClient struct {
	dialer   Dialer
	interval time.Duration
	now      func() time.Time
}

func NewUAPIClient(dialer Dialer) *UAPIClient {
	return &UAPIClient{
		dialer:   dialer,
		interval: DefaultHealthInterval,
		now:      time.Now,
	}
}

// WithInterval returns a copy of the client checking health at the given interval.
func (c *UAPIClient) WithInterval(interval time.Duration) *UAPIClient {
	cc := *c
	cc.interval = interval

	return &cc
}

// Configure sends the tunnel parameters to the engine and brings the interface up.
func (c *UAPIClient) Configure(ctx context.Context, params TunnelParams) error {
	if !params.issued {
		return errors.New("tunnel parameters were not issued by a connect")
	}

	req, err := configRequest(params)
	if err != nil {
		return err
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("failed to send config: %w", err)
	}

	res, err := readResponse(bufio.NewReader(conn))
	if err != nil && !errors.Is(err, io.EOF) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return fmt.Errorf("failed to read config response: %w", err)
	}

	for _, line := range res {
		if line == "errno=0" {
			logrus.WithField("pkg", "go-corplink").Info("Tunnel configured")
			return nil
		}
	}

	return &TunnelProtocolError{Response: strings.Join(res, "\n")}
}

// WatchHealth checks the last handshake every interval, the first check after one interval.
// It returns ErrHandshakeTimeout once the handshake is older than the interval.
func (c *UAPIClient) WatchHealth(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
		}

		last, err := c.lastHandshake(ctx)
		if err != nil {
			var dialErr *dialError
			if errors.As(err, &dialErr) {
				return err
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			logrus.WithField("pkg", "go-corplink").WithError(err).Warn("Failed to get last handshake")

			continue
		}

		// A zero timestamp means no handshake happened yet.
		if last.IsZero() {
			continue
		}

		elapsed := c.now().Sub(last)

		log := logrus.WithFields(logrus.Fields{
			"pkg":       "go-corplink",
			"handshake": last.Local(),
			"elapsed":   elapsed.Round(time.Second),
		})

		if elapsed > c.interval {
			log.Warn("Last handshake is too old")
			return ErrHandshakeTimeout
		}

		log.Debug("Tunnel is healthy")
	}
}

type dialError struct {
	err error
}

func (err *dialError) Error() string {
	return fmt.Sprintf("failed to connect to uapi: %v", err.err)
}

func (err *dialError) Unwrap() error {
	return err.err
}

func (c *UAPIClient) dial(ctx context.Context) (net.Conn, error) {
	conn, err := c.dialer.DialUAPI(ctx)
	if err != nil {
		return nil, &dialError{err: err}
	}

	return conn, nil
}

// lastHandshake returns the last handshake time, or the zero time if there was none.
func (c *UAPIClient) lastHandshake(ctx context.Context) (time.Time, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := conn.Write([]byte("get=1\n\n")); err != nil {
		return time.Time{}, fmt.Errorf("failed to send get: %w", err)
	}

	res, err := readResponse(bufio.NewReader(conn))
	if err != nil && !errors.Is(err, io.EOF) {
		return time.Time{}, fmt.Errorf("failed to read get response: %w", err)
	}

	for _, line := range res {
		value, ok := strings.CutPrefix(line, "last_handshake_time_sec=")
		if !ok {
			continue
		}

		sec, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid last handshake %q: %w", value, err)
		}

		if sec == 0 {
			return time.Time{}, nil
		}

		return time.Unix(sec, 0), nil
	}

	return time.Time{}, nil
}

// readResponse reads lines until a blank line or the end of the stream.
func readResponse(r *bufio.Reader) ([]string, error) {
	var lines []string

	for {
		line, err := r.ReadString('\n')

		if line = strings.TrimRight(line, "\r\n"); line != "" {
			lines = append(lines, line)
		} else if err == nil {
			return lines, nil
		}

		if err != nil {
			return lines, err
		}
	}
}

func configRequest(params TunnelParams) ([]byte, error) {
	privateKey, err := keyToHex(params.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	peerKey, err := keyToHex(params.PeerKey)
	if err != nil {
		return nil, fmt.Errorf("invalid peer key: %w", err)
	}

	routes := make([]string, 0, len(params.Routes))

	for _, route := range params.Routes {
		routes = append(routes, withDefaultMask(route))
	}

	var buf bytes.Buffer

	buf.WriteString("set=1\n")
	fmt.Fprintf(&buf, "private_key=%s\n", privateKey)
	buf.WriteString("replace_peers=true\n")
	fmt.Fprintf(&buf, "public_key=%s\n", peerKey)
	buf.WriteString("replace_allowed_ips=true\n")
	fmt.Fprintf(&buf, "endpoint=%s\n", params.PeerAddress)
	fmt.Fprintf(&buf, "persistent_keepalive_interval=%d\n", persistentKeepalive)

	for _, route := range routes {
		fmt.Fprintf(&buf, "allowed_ip=%s\n", route)
	}

	fmt.Fprintf(&buf, "address=%s\n", params.Address)

	if params.Address6 != "" {
		fmt.Fprintf(&buf, "address=%s\n", params.Address6)
	}

	fmt.Fprintf(&buf, "mtu=%d\n", params.MTU)
	buf.WriteString("up=true\n")

	for _, route := range routes {
		fmt.Fprintf(&buf, "route=%s\n", route)
	}

	buf.WriteString("\n")

	return buf.Bytes(), nil
}

func keyToHex(key string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// withDefaultMask adds a host prefix to routes without one.
func withDefaultMask(route string) string {
	if strings.Contains(route, "/") {
		return route
	}

	if strings.Contains(route, ":") {
		return route + "/128"
	}

	return route + "/32"
}
