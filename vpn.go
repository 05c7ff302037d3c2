package corplink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bradenaw/juniper/xslices"
	"github.com/sirupsen/logrus"
)

// ListVPN returns the endpoints available to the account.
func (c *Client) ListVPN(ctx context.Context) ([]VPNInfo, error) {
	return do[[]VPNInfo](ctx, c, "", "/api/vpn/list", nil)
}

// Ping probes the API of an endpoint and returns the round trip time.
// The session cookies are first made available to the endpoint's host.
func (c *Client) Ping(ctx context.Context, info VPNInfo) (time.Duration, error) {
	c.m.scopeCookies(info.apiAddr())

	start := time.Now()

	if _, err := do[json.RawMessage](ctx, c, info.APIHost(), "/vpn/ping", nil); err != nil {
		return 0, err
	}

	return time.Since(start), nil
}

// Connect selects an endpoint and fetches the tunnel parameters from it.
// The account must be logged in.
func (c *Client) Connect(ctx context.Context) (TunnelParams, error) {
	if state, _ := c.State(); state != StateLogin {
		return TunnelParams{}, ErrNotLoggedIn
	}

	if c.creds.PublicKey == "" {
		return TunnelParams{}, &ConfigError{Field: "public_key", Reason: "missing"}
	}

	if c.creds.PrivateKey == "" {
		return TunnelParams{}, &ConfigError{Field: "private_key", Reason: "missing"}
	}

	vpns, err := c.ListVPN(ctx)
	if err != nil {
		return TunnelParams{}, fmt.Errorf("failed to list vpn: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"pkg":     "go-corplink",
		"servers": xslices.Map(vpns, func(info VPNInfo) string { return info.EnName }),
	}).Infof("Found %d vpn(s)", len(vpns))

	info, err := Select(ctx, vpns, c.creds.Strategy, c.creds.VPNServerName, c)
	if err != nil {
		return TunnelParams{}, fmt.Errorf("failed to select vpn: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"pkg":    "go-corplink",
		"server": info.EnName,
		"addr":   info.vpnAddr(),
		"mode":   info.ModeName(),
	}).Info("Selected vpn")

	otp, err := c.otp(ctx)
	if err != nil {
		return TunnelParams{}, err
	}

	wg, err := do[WgInfo](ctx, c, info.APIHost(), "/vpn/conn", ConnReq{
		PublicKey: c.creds.PublicKey,
		OTP:       otp,
	})
	if err != nil {
		return TunnelParams{}, fmt.Errorf("failed to fetch peer info: %w", err)
	}

	// Peer info is only trusted from a session that is still logged in.
	if state, _ := c.State(); state != StateLogin {
		return TunnelParams{}, fmt.Errorf("session ended while connecting: %w", ErrLogout)
	}

	return newTunnelParams(info, wg, c.creds)
}

func (c *Client) otp(ctx context.Context) (string, error) {
	_, seed := c.State()

	if seed == "" {
		c.console.Display("Enter your 2FA code:")

		code, err := c.console.ReadSecret(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read 2fa code: %w", err)
		}

		return code, nil
	}

	key, err := DecodeSeed(seed)
	if err != nil {
		return "", err
	}

	slot := TOTPOffset(key, OffsetSlots(int64(c.m.ClockOffset()/time.Second)))

	logrus.WithFields(logrus.Fields{
		"pkg":       "go-corplink",
		"secs_left": slot.SecsLeft,
	}).Info("Generated 2fa code")

	return slot.String(), nil
}

func newTunnelParams(info VPNInfo, wg WgInfo, creds Credentials) (TunnelParams, error) {
	mask, err := strconv.Atoi(wg.IPMask)
	if err != nil {
		return TunnelParams{}, fmt.Errorf("%w: invalid ip mask %q", ErrProtocol, wg.IPMask)
	}

	if wg.IP == "" || wg.PublicKey == "" {
		return TunnelParams{}, fmt.Errorf("%w: incomplete peer info", ErrProtocol)
	}

	params := TunnelParams{
		Address:         wg.IP + "/" + strconv.Itoa(mask),
		PeerAddress:     info.vpnAddr(),
		MTU:             wg.Setting.VPNMTU,
		PublicKey:       creds.PublicKey,
		PrivateKey:      creds.PrivateKey,
		PeerKey:         wg.PublicKey,
		Routes:          append(append([]string{}, wg.Setting.VPNRouteSplit...), wg.Setting.V6RouteSplit...),
		DNS:             wg.Setting.VPNDNS,
		Protocol:        info.ProtocolMode,
		ProtocolVersion: wg.ProtocolVersion,
		APIHost:         info.APIHost(),
		issued:          true,
	}

	if wg.IPv6 != "" {
		params.Address6 = wg.IPv6 + "/128"
	}

	return params, nil
}

// ReportStatus tells the endpoint the tunnel is alive.
func (c *Client) ReportStatus(ctx context.Context, params TunnelParams) error {
	return c.report(ctx, params, reportKeepAlive)
}

// Disconnect tells the endpoint the tunnel is going down.
func (c *Client) Disconnect(ctx context.Context, params TunnelParams) error {
	return c.report(ctx, params, reportDisconnect)
}

func (c *Client) report(ctx context.Context, params TunnelParams, kind string) error {
	if _, err := do[json.RawMessage](ctx, c, params.APIHost, "/vpn/report", ReportReq{
		IP:        params.Address,
		PublicKey: params.PublicKey,
		Mode:      reportModeSplit,
		Type:      kind,
	}); err != nil {
		return fmt.Errorf("failed to report vpn status %s: %w", kind, err)
	}

	return nil
}

// KeepAlive reports the tunnel status every interval, starting immediately.
// It returns the first reporting error, or the context error once cancelled.
func (c *Client) KeepAlive(ctx context.Context, params TunnelParams, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		logrus.WithField("pkg", "go-corplink").Debug("Keep alive")

		if err := c.ReportStatus(ctx, params); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return ctxErr
			}

			logrus.WithField("pkg", "go-corplink").WithError(err).Warn("Keep alive failed")

			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
		}
	}
}
