package corplink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ProtonMail/gluon/async"
	"github.com/sirupsen/logrus"
)

// ExitCode is the process exit status of a run.
type ExitCode int

const (
	ExitOK ExitCode = 0

	// ExitPermission (EPERM) reports a failure before the tunnel was running.
	ExitPermission ExitCode = 1

	// ExitTimedOut (ETIMEDOUT) reports that the tunnel went down on its own.
	ExitTimedOut ExitCode = 110
)

const (
	DefaultKeepAliveInterval = 60 * time.Second

	teardownTimeout = 10 * time.Second
)

// Runner brings the tunnel up and keeps it running until it is interrupted or dies.
type Runner struct {
	client *Client
	engine Engine
	uapi   *UAPIClient

	keepAliveInterval time.Duration
	panicHandler      async.PanicHandler
}

func NewRunner(client *Client, engine Engine, uapi *UAPIClient) *Runner {
	return &Runner{
		client:            client,
		engine:            engine,
		uapi:              uapi,
		keepAliveInterval: DefaultKeepAliveInterval,
		panicHandler:      client.m.panicHandler,
	}
}

// WithKeepAliveInterval returns a copy of the runner reporting at the given interval.
func (r *Runner) WithKeepAliveInterval(interval time.Duration) *Runner {
	rr := *r
	rr.keepAliveInterval = interval

	return &rr
}

// Run logs in, connects and configures the tunnel, then waits until ctx is done,
// the keep-alive fails or the handshake times out.
func (r *Runner) Run(ctx context.Context) (ExitCode, error) {
	params, err := r.establish(ctx)
	if err != nil {
		return ExitPermission, err
	}

	var started bool

	// The endpoint has issued a peer config: tell it we leave, whatever happens next.
	defer func() {
		r.disconnect(ctx, params)

		if started {
			r.stopEngine()
		}
	}()

	if err := r.engine.Start(ctx, params); err != nil {
		return ExitPermission, fmt.Errorf("failed to start tunnel engine: %w", err)
	}

	started = true

	if err := r.uapi.Configure(ctx, params); err != nil {
		return ExitPermission, fmt.Errorf("failed to configure tunnel: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"pkg":     "go-corplink",
		"address": params.Address,
		"peer":    params.PeerAddress,
	}).Info("Tunnel is up")

	winner, err := Race(ctx, r.panicHandler,
		Branch{Name: "signal", Run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}},
		Branch{Name: "keepalive", Run: func(ctx context.Context) error {
			return r.client.KeepAlive(ctx, params, r.keepAliveInterval)
		}},
		Branch{Name: "watchdog", Run: r.uapi.WatchHealth},
	)

	if ctx.Err() != nil {
		logrus.WithField("pkg", "go-corplink").Info("Interrupted, shutting down")
		return ExitOK, nil
	}

	logrus.WithFields(logrus.Fields{
		"pkg":    "go-corplink",
		"winner": winner,
	}).WithError(err).Warn("Tunnel went down")

	if err == nil {
		err = fmt.Errorf("%s ended", winner)
	}

	return ExitTimedOut, err
}

// establish logs in when needed and connects, logging in again once if the server ends the session.
func (r *Runner) establish(ctx context.Context) (TunnelParams, error) {
	var retried bool

	for {
		params, err := r.loginAndConnect(ctx)
		if err == nil {
			return params, nil
		}

		if !errors.Is(err, ErrLogout) || retried {
			return TunnelParams{}, err
		}

		retried = true

		logrus.WithField("pkg", "go-corplink").WithError(err).Warn("Session ended, logging in again")
	}
}

func (r *Runner) loginAndConnect(ctx context.Context) (TunnelParams, error) {
	if state, _ := r.client.State(); state != StateLogin {
		if err := r.client.Login(ctx); err != nil {
			return TunnelParams{}, err
		}
	}

	return r.client.Connect(ctx)
}

func (r *Runner) disconnect(ctx context.Context, params TunnelParams) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	if err := r.client.Disconnect(ctx, params); err != nil {
		logrus.WithField("pkg", "go-corplink").WithError(err).Warn("Failed to report disconnect")
	}
}

func (r *Runner) stopEngine() {
	if err := r.engine.Stop(); err != nil {
		logrus.WithField("pkg", "go-corplink").WithError(err).Warn("Failed to stop tunnel engine")
	}
}
