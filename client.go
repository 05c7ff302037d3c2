package corplink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Handler is a generic function that can be registered for a certain event (e.g. logout).
type Handler func()

// Credentials describe the account and the device that connects.
type Credentials struct {
	Username string
	Password string

	// Platform restricts login to one method name; empty allows any.
	Platform string

	DeviceID   string
	DeviceName string

	// PublicKey and PrivateKey are the base64 WireGuard keypair of the device.
	PublicKey  string
	PrivateKey string

	// Seed is the base32 OTP secret handed out on login, if any.
	Seed  string
	State AuthState

	// Strategy is the endpoint selection strategy; empty means the default.
	Strategy Strategy

	// VPNServerName pins the endpoint by name.
	VPNServerName string
}

// Client is a corplink client acting for one account.
type Client struct {
	m *Manager

	creds   Credentials
	store   StateStore
	console Console

	state     AuthState
	seed      string
	stateLock sync.RWMutex

	logoutHandlers []Handler
	hookLock       sync.RWMutex
}

func newClient(m *Manager, creds Credentials, store StateStore, console Console) *Client {
	return &Client{
		m:       m,
		creds:   creds,
		store:   store,
		console: console,
		state:   creds.State,
		seed:    creds.Seed,
	}
}

// AddLogoutHandler registers a function called when the server ends the session.
func (c *Client) AddLogoutHandler(handler Handler) {
	c.hookLock.Lock()
	defer c.hookLock.Unlock()

	c.logoutHandlers = append(c.logoutHandlers, handler)
}

// State returns the current auth state and OTP seed.
func (c *Client) State() (AuthState, string) {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()

	return c.state, c.seed
}

func (c *Client) setState(state AuthState, seed string) error {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()

	c.state = state
	c.seed = seed

	if c.store == nil {
		return nil
	}

	if err := c.store.SaveAuth(state, seed); err != nil {
		return fmt.Errorf("failed to persist auth state: %w", err)
	}

	return nil
}

// handleLogout resets the account to Init and returns ErrLogout wrapping the cause.
func (c *Client) handleLogout(cause error) error {
	logrus.WithField("pkg", "go-corplink").WithError(cause).Warn("Server ended the session, resetting login state")

	_, seed := c.State()

	if err := c.setState(StateInit, seed); err != nil {
		logrus.WithField("pkg", "go-corplink").WithError(err).Error("Failed to persist logout")
	}

	c.hookLock.RLock()
	defer c.hookLock.RUnlock()

	for _, handler := range c.logoutHandlers {
		handler()
	}

	return fmt.Errorf("%w: %w", ErrLogout, cause)
}

func (c *Client) do(ctx context.Context, res apiResponse, fn func(*resty.Request) (*resty.Response, error)) error {
	// Perform the request.
	resp, err := fn(c.m.r(ctx).SetResult(res))

	// If we receive no response, we can't do anything.
	if resp == nil || resp.RawResponse == nil {
		return fmt.Errorf("received no response from server: %w", err)
	}

	// Any non-success status means the session is gone.
	if !resp.IsSuccess() {
		return c.handleLogout(&Error{Code: Code(resp.StatusCode()), Message: http.StatusText(resp.StatusCode())})
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	switch code, msg := res.status(); code {
	case SuccessCode:
		return nil

	case LogoutCode:
		return c.handleLogout(&Error{Code: code, Message: msg})

	default:
		return &Error{Code: code, Message: msg}
	}
}

// do performs a GET (nil body) or a JSON POST against host+path and returns the data of the envelope.
// An empty host targets the control plane.
func do[T any](ctx context.Context, c *Client, host, path string, body any) (T, error) {
	var res Response[T]

	if err := c.do(ctx, &res, func(r *resty.Request) (*resty.Response, error) {
		if body == nil {
			return r.Get(host + path)
		}

		return r.SetBody(body).Post(host + path)
	}); err != nil {
		var zero T
		return zero, err
	}

	return res.Data, nil
}

// IsLogout reports whether err was caused by the server ending the session.
func IsLogout(err error) bool {
	return errors.Is(err, ErrLogout)
}
