package corplink

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

type Code int

const (
	SuccessCode Code = 0
	LogoutCode  Code = 101
)

var (
	// ErrLogout is returned when the server signals that the session is no longer valid.
	ErrLogout = errors.New("operation failed because of logout")

	// ErrNotLoggedIn is returned when an operation requires a logged in session.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNoLoginMethod is returned when every login method offered by the server failed.
	ErrNoLoginMethod = errors.New("no available login method, please provide a valid platform")

	// ErrNoVPNAvailable is returned when no endpoint candidate could be selected.
	ErrNoVPNAvailable = errors.New("no vpn available")

	// ErrProtocol is returned when a response does not have the expected shape.
	ErrProtocol = errors.New("unexpected response")
)

// Error is a business error returned in an otherwise successful HTTP response.
type Error struct {
	Code    Code
	Message string
}

func (err *Error) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("request failed with code %d", err.Code)
	}

	return fmt.Sprintf("request failed with code %d: %s", err.Code, err.Message)
}

// ConfigError is returned for missing or invalid configuration values.
type ConfigError struct {
	Field  string
	Reason string
}

func (err *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", err.Field, err.Reason)
}

// Response is the envelope of every control plane response.
type Response[T any] struct {
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

func (res *Response[T]) status() (Code, string) {
	return res.Code, res.Message
}

type apiResponse interface {
	status() (Code, string)
}

func (m *Manager) updateTime(_ *resty.Client, res *resty.Response) error {
	header := res.Header().Get("Date")
	if header == "" {
		return nil
	}

	date, err := http.ParseTime(header)
	if err != nil {
		logrus.WithField("pkg", "go-corplink").WithError(err).Warn("Failed to parse date header, ignoring it")
		return nil
	}

	m.offset.Store(int64(date.Sub(time.Now()) / time.Second))

	return nil
}

func (m *Manager) saveCookies(_ *resty.Client, res *resty.Response) error {
	if len(res.Header().Values("Set-Cookie")) == 0 {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"pkg": "go-corplink",
		"url": res.Request.URL,
	}).Debug("Found set-cookie in response, saving cookies")

	if err := m.jar.Save(); err != nil {
		return fmt.Errorf("failed to persist cookies: %w", err)
	}

	return nil
}
