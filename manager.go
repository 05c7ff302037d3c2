package corplink

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ProtonMail/gluon/async"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Manager owns the HTTP session shared by every call against the control plane:
// the resty client, the cookie jar and the server clock offset.
type Manager struct {
	rc  *resty.Client
	jar CookieJar

	serverURL  *url.URL
	serverLock sync.RWMutex

	lookupURL string

	// offset is the server time minus the local time, in seconds, from the last response.
	offset atomicInt64

	panicHandler async.PanicHandler
}

func New(opts ...Option) *Manager {
	builder := newManagerBuilder()

	for _, opt := range opts {
		opt.config(builder)
	}

	return builder.build()
}

// NewClient returns a client acting for the given account.
// The device cookies are seeded into the jar for the control plane.
func (m *Manager) NewClient(creds Credentials, store StateStore, console Console) (*Client, error) {
	server := m.getServerURL()
	if server == nil {
		return nil, &ConfigError{Field: "server", Reason: "missing"}
	}

	m.jar.SetCookies(server, []*http.Cookie{
		{Name: "device_id", Value: creds.DeviceID, Path: "/", Expires: time.Now().Add(cookieLifetime)},
		{Name: "device_name", Value: creds.DeviceName, Path: "/", Expires: time.Now().Add(cookieLifetime)},
	})

	return newClient(m, creds, store, console), nil
}

// ClockOffset returns the server time minus the local time as seen in the last response.
func (m *Manager) ClockOffset() time.Duration {
	return time.Duration(m.offset.Load()) * time.Second
}

// LookupCompany resolves a company code to its control plane.
func (m *Manager) LookupCompany(ctx context.Context, code string) (Company, error) {
	var res Response[Company]

	resp, err := m.r(ctx).SetResult(&res).SetBody(CompanyReq{Code: code}).Post(m.lookupURL)
	if err != nil {
		return Company{}, fmt.Errorf("failed to look up company %q: %w", code, err)
	}

	if !resp.IsSuccess() {
		return Company{}, &Error{Code: Code(resp.StatusCode()), Message: resp.Status()}
	}

	if res.Code != SuccessCode {
		return Company{}, &Error{Code: res.Code, Message: res.Message}
	}

	logrus.WithFields(logrus.Fields{
		"pkg":    "go-corplink",
		"name":   res.Data.Name,
		"domain": res.Data.Domain,
	}).Info("Found company")

	return res.Data, nil
}

// ServerURL returns the control plane root, or nil when none is configured.
func (m *Manager) ServerURL() *url.URL {
	return m.getServerURL()
}

func (m *Manager) Close() {
	if err := m.jar.Save(); err != nil {
		logrus.WithField("pkg", "go-corplink").WithError(err).Warn("Failed to save cookies")
	}

	m.rc.GetClient().CloseIdleConnections()
}

func (m *Manager) r(ctx context.Context) *resty.Request {
	return m.rc.R().SetContext(ctx).ForceContentType("application/json")
}

func (m *Manager) getServerURL() *url.URL {
	m.serverLock.RLock()
	defer m.serverLock.RUnlock()

	if m.serverURL == nil {
		return nil
	}

	u := *m.serverURL

	return &u
}

// scopeCookies makes the session cookies available to the API port of a VPN endpoint.
func (m *Manager) scopeCookies(host string) {
	server := m.getServerURL()
	if server == nil {
		return
	}

	scopeCookies(m.jar, server, host)

	if err := m.jar.Save(); err != nil {
		logrus.WithField("pkg", "go-corplink").WithError(err).Warn("Failed to save cookies")
	}
}
