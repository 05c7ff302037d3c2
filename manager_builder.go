package corplink

import (
	"net/http"
	"net/url"
	"time"

	"github.com/ProtonMail/gluon/async"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultUserAgent is the user agent the control plane expects from mobile clients.
	DefaultUserAgent = "CorpLink/201000 (GooglePixel; Android 10; en)"

	// DefaultCompanyLookupURL resolves a company code to its control plane domain.
	DefaultCompanyLookupURL = "https://corplink.volcengine.cn/api/match"

	DefaultOS        = "Android"
	DefaultOSVersion = "2"

	defaultTimeout = 10 * time.Second

	csrfCookie = "csrf-token"
	csrfHeader = "csrf-token"
)

type managerBuilder struct {
	serverURL    string
	lookupURL    string
	userAgent    string
	osName       string
	osVersion    string
	transport    http.RoundTripper
	cookieJar    CookieJar
	timeout      time.Duration
	logger       resty.Logger
	debug        bool
	panicHandler async.PanicHandler
}

func newManagerBuilder() *managerBuilder {
	return &managerBuilder{
		lookupURL:    DefaultCompanyLookupURL,
		userAgent:    DefaultUserAgent,
		osName:       DefaultOS,
		osVersion:    DefaultOSVersion,
		transport:    InsecureTransport(),
		cookieJar:    nil,
		timeout:      defaultTimeout,
		logger:       nil,
		debug:        false,
		panicHandler: async.NoopPanicHandler{},
	}
}

func (builder *managerBuilder) build() *Manager {
	jar := builder.cookieJar

	if jar == nil {
		// An in-memory jar never fails to build.
		jar, _ = NewCookieJar("")
	}

	m := &Manager{
		rc:  resty.New(),
		jar: jar,

		lookupURL: builder.lookupURL,

		panicHandler: builder.panicHandler,
	}

	// Set the control plane host.
	if builder.serverURL != "" {
		m.setServerURL(builder.serverURL)
	}

	// Set the transport.
	m.rc.SetTransport(builder.transport)

	// Set the cookie jar.
	m.rc.SetCookieJar(jar)

	// Set the request timeout.
	m.rc.SetTimeout(builder.timeout)

	// Set the logger.
	if builder.logger != nil {
		m.rc.SetLogger(builder.logger)
	}

	// Set the debug flag.
	m.rc.SetDebug(builder.debug)

	// Every endpoint expects the client platform in the query string.
	m.rc.SetQueryParams(map[string]string{
		"os":         builder.osName,
		"os_version": builder.osVersion,
	})

	m.rc.SetHeader("User-Agent", builder.userAgent)

	// Echo the session's CSRF cookie as a header.
	m.rc.OnBeforeRequest(m.setCSRFToken)

	// Set middleware.
	m.rc.OnAfterResponse(m.updateTime)
	m.rc.OnAfterResponse(m.saveCookies)

	return m
}

func (m *Manager) setCSRFToken(_ *resty.Client, req *resty.Request) error {
	server := m.getServerURL()
	if server == nil {
		return nil
	}

	for _, cookie := range m.jar.Cookies(server) {
		if cookie.Name == csrfCookie {
			req.SetHeader(csrfHeader, cookie.Value)
			break
		}
	}

	return nil
}

func parseServerURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, &ConfigError{Field: "server", Reason: "must be an absolute URL"}
	}

	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, nil
}

func (m *Manager) setServerURL(raw string) {
	u, err := parseServerURL(raw)
	if err != nil {
		logrus.WithField("pkg", "go-corplink").WithError(err).Error("Invalid server URL")
		return
	}

	m.serverLock.Lock()
	defer m.serverLock.Unlock()

	m.serverURL = u
	m.rc.SetBaseURL(u.Scheme + "://" + u.Host)
}
