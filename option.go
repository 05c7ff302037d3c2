package corplink

import (
	"net/http"
	"time"

	"github.com/ProtonMail/gluon/async"
	"github.com/go-resty/resty/v2"
)

// Option represents a type that can be used to configure the manager.
type Option interface {
	config(*managerBuilder)
}

// WithServerURL sets the control plane URL, e.g. https://vpn.example.com:10443.
func WithServerURL(serverURL string) Option {
	return &withServerURL{
		serverURL: serverURL,
	}
}

type withServerURL struct {
	serverURL string
}

func (opt withServerURL) config(builder *managerBuilder) {
	builder.serverURL = opt.serverURL
}

func WithCompanyLookupURL(lookupURL string) Option {
	return &withCompanyLookupURL{
		lookupURL: lookupURL,
	}
}

type withCompanyLookupURL struct {
	lookupURL string
}

func (opt withCompanyLookupURL) config(builder *managerBuilder) {
	builder.lookupURL = opt.lookupURL
}

func WithTransport(transport http.RoundTripper) Option {
	return &withTransport{
		transport: transport,
	}
}

type withTransport struct {
	transport http.RoundTripper
}

func (opt withTransport) config(builder *managerBuilder) {
	builder.transport = opt.transport
}

// WithCookieJar sets the jar holding the session. It is saved whenever a response sets a cookie.
func WithCookieJar(jar CookieJar) Option {
	return &withCookieJar{
		jar: jar,
	}
}

type withCookieJar struct {
	jar CookieJar
}

func (opt withCookieJar) config(builder *managerBuilder) {
	builder.cookieJar = opt.jar
}

func WithUserAgent(userAgent string) Option {
	return &withUserAgent{
		userAgent: userAgent,
	}
}

type withUserAgent struct {
	userAgent string
}

func (opt withUserAgent) config(builder *managerBuilder) {
	builder.userAgent = opt.userAgent
}

// WithOS sets the platform reported in the query string of every request.
func WithOS(name, version string) Option {
	return &withOS{
		name:    name,
		version: version,
	}
}

type withOS struct {
	name    string
	version string
}

func (opt withOS) config(builder *managerBuilder) {
	builder.osName = opt.name
	builder.osVersion = opt.version
}

func WithTimeout(timeout time.Duration) Option {
	return &withTimeout{
		timeout: timeout,
	}
}

type withTimeout struct {
	timeout time.Duration
}

func (opt withTimeout) config(builder *managerBuilder) {
	builder.timeout = opt.timeout
}

func WithLogger(logger resty.Logger) Option {
	return &withLogger{
		logger: logger,
	}
}

type withLogger struct {
	logger resty.Logger
}

func (opt withLogger) config(builder *managerBuilder) {
	builder.logger = opt.logger
}

func WithDebug(debug bool) Option {
	return &withDebug{
		debug: debug,
	}
}

type withDebug struct {
	debug bool
}

func (opt withDebug) config(builder *managerBuilder) {
	builder.debug = opt.debug
}

func WithPanicHandler(panicHandler async.PanicHandler) Option {
	return &withPanicHandler{
		panicHandler: panicHandler,
	}
}

type withPanicHandler struct {
	panicHandler async.PanicHandler
}

func (opt withPanicHandler) config(builder *managerBuilder) {
	builder.panicHandler = opt.panicHandler
}
