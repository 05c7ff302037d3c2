package server

import (
	"net"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	corplink "github.com/corplink-go/go-corplink"
	"github.com/corplink-go/go-corplink/server/backend"
	"github.com/gin-gonic/gin"
)

// Server is a fake corplink control plane. Its VPN endpoints are served by the same listener.
type Server struct {
	// r is the gin router.
	r *gin.Engine

	// s is the underlying server.
	s *httptest.Server

	// b is the server backend, which manages accounts, sessions and endpoints.
	b *backend.Backend

	// callWatchers records calls received by the server.
	callWatchers     []callWatcher
	callWatchersLock sync.RWMutex

	// minOSVersion is the minimum os_version that the server will accept.
	minOSVersion *semver.Version

	// clockSkew is added to the server's clock.
	clockSkew time.Duration

	// offline is whether to pretend the server is offline and return 5xx errors.
	offline bool

	lock sync.RWMutex
}

func New(opts ...Option) *Server {
	builder := newServerBuilder()

	for _, opt := range opts {
		opt.config(builder)
	}

	return builder.build()
}

func (s *Server) GetHostURL() string {
	return s.s.URL
}

// GetCompanyLookupURL returns the URL resolving company codes to this server.
func (s *Server) GetCompanyLookupURL() string {
	return s.s.URL + "/api/match"
}

func (s *Server) AddCallWatcher(fn func(Call), paths ...string) {
	s.callWatchersLock.Lock()
	defer s.callWatchersLock.Unlock()

	s.callWatchers = append(s.callWatchers, newCallWatcher(fn, paths...))
}

// CreateUser creates an account accepting the given credential kinds, e.g. password or email.
func (s *Server) CreateUser(username, password string, withSeed bool, methods ...string) error {
	return s.b.CreateUser(username, password, withSeed, methods...)
}

func (s *Server) GetSeed(username string) (string, error) {
	return s.b.GetSeed(username)
}

func (s *Server) GetEmailCode(username string) (string, error) {
	return s.b.GetEmailCode(username)
}

func (s *Server) SetLoginOrders(orders ...string) {
	s.b.SetLoginOrders(orders...)
}

func (s *Server) AddThirdParty(alias, username string) corplink.TPSLoginMethod {
	return s.b.AddThirdParty(alias, username)
}

// AddVPN adds an endpoint served by this server with the given protocol mode.
func (s *Server) AddVPN(name string, mode int) corplink.VPNInfo {
	u, err := url.Parse(s.s.URL)
	if err != nil {
		panic(err)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		panic(err)
	}

	apiPort, err := strconv.Atoi(port)
	if err != nil {
		panic(err)
	}

	info := corplink.VPNInfo{
		Name:         name,
		EnName:       name,
		IP:           host,
		APIPort:      apiPort,
		VPNPort:      51820,
		ProtocolMode: mode,
	}

	s.b.AddVPN(info)

	return info
}

func (s *Server) GetReports() []corplink.ReportReq {
	return s.b.GetReports()
}

func (s *Server) GetPeerKey() string {
	return s.b.GetPeerKey()
}

// ForceLogout makes the next n authenticated calls end their session.
func (s *Server) ForceLogout(n int) {
	s.b.ForceLogout(n)
}

func (s *Server) SetMinOSVersion(minOSVersion *semver.Version) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.minOSVersion = minOSVersion
}

func (s *Server) SetClockSkew(skew time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.clockSkew = skew
}

func (s *Server) SetOffline(offline bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.offline = offline
}

func (s *Server) now() time.Time {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return time.Now().Add(s.clockSkew)
}

func (s *Server) Close() {
	s.s.Close()
}
