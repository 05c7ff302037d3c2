package corplink

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	cookiejar "github.com/juju/persistent-cookiejar"
	"golang.org/x/net/publicsuffix"
)

// cookieLifetime is the expiry given to cookies the client creates itself.
const cookieLifetime = 30 * 24 * time.Hour

// InsecureTransport returns a transport that does not verify the server certificate.
// Control plane servers present certificates signed by a private CA.
func InsecureTransport() *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}
}

// CookieJar is a cookie jar that can be persisted.
type CookieJar interface {
	http.CookieJar

	Save() error
}

// NewCookieJar returns a cookie jar persisted to the given file.
// An empty filename returns a jar that is never written to disk.
func NewCookieJar(filename string) (CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{
		Filename:         filename,
		NoPersist:        filename == "",
		PublicSuffixList: publicsuffix.List,
	})
}

// scopeCookies copies every cookie of the primary server to the given probe host.
// The copies are host-only: jars reject an IP address as cookie domain.
func scopeCookies(jar http.CookieJar, server *url.URL, host string) {
	probe := &url.URL{Scheme: "https", Host: host, Path: "/"}

	var cookies []*http.Cookie

	for _, cookie := range jar.Cookies(&url.URL{Scheme: server.Scheme, Host: server.Host, Path: "/"}) {
		cookies = append(cookies, &http.Cookie{
			Name:    cookie.Name,
			Value:   cookie.Value,
			Path:    "/",
			Expires: time.Now().Add(cookieLifetime),
		})
	}

	if len(cookies) > 0 {
		jar.SetCookies(probe, cookies)
	}
}
