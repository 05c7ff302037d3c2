package corplink

import (
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func cookieNames(cookies []*http.Cookie) map[string]string {
	names := make(map[string]string)

	for _, cookie := range cookies {
		names[cookie.Name] = cookie.Value
	}

	return names
}

func TestScopeCookies(t *testing.T) {
	jar, err := NewCookieJar("")
	require.NoError(t, err)

	server := &url.URL{Scheme: "https", Host: "corplink.example.com", Path: "/"}

	jar.SetCookies(server, []*http.Cookie{
		{Name: "corplink_session", Value: "session", Path: "/", Expires: time.Now().Add(time.Hour)},
		{Name: "csrf-token", Value: "token", Path: "/", Expires: time.Now().Add(time.Hour)},
	})

	probe := &url.URL{Scheme: "https", Host: "203.0.113.7:8443", Path: "/vpn/ping"}

	require.Empty(t, jar.Cookies(probe))

	scopeCookies(jar, server, "203.0.113.7:8443")

	require.Equal(t, map[string]string{
		"corplink_session": "session",
		"csrf-token":       "token",
	}, cookieNames(jar.Cookies(probe)))

	// Other hosts do not see them.
	require.Empty(t, jar.Cookies(&url.URL{Scheme: "https", Host: "203.0.113.8:8443", Path: "/"}))
}

func TestScopeCookies_Empty(t *testing.T) {
	jar, err := NewCookieJar("")
	require.NoError(t, err)

	scopeCookies(jar, &url.URL{Scheme: "https", Host: "corplink.example.com", Path: "/"}, "203.0.113.7:8443")

	require.Empty(t, jar.Cookies(&url.URL{Scheme: "https", Host: "203.0.113.7:8443", Path: "/"}))
}

func TestCookieJar_Persist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")

	jar, err := NewCookieJar(path)
	require.NoError(t, err)

	server := &url.URL{Scheme: "https", Host: "corplink.example.com", Path: "/"}

	jar.SetCookies(server, []*http.Cookie{
		{Name: "device_id", Value: "device", Path: "/", Expires: time.Now().Add(cookieLifetime)},
		{Name: "session_only", Value: "gone", Path: "/"},
	})

	require.NoError(t, jar.Save())

	reloaded, err := NewCookieJar(path)
	require.NoError(t, err)

	require.Equal(t, map[string]string{"device_id": "device"}, cookieNames(reloaded.Cookies(server)))
}
