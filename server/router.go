package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	corplink "github.com/corplink-go/go-corplink"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionCookie = "corplink_session"
	csrfCookie    = "csrf-token"
	csrfHeader    = "csrf-token"

	cookieMaxAge = int(90 * 24 * time.Hour / time.Second)

	// errorCode is the business code of any failure other than a logout.
	errorCode corplink.Code = 1
)

func initRouter(s *Server) {
	// Company lookup does not go through the control plane checks.
	s.r.POST("/api/match", s.handlePostMatch())

	if api := s.r.Group("/api", s.requireValidOSVersion(), s.setSessionCookie(), s.requireCSRF()); api != nil {
		// These routes are not protected by authentication.
		if login := api.Group("/login"); login != nil {
			login.GET("/setting", s.handleGetLoginSetting())
			login.POST("", s.handlePostLogin())
			login.POST("/code/send", s.handlePostCodeSend())
			login.POST("/code/verify", s.handlePostCodeVerify())
		}

		if tps := api.Group("/tpslogin"); tps != nil {
			tps.GET("/link", s.handleGetTPSLink())
			tps.POST("/token/check", s.handlePostTokenCheck())
		}

		api.POST("/lookup", s.handlePostLookup())

		// These routes require a logged in session.
		if vpn := api.Group("/vpn", s.requireLogin()); vpn != nil {
			vpn.GET("/list", s.handleGetVPNList())
		}
	}

	// Routes served on the API port of each VPN endpoint.
	if vpn := s.r.Group("/vpn", s.requireValidOSVersion(), s.setSessionCookie(), s.requireCSRF(), s.requireLogin()); vpn != nil {
		vpn.GET("/ping", s.handleGetPing())
		vpn.POST("/conn", s.handlePostConn())
		vpn.POST("/report", s.handlePostReport())
	}
}

func (s *Server) requireValidOSVersion() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("os") == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, corplink.Response[any]{
				Code:    errorCode,
				Message: "Missing os parameter",
			})
		} else if ok := s.validateOSVersion(c.Query("os_version")); !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, corplink.Response[any]{
				Code:    errorCode,
				Message: "This version of the app is no longer supported, please update to continue using the app",
			})
		}
	}
}

func (s *Server) validateOSVersion(osVersion string) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.minOSVersion == nil {
		return true
	}

	version, err := semver.NewVersion(osVersion)
	if err != nil {
		return false
	}

	return !version.LessThan(s.minOSVersion)
}

// setSessionCookie hands out a session and a CSRF token to new clients.
func (s *Server) setSessionCookie() gin.HandlerFunc {
	return func(c *gin.Context) {
		if cookie, err := c.Request.Cookie(sessionCookie); errors.Is(err, http.ErrNoCookie) {
			sessionID := uuid.NewString()

			c.SetCookie(sessionCookie, sessionID, cookieMaxAge, "/", "", true, true)
			c.SetCookie(csrfCookie, uuid.NewString(), cookieMaxAge, "/", "", true, false)

			c.Set("SessionID", sessionID)
		} else {
			c.Set("SessionID", cookie.Value)
		}
	}
}

// requireCSRF rejects state changing requests not echoing the CSRF cookie.
func (s *Server) requireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			return
		}

		cookie, err := c.Request.Cookie(csrfCookie)
		if err != nil {
			return
		}

		if c.GetHeader(csrfHeader) != cookie.Value {
			c.AbortWithStatus(http.StatusForbidden)
		}
	}
}

// requireLogin answers with the logout code unless the session is logged in.
func (s *Server) requireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetString("SessionID")

		if s.b.ConsumeForcedLogout() {
			s.b.Logout(sessionID)
		}

		username, err := s.b.SessionUser(sessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, corplink.Response[any]{
				Code:    corplink.LogoutCode,
				Message: "logout",
			})

			return
		}

		c.Set("Username", username)
	}
}

func (s *Server) logCalls() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := io.ReadAll(c.Request.Body)
		if err != nil {
			panic(err)
		} else {
			c.Request.Body = io.NopCloser(bytes.NewReader(req))
		}

		res, err := newBodyWriter(c.Writer)
		if err != nil {
			panic(err)
		} else {
			c.Writer = res
		}

		c.Next()

		s.callWatchersLock.RLock()
		defer s.callWatchersLock.RUnlock()

		for _, call := range s.callWatchers {
			if call.isWatching(c.Request.URL.Path) {
				call.publish(Call{
					URL:    c.Request.URL,
					Method: c.Request.Method,
					Status: c.Writer.Status(),

					RequestHeader: c.Request.Header,
					RequestBody:   req,

					ResponseHeader: c.Writer.Header(),
					ResponseBody:   res.bytes(),
				})
			}
		}
	}
}

func (s *Server) handleOffline() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.lock.RLock()
		defer s.lock.RUnlock()

		if s.offline {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
	}
}

// setDate reports the server's possibly skewed clock.
func (s *Server) setDate() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Date", s.now().UTC().Format(http.TimeFormat))
	}
}

type bodyWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func newBodyWriter(w gin.ResponseWriter) (*bodyWriter, error) {
	if w == nil {
		return nil, errors.New("response writer is nil")
	}

	return &bodyWriter{
		ResponseWriter: w,

		buf: &bytes.Buffer{},
	}, nil
}

func (w bodyWriter) Write(b []byte) (int, error) {
	if n, err := w.buf.Write(b); err != nil {
		return n, err
	}

	return w.ResponseWriter.Write(b)
}

func (w bodyWriter) bytes() []byte {
	return w.buf.Bytes()
}
