package server

import (
	"net/http"

	corplink "github.com/corplink-go/go-corplink"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleGetVPNList() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, corplink.Response[[]corplink.VPNInfo]{
			Data: s.b.GetVPNs(),
		})
	}
}

func (s *Server) handleGetPing() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, corplink.Response[string]{
			Data: "pong",
		})
	}
}

func (s *Server) handlePostConn() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req corplink.ConnReq

		if err := c.BindJSON(&req); err != nil {
			return
		}

		info, err := s.b.Connect(c.GetString("SessionID"), req.PublicKey, req.OTP, s.now())
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, corplink.Response[corplink.WgInfo]{
			Data: info,
		})
	}
}

func (s *Server) handlePostReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req corplink.ReportReq

		if err := c.BindJSON(&req); err != nil {
			return
		}

		s.b.AddReport(req)

		c.JSON(http.StatusOK, corplink.Response[any]{})
	}
}
