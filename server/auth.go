package server

import (
	"net/http"

	corplink "github.com/corplink-go/go-corplink"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleGetLoginSetting() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, corplink.Response[corplink.LoginSetting]{
			Data: s.b.GetLoginSetting(),
		})
	}
}

func (s *Server) handleGetTPSLink() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, corplink.Response[[]corplink.TPSLoginMethod]{
			Data: s.b.GetThirdParties(),
		})
	}
}

func (s *Server) handlePostTokenCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req corplink.TokenCheckReq

		if err := c.BindJSON(&req); err != nil {
			return
		}

		redirect, err := s.b.CheckToken(c.GetString("SessionID"), req.Token)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, corplink.Response[corplink.LoginRes]{
			Data: corplink.LoginRes{URL: redirect},
		})
	}
}

func (s *Server) handlePostLookup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req corplink.LookupReq

		if err := c.BindJSON(&req); err != nil {
			return
		}

		methods, err := s.b.LookupMethods(req.UserName)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, corplink.Response[corplink.CorporateLoginMethods]{
			Data: corplink.CorporateLoginMethods{Auth: methods},
		})
	}
}

func (s *Server) handlePostLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req corplink.PasswordLoginReq

		if err := c.BindJSON(&req); err != nil {
			return
		}

		redirect, err := s.b.LoginPassword(c.GetString("SessionID"), req.UserName, req.Password, req.Platform)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, corplink.Response[corplink.LoginRes]{
			Data: corplink.LoginRes{URL: redirect},
		})
	}
}

func (s *Server) handlePostCodeSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req corplink.SendCodeReq

		if err := c.BindJSON(&req); err != nil {
			return
		}

		if req.CodeType != "email" {
			c.JSON(http.StatusOK, corplink.Response[any]{Code: errorCode, Message: "unsupported code type"})
			return
		}

		if err := s.b.SendEmailCode(c.GetString("SessionID"), req.UserName); err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, corplink.Response[any]{})
	}
}

func (s *Server) handlePostCodeVerify() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req corplink.VerifyCodeReq

		if err := c.BindJSON(&req); err != nil {
			return
		}

		redirect, err := s.b.VerifyEmailCode(c.GetString("SessionID"), req.Code)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, corplink.Response[corplink.LoginRes]{
			Data: corplink.LoginRes{URL: redirect},
		})
	}
}

func (s *Server) handlePostMatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req corplink.CompanyReq

		if err := c.BindJSON(&req); err != nil {
			return
		}

		if req.Code == "" {
			c.JSON(http.StatusOK, corplink.Response[any]{Code: errorCode, Message: "company not found"})
			return
		}

		c.JSON(http.StatusOK, corplink.Response[corplink.Company]{
			Data: corplink.Company{
				Name:   req.Code,
				EnName: req.Code,
				Domain: s.s.URL,
			},
		})
	}
}

// writeError answers with a business error; failures are reported in the body with HTTP 200.
func writeError(c *gin.Context, err error) {
	c.JSON(http.StatusOK, corplink.Response[any]{
		Code:    errorCode,
		Message: err.Error(),
	})
}
