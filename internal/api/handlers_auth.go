package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abelzeko/water-watcher/internal/usecases"
)

func (s *Server) register(c *gin.Context) {
	var in usecases.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := s.svc.Auth.Register(c.Request.Context(), in)
	if err != nil {
		handleError(c, err)
		return
	}
	created(c, user)
}

func (s *Server) login(c *gin.Context) {
	var in usecases.LoginInput
	if !bindJSON(c, &in) {
		return
	}
	session, err := s.svc.Auth.Login(c.Request.Context(), in)
	if err != nil {
		handleError(c, err)
		return
	}
	s.setSessionCookie(c, session.Token, int(s.tokens.Expiration().Seconds()))
	ok(c, session)
}

func (s *Server) logout(c *gin.Context) {
	s.setSessionCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

func (s *Server) setSessionCookie(c *gin.Context, token string, maxAge int) {
	if s.cfg.JWT.CookieName == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.JWT.CookieName, token, maxAge, "/", "", s.cfg.JWT.CookieSecure, true)
}

func (s *Server) me(c *gin.Context) {
	user, err := s.svc.Auth.Me(c.Request.Context(), currentUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, user)
}

func (s *Server) forgotPassword(c *gin.Context) {
	var in usecases.ForgotPasswordInput
	if !bindJSON(c, &in) {
		return
	}
	if err := s.svc.Auth.ForgotPassword(c.Request.Context(), in.Email); err != nil {
		handleError(c, err)
		return
	}
	ok(c, gin.H{"message": "If an account exists for that email, a reset link has been sent"})
}

func (s *Server) resetPassword(c *gin.Context) {
	var in usecases.ResetPasswordInput
	if !bindJSON(c, &in) {
		return
	}
	if err := s.svc.Auth.ResetPassword(c.Request.Context(), in); err != nil {
		handleError(c, err)
		return
	}
	ok(c, gin.H{"message": "Password has been reset"})
}
