package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/backoffice/internal/auth/domain"
	"github.com/smallbiznis/backoffice/internal/observability/logger"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID                 string `json:"userId"`
	RequiresPasswordChange bool   `json:"requiresPasswordChange"`
	ExpiresAt              string `json:"expiresAt"`
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if !s.admitLogin(c, req.Email) {
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{"data": loginResponse{
		UserID:                 result.UserID.String(),
		RequiresPasswordChange: result.RequiresPasswordChange,
		ExpiresAt:              result.ExpiresAt.UTC().Format(time.RFC3339),
	}})
}

// admitLogin aborts with 429 once the client and email pair has drained its
// attempt budget.
func (s *Server) admitLogin(c *gin.Context, email string) bool {
	ctx := c.Request.Context()
	res, err := s.loginLimit.Allow(ctx, c.ClientIP(), email)
	if err != nil {
		logger.FromContext(ctx).Warn("login rate limit check failed", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return false
	}
	if res.Allowed {
		return true
	}
	c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
	AbortWithError(c, ErrTooManyRequests)
	return false
}

func (s *Server) Logout(c *gin.Context) {
	if token, ok := s.sessions.ReadToken(c); ok {
		err := s.authsvc.Logout(c.Request.Context(), token)
		if err != nil && !errors.Is(err, authdomain.ErrInvalidSession) {
			AbortWithError(c, err)
			return
		}
	}
	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) ChangePassword(c *gin.Context) {
	var req authdomain.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sess := sessionFromContext(c)
	req.UserID = sess.UserID
	req.SessionID = sessionIDFromContext(c)
	if err := s.authsvc.ChangePassword(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	sess := sessionFromContext(c)
	resp, err := s.userSvc.Me(c.Request.Context(), sess.UserID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Guard answers the page redirect question for the SPA. Anonymous
// callers get a decision too.
func (s *Server) Guard(c *gin.Context) {
	destination := strings.TrimSpace(c.Query("destination"))
	if destination == "" {
		AbortWithError(c, newValidationError("destination", "required", "destination is required"))
		return
	}
	decision := s.guard.Page(c.Request.Context(), sessionFromContext(c), destination)
	c.JSON(http.StatusOK, gin.H{"data": decision})
}
