package server

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/backoffice/internal/auth/domain"
	"github.com/smallbiznis/backoffice/internal/authorization"
	obscontext "github.com/smallbiznis/backoffice/internal/observability/context"
	"github.com/smallbiznis/backoffice/internal/routeguard"
	"go.uber.org/zap"
)

const (
	contextSessionKey   = "session"
	contextSessionIDKey = "session_id"
)

// SessionContext resolves the cookie into an authorization.Session for
// the rest of the chain. A missing or dead session leaves the request
// anonymous; the guard decides whether that is acceptable.
func (s *Server) SessionContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		authed, err := s.authsvc.Authenticate(ctx, token)
		switch {
		case errors.Is(err, authdomain.ErrInvalidSession),
			errors.Is(err, authdomain.ErrSessionExpired),
			errors.Is(err, authdomain.ErrSessionRevoked):
			s.sessions.Clear(c)
			c.Next()
			return
		case err != nil:
			AbortWithError(c, err)
			return
		}

		sess, err := s.buildSession(c, authed)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextSessionKey, sess)
		c.Set(contextSessionIDKey, authed.Session.ID)
		c.Request = c.Request.WithContext(obscontext.WithActor(ctx, sess.UserID.String()))
		c.Next()
	}
}

func (s *Server) buildSession(c *gin.Context, authed *authdomain.Authenticated) (*authorization.Session, error) {
	ctx := c.Request.Context()
	user := authed.User

	perms, err := s.permissions.Resolve(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	sess := &authorization.Session{
		UserID:                 user.ID,
		Email:                  user.Email,
		Role:                   user.Role,
		MerchantID:             user.MerchantID,
		RequiresPasswordChange: user.RequiresPasswordChange,
		Permissions:            perms,
	}

	if user.Role.IsMerchant() && user.MerchantID != nil {
		status, err := s.subscriptionSvc.StatusForMerchant(ctx, user.MerchantID.String())
		if err != nil {
			return nil, err
		}
		active := status.EffectiveIsActive
		sess.SubscriptionActive = &active
	}
	return sess, nil
}

func sessionFromContext(c *gin.Context) *authorization.Session {
	v, ok := c.Get(contextSessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*authorization.Session)
	return sess
}

func sessionIDFromContext(c *gin.Context) snowflake.ID {
	v, ok := c.Get(contextSessionIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(snowflake.ID)
	return id
}

// Require runs the route guard against the first requirement whose
// roles match the caller. Requirements without roles match everyone.
func (s *Server) Require(reqs ...routeguard.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessionFromContext(c)
		req := pickRequirement(sess, reqs)
		decision := s.guard.Check(c.Request.Context(), sess, req, c.FullPath())
		if !decision.Allowed {
			AbortWithError(c, decision.Err())
			return
		}
		c.Next()
	}
}

// RequireSession only needs a live session. A pending password change
// does not block these endpoints.
func (s *Server) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := s.guard.Check(c.Request.Context(), sessionFromContext(c), routeguard.Requirement{}, routeguard.PathChangePassword)
		if !decision.Allowed {
			AbortWithError(c, decision.Err())
			return
		}
		c.Next()
	}
}

func pickRequirement(sess *authorization.Session, reqs []routeguard.Requirement) routeguard.Requirement {
	if len(reqs) == 0 {
		return routeguard.Requirement{}
	}
	for _, req := range reqs {
		if len(req.Roles) == 0 || sess.HasRole(req.Roles...) {
			return req
		}
	}
	return reqs[0]
}

// Authorize is the coarse casbin gate on the caller's legacy role.
func (s *Server) Authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessionFromContext(c)
		if !sess.Authenticated() {
			AbortWithError(c, authorization.ErrUnauthenticated)
			return
		}
		allowed, err := s.enforcer.Allow(sess.Role, object, action)
		if err != nil {
			s.log.Error("casbin enforce failed", zap.Error(err), zap.String("object", object), zap.String("action", action))
			AbortWithError(c, err)
			return
		}
		if !allowed {
			AbortWithError(c, authorization.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// sameMerchant reports whether a merchant-side caller owns merchantID.
// Platform owners see every merchant.
func sameMerchant(sess *authorization.Session, merchantID string) bool {
	if sess.HasRole(authorization.RolePlatformOwner) {
		return true
	}
	if sess.MerchantID == nil {
		return false
	}
	id, err := parseOptionalSnowflakeID(merchantID)
	return err == nil && id != nil && *id == *sess.MerchantID
}
