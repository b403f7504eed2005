package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/backoffice/internal/authorization"
	userdomain "github.com/smallbiznis/backoffice/internal/user/domain"
)

// CreateUser provisions an account with a temporary password. Merchant
// admins can only create staff of their own merchant.
func (s *Server) CreateUser(c *gin.Context) {
	var req userdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sess := sessionFromContext(c)
	if sess.HasRole(authorization.RoleMerchantAdmin) {
		role, ok := authorization.ParseRole(req.Role)
		if !ok || !role.IsMerchant() {
			AbortWithError(c, authorization.ErrUnauthorized)
			return
		}
		req.MerchantID = sess.MerchantID.String()
	}

	resp, err := s.userSvc.CreateUser(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) AssignUserRoles(c *gin.Context) {
	var req userdomain.AssignRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = c.Param("id")
	if !s.scopeUser(c, req.UserID) {
		return
	}

	resp, err := s.userSvc.AssignRoles(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddUserRole(c *gin.Context) {
	userID := c.Param("id")
	if !s.scopeUser(c, userID) {
		return
	}

	resp, err := s.userSvc.AddRole(c.Request.Context(), userID, c.Param("roleId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveUserRole(c *gin.Context) {
	userID := c.Param("id")
	if !s.scopeUser(c, userID) {
		return
	}

	resp, err := s.userSvc.RemoveRole(c.Request.Context(), userID, c.Param("roleId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// scopeUser hides users of other merchants from merchant admins.
func (s *Server) scopeUser(c *gin.Context, userID string) bool {
	sess := sessionFromContext(c)
	if !sess.HasRole(authorization.RoleMerchantAdmin) {
		return true
	}
	target, err := s.userSvc.Get(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return false
	}
	if target.MerchantID == nil || !sameMerchant(sess, *target.MerchantID) {
		AbortWithError(c, userdomain.ErrNotFound)
		return false
	}
	return true
}
