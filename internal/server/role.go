package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/backoffice/internal/authorization"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
	roledomain "github.com/smallbiznis/backoffice/internal/role/domain"
)

func (s *Server) ListRoles(c *gin.Context) {
	req := roledomain.ListRequest{Type: strings.TrimSpace(c.Query("type"))}
	if merchantCaller(c) {
		req.Type = string(featuredomain.RoleTypeMerchant)
	}

	resp, err := s.roleSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRole(c *gin.Context) {
	resp, err := s.roleSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if merchantCaller(c) && resp.Type != featuredomain.RoleTypeMerchant {
		AbortWithError(c, roledomain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateRole(c *gin.Context) {
	var req roledomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.roleSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateRole(c *gin.Context) {
	var req roledomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = c.Param("id")

	resp, err := s.roleSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteRole(c *gin.Context) {
	if err := s.roleSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// merchantCaller reports whether the session acts for a single merchant.
func merchantCaller(c *gin.Context) bool {
	return sessionFromContext(c).HasRole(authorization.RoleMerchantAdmin, authorization.RoleMerchantStaff)
}
