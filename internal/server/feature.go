package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
)

func (s *Server) ListFeatures(c *gin.Context) {
	active, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	req := featuredomain.ListRequest{Type: strings.TrimSpace(c.Query("type"))}
	if active != nil {
		req.ActiveOnly = *active
	}
	// Merchant admins only see the catalog they can grant from.
	if merchantCaller(c) {
		req.Type = string(featuredomain.RoleTypeMerchant)
	}

	resp, err := s.featureSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateFeature(c *gin.Context) {
	var req featuredomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.featureSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateFeature(c *gin.Context) {
	var req featuredomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = c.Param("id")

	resp, err := s.featureSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteFeature(c *gin.Context) {
	if err := s.featureSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
