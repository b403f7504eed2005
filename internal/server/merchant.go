package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	merchantdomain "github.com/smallbiznis/backoffice/internal/merchant/domain"
)

// RegisterMerchant is the public self-registration entry point.
func (s *Server) RegisterMerchant(c *gin.Context) {
	var req merchantdomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.merchantSvc.Register(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListPendingMerchants(c *gin.Context) {
	var req merchantdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.merchantSvc.ListPending(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMerchant(c *gin.Context) {
	id := c.Param("id")
	if !sameMerchant(sessionFromContext(c), id) {
		AbortWithError(c, merchantdomain.ErrNotFound)
		return
	}

	resp, err := s.merchantSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApproveMerchant(c *gin.Context) {
	resp, err := s.merchantSvc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ConfirmMerchantApproval is the retry-safe approval used after a client
// lost the response of a previous attempt.
func (s *Server) ConfirmMerchantApproval(c *gin.Context) {
	resp, err := s.merchantSvc.ConfirmApproval(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RejectMerchant(c *gin.Context) {
	var req merchantdomain.RejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	req.ID = c.Param("id")

	resp, err := s.merchantSvc.Reject(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
