package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/backoffice/internal/subscription/domain"
)

// GetSubscriptionStatus is scoped to the caller's merchant and stays
// reachable when the subscription is no longer active.
func (s *Server) GetSubscriptionStatus(c *gin.Context) {
	sess := sessionFromContext(c)
	if sess.MerchantID == nil {
		AbortWithError(c, subscriptiondomain.ErrNotFound)
		return
	}

	resp, err := s.subscriptionSvc.StatusForMerchant(c.Request.Context(), sess.MerchantID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetMerchantSubscription returns a null payload when the merchant has no
// subscription yet.
func (s *Server) GetMerchantSubscription(c *gin.Context) {
	resp, err := s.subscriptionSvc.GetByMerchant(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		c.JSON(http.StatusOK, gin.H{"data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ConvertSubscription(c *gin.Context) {
	resp, err := s.subscriptionSvc.ConvertToPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReactivateSubscription(c *gin.Context) {
	var req subscriptiondomain.ReactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = c.Param("id")

	resp, err := s.subscriptionSvc.Reactivate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
