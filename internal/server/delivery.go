package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	deliverydomain "github.com/smallbiznis/crateflow/internal/delivery/domain"
)

func (s *Server) RecordDeliveryTrip(c *gin.Context) {
	var req deliverydomain.RecordTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.deliverySvc.RecordTrip(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetContainerBalance(c *gin.Context) {
	balances, err := s.deliverySvc.ContainerBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balances})
}

func (s *Server) ListUnbilledDeliveries(c *gin.Context) {
	items, err := s.deliverySvc.ListUnbilled(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListInvoiceDeliveries(c *gin.Context) {
	items, err := s.deliverySvc.ListByInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
