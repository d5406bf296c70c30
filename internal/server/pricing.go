package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/smallbiznis/crateflow/internal/pricing/domain"
)

type createPriceRequest struct {
	ClientID      string `json:"client_id"`
	ContainerID   string `json:"container_id"`
	Price         string `json:"price"`
	EffectiveFrom string `json:"effective_from"`
}

func (s *Server) CreatePrice(c *gin.Context) {
	var req createPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	effectiveFrom, err := parseOptionalTime(req.EffectiveFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("effective_from", "invalid_effective_from", "invalid effective_from"))
		return
	}

	entry, err := s.pricingSvc.Insert(c.Request.Context(), pricingdomain.InsertPriceRequest{
		ClientID:      strings.TrimSpace(req.ClientID),
		ContainerID:   strings.TrimSpace(req.ContainerID),
		Price:         strings.TrimSpace(req.Price),
		EffectiveFrom: effectiveFrom,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

func (s *Server) ListPrices(c *gin.Context) {
	var req pricingdomain.ListPriceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entries, err := s.pricingSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

type resolvePriceQuery struct {
	ClientID    string `form:"client_id"`
	ContainerID string `form:"container_id"`
	At          string `form:"at"`
}

func (s *Server) ResolvePrice(c *gin.Context) {
	var query resolvePriceQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	at, err := parseOptionalTime(query.At, true)
	if err != nil {
		AbortWithError(c, newValidationError("at", "invalid_at", "invalid at"))
		return
	}

	entry, err := s.pricingSvc.Resolve(c.Request.Context(), pricingdomain.ResolvePriceRequest{
		ClientID:    strings.TrimSpace(query.ClientID),
		ContainerID: strings.TrimSpace(query.ContainerID),
		At:          at,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}
