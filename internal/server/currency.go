package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/webafza/billing/internal/authorization"
)

func (s *Server) listRates(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}

	rates, err := s.currencySvc.ListRates(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"base_currency": s.currencySvc.BaseCurrency(),
		"rates":         rates,
	})
}

func (s *Server) setRate(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectRate, authorization.ActionRateManage); err != nil {
		AbortWithError(c, err)
		return
	}

	var payload struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.currencySvc.SetRate(c.Request.Context(), c.Param("code"), payload.Rate); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
