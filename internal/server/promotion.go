package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/webafza/billing/internal/authorization"
	promotiondomain "github.com/webafza/billing/internal/promotion/domain"
	"gorm.io/datatypes"
)

func (s *Server) requirePromotionManage(c *gin.Context) bool {
	actor, ok := requireActor(c)
	if !ok {
		return false
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectPromotion, authorization.ActionPromotionManage); err != nil {
		AbortWithError(c, err)
		return false
	}
	return true
}

func (s *Server) listPromotions(c *gin.Context) {
	if !s.requirePromotionManage(c) {
		return
	}

	req := promotiondomain.ListPromotionRequest{
		Code: strings.TrimSpace(c.Query("code")),
	}
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		active := raw == "true"
		req.IsActive = &active
	}

	promos, err := s.promotionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"promotions": promos})
}

type promotionPayload struct {
	Code                 string           `json:"code"`
	DiscountType         string           `json:"discount_type"`
	DiscountValue        decimal.Decimal  `json:"discount_value"`
	ApplicableCategories []string         `json:"applicable_categories"`
	IsActive             *bool            `json:"is_active"`
	StartDate            *time.Time       `json:"start_date"`
	EndDate              *time.Time       `json:"end_date"`
	UsageLimit           *int64           `json:"usage_limit"`
}

func (s *Server) createPromotion(c *gin.Context) {
	if !s.requirePromotionManage(c) {
		return
	}

	var payload promotionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	promo := promotiondomain.Promotion{
		Code:                 payload.Code,
		DiscountType:         promotiondomain.DiscountType(strings.ToLower(strings.TrimSpace(payload.DiscountType))),
		DiscountValue:        payload.DiscountValue,
		ApplicableCategories: datatypes.JSONSlice[string](payload.ApplicableCategories),
		IsActive:             payload.IsActive == nil || *payload.IsActive,
		StartDate:            payload.StartDate,
		EndDate:              payload.EndDate,
		UsageLimit:           payload.UsageLimit,
	}
	created, err := s.promotionSvc.Create(c.Request.Context(), &promo)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

type updatePromotionPayload struct {
	DiscountType         *string          `json:"discount_type"`
	DiscountValue        *decimal.Decimal `json:"discount_value"`
	ApplicableCategories *[]string        `json:"applicable_categories"`
	IsActive             *bool            `json:"is_active"`
	StartDate            *time.Time       `json:"start_date"`
	EndDate              *time.Time       `json:"end_date"`
	UsageLimit           *int64           `json:"usage_limit"`
}

func (s *Server) updatePromotion(c *gin.Context) {
	if !s.requirePromotionManage(c) {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var payload updatePromotionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := promotiondomain.UpdatePromotionRequest{
		DiscountValue:        payload.DiscountValue,
		ApplicableCategories: payload.ApplicableCategories,
		IsActive:             payload.IsActive,
		StartDate:            payload.StartDate,
		EndDate:              payload.EndDate,
		UsageLimit:           payload.UsageLimit,
	}
	if payload.DiscountType != nil {
		dt := promotiondomain.DiscountType(strings.ToLower(strings.TrimSpace(*payload.DiscountType)))
		req.DiscountType = &dt
	}

	updated, err := s.promotionSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deletePromotion(c *gin.Context) {
	if !s.requirePromotionManage(c) {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := s.promotionSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
