package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/webafza/billing/internal/catalog/domain"
)

func (s *Server) getCart(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	cart, err := s.cartSvc.Get(c.Request.Context(), actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type addCartItemPayload struct {
	PackageID string `json:"package_id" binding:"required"`
	Quantity  int    `json:"quantity"`
	Cycle     string `json:"cycle"`
}

func (s *Server) addCartItem(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var payload addCartItemPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	packageID, err := parseOptionalID("package_id", payload.PackageID)
	if err != nil || packageID == nil {
		AbortWithError(c, newValidationError("package_id", "invalid_id", "malformed identifier"))
		return
	}
	if payload.Quantity == 0 {
		payload.Quantity = 1
	}
	cycle := catalogdomain.BillingCycle(strings.ToLower(strings.TrimSpace(payload.Cycle)))
	if cycle == "" {
		cycle = catalogdomain.CycleMonthly
	}

	cart, err := s.cartSvc.AddItem(c.Request.Context(), actor.UserID, *packageID, payload.Quantity, cycle)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (s *Server) removeCartItem(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	cart, err := s.cartSvc.RemoveItem(c.Request.Context(), actor.UserID, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type cartPromotionPayload struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) applyCartPromotion(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var payload cartPromotionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	cart, err := s.cartSvc.ApplyPromotion(c.Request.Context(), actor.UserID, payload.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (s *Server) removeCartPromotion(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	cart, err := s.cartSvc.RemovePromotion(c.Request.Context(), actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type cartCurrencyPayload struct {
	Currency string `json:"currency" binding:"required"`
}

func (s *Server) setCartCurrency(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var payload cartCurrencyPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	cart, err := s.cartSvc.SetCurrency(c.Request.Context(), actor.UserID, payload.Currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}
