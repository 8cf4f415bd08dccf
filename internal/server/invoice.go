package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/webafza/billing/internal/invoice/domain"
	"github.com/webafza/billing/internal/identity"
	"net/http"
)

func requireActor(c *gin.Context) (identity.Actor, bool) {
	actor, ok := actorFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return identity.Actor{}, false
	}
	return actor, true
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(name, "invalid_id", "malformed identifier"))
		return 0, false
	}
	return id, true
}

// parseOptionalID treats an absent or empty string as "not set"
// instead of a malformed reference.
func parseOptionalID(field, raw string) (*snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return nil, newValidationError(field, "invalid_id", "malformed identifier")
	}
	return &id, nil
}

type checkoutPayload struct {
	UserID   string `json:"user_id"`
	ClientID string `json:"client_id"`
}

func (s *Server) checkout(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var payload checkoutPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	userID, err := parseOptionalID("user_id", payload.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	clientID, err := parseOptionalID("client_id", payload.ClientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.Checkout(c.Request.Context(), invoicedomain.CheckoutRequest{
		Actor:               actor,
		BeneficiaryUserID:   userID,
		BeneficiaryClientID: clientID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"message":    "invoice created",
		"invoice_id": resp.InvoiceID.String(),
		"number":     resp.Number,
	})
}

func (s *Server) listInvoices(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	req := invoicedomain.ListRequest{
		Status: invoicedomain.Status(strings.TrimSpace(c.Query("status"))),
	}
	if userID, err := parseOptionalID("user_id", c.Query("user_id")); err == nil && userID != nil {
		req.UserID = *userID
	}
	if clientID, err := parseOptionalID("client_id", c.Query("client_id")); err == nil && clientID != nil {
		req.ClientID = *clientID
	}

	invoices, err := s.invoiceSvc.List(c.Request.Context(), actor, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (s *Server) getInvoice(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	invoice, err := s.invoiceSvc.Get(c.Request.Context(), actor, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

type invoiceItemPayload struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type promotionSnapshotPayload struct {
	Code           string          `json:"code"`
	DiscountType   string          `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type updateInvoicePayload struct {
	Items     *[]invoiceItemPayload     `json:"items"`
	TaxRate   *decimal.Decimal          `json:"tax_rate"`
	Promotion *promotionSnapshotPayload `json:"promotion"`
	Currency  *string                   `json:"currency"`
	Status    *string                   `json:"status"`
	DueDate   *time.Time                `json:"due_date"`
	UserID    *string                   `json:"user_id"`
	PackageID *string                   `json:"package_id"`
}

func (s *Server) updateInvoice(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var payload updateInvoicePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := invoicedomain.UpdateRequest{
		TaxRate: payload.TaxRate,
		DueDate: payload.DueDate,
	}
	if payload.Items != nil {
		items := make([]invoicedomain.ItemPatch, 0, len(*payload.Items))
		for _, item := range *payload.Items {
			items = append(items, invoicedomain.ItemPatch{
				Description: item.Description,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
			})
		}
		req.Items = &items
	}
	if payload.Promotion != nil {
		req.Promotion = &invoicedomain.PromotionSnapshot{
			Code:           payload.Promotion.Code,
			DiscountType:   payload.Promotion.DiscountType,
			DiscountValue:  payload.Promotion.DiscountValue,
			DiscountAmount: payload.Promotion.DiscountAmount,
		}
	}
	if payload.Currency != nil {
		req.Currency = payload.Currency
	}
	if payload.Status != nil {
		status := invoicedomain.Status(strings.ToLower(strings.TrimSpace(*payload.Status)))
		req.Status = &status
	}
	// Empty-string references clear the field rather than failing to
	// parse.
	if payload.UserID != nil {
		userID, err := parseOptionalID("user_id", *payload.UserID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		zero := snowflake.ID(0)
		if userID == nil {
			req.UserID = &zero
		} else {
			req.UserID = userID
		}
	}
	if payload.PackageID != nil {
		packageID, err := parseOptionalID("package_id", *payload.PackageID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		zero := snowflake.ID(0)
		if packageID == nil {
			req.PackageID = &zero
		} else {
			req.PackageID = packageID
		}
	}

	invoice, err := s.invoiceSvc.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (s *Server) deleteInvoice(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := s.invoiceSvc.Delete(c.Request.Context(), actor, id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
