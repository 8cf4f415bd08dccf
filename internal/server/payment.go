package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webafza/billing/internal/authorization"
	paymentdomain "github.com/webafza/billing/internal/payment/domain"
	provisioningdomain "github.com/webafza/billing/internal/provisioning/domain"
)

func (s *Server) listPayments(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	req := paymentdomain.ListPaymentRequest{}
	if id, err := parseOptionalID("invoice_id", c.Query("invoice_id")); err != nil {
		AbortWithError(c, err)
		return
	} else if id != nil {
		req.InvoiceID = *id
	}
	if id, err := parseOptionalID("user_id", c.Query("user_id")); err != nil {
		AbortWithError(c, err)
		return
	} else if id != nil {
		req.UserID = *id
	}

	// Non-privileged actors only see payments against their own invoices.
	err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectPayment, authorization.ActionPaymentViewAll)
	if err != nil {
		if !errors.Is(err, authorization.ErrForbidden) {
			AbortWithError(c, err)
			return
		}
		req.UserID = actor.UserID
	}

	payments, err := s.paymentSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (s *Server) listServices(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	req := provisioningdomain.ListServiceRequest{
		Status: provisioningdomain.Status(c.Query("status")),
	}
	if id, err := parseOptionalID("user_id", c.Query("user_id")); err != nil {
		AbortWithError(c, err)
		return
	} else if id != nil {
		req.UserID = *id
	}
	if id, err := parseOptionalID("package_id", c.Query("package_id")); err != nil {
		AbortWithError(c, err)
		return
	} else if id != nil {
		req.PackageID = *id
	}

	err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectService, authorization.ActionServiceViewAll)
	if err != nil {
		if !errors.Is(err, authorization.ErrForbidden) {
			AbortWithError(c, err)
			return
		}
		req.UserID = actor.UserID
	}

	services, err := s.provisioningSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": services})
}
