package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/webafza/billing/internal/authorization"
	"github.com/webafza/billing/internal/identity"
	invoicedomain "github.com/webafza/billing/internal/invoice/domain"
	promotiondomain "github.com/webafza/billing/internal/promotion/domain"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

const promotionPercentage = promotiondomain.DiscountPercentage

func (s *Service) Update(ctx context.Context, actor identity.Actor, id snowflake.ID, req invoicedomain.UpdateRequest) (*invoicedomain.Invoice, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceUpdate); err != nil {
		return nil, err
	}
	if err := validatePatch(req); err != nil {
		return nil, err
	}

	var updated *invoicedomain.Invoice
	var transition [2]invoicedomain.Status
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.load(ctx, tx, id, true)
		if err != nil {
			return err
		}

		previousStatus := invoice.Status
		if err := s.applyPatch(invoice, req); err != nil {
			return err
		}

		// Amount-bearing patches recompute every derived value from
		// scratch; incremental adjustment of a stored total drifts.
		// Anything else (status, due date, references) keeps the
		// stored amounts and the stored exchange rate untouched.
		if touchesAmounts(req) {
			if err := s.recompute(ctx, tx, invoice); err != nil {
				return err
			}
		}

		if req.Status != nil && *req.Status == invoicedomain.StatusPaid && previousStatus != invoicedomain.StatusPaid {
			if err := s.applyPaidCascade(ctx, tx, invoice); err != nil {
				return err
			}
		}

		invoice.UpdatedAt = s.clock.Now()
		if err := tx.WithContext(ctx).Omit("Items").Save(invoice).Error; err != nil {
			return err
		}
		if req.Items != nil {
			if err := tx.WithContext(ctx).Where("invoice_id = ?", invoice.ID).Delete(&invoicedomain.InvoiceItem{}).Error; err != nil {
				return err
			}
			if len(invoice.Items) > 0 {
				if err := tx.WithContext(ctx).Create(&invoice.Items).Error; err != nil {
					return err
				}
			}
		}

		updated = invoice
		transition = [2]invoicedomain.Status{previousStatus, invoice.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, "invoice.updated", updated.ID, map[string]any{
		"status": string(updated.Status),
	})
	if transition[0] != transition[1] {
		s.metrics.RecordInvoiceTransition(ctx, string(transition[0]), string(transition[1]))
	}
	return updated, nil
}

// touchesAmounts reports whether the patch changes anything the
// derived totals depend on. The exchange rate captured at checkout is
// re-read only for these patches.
func touchesAmounts(req invoicedomain.UpdateRequest) bool {
	return req.Items != nil || req.TaxRate != nil || req.Promotion != nil || req.Currency != nil
}

func validatePatch(req invoicedomain.UpdateRequest) error {
	if req.Status != nil && !req.Status.Valid() {
		return invoicedomain.ErrInvalidStatus
	}
	if req.TaxRate != nil && (req.TaxRate.IsNegative() || req.TaxRate.GreaterThan(hundred)) {
		return invoicedomain.ErrInvalidTaxRate
	}
	if req.Items != nil {
		for _, item := range *req.Items {
			if item.Quantity <= 0 || item.UnitPrice.IsNegative() || strings.TrimSpace(item.Description) == "" {
				return invoicedomain.ErrInvalidItem
			}
		}
	}
	return nil
}

func (s *Service) applyPatch(invoice *invoicedomain.Invoice, req invoicedomain.UpdateRequest) error {
	if req.Items != nil {
		items := make([]invoicedomain.InvoiceItem, 0, len(*req.Items))
		for i, patch := range *req.Items {
			items = append(items, invoicedomain.InvoiceItem{
				ID:          s.genID.Generate(),
				InvoiceID:   invoice.ID,
				Description: strings.TrimSpace(patch.Description),
				Quantity:    patch.Quantity,
				UnitPrice:   patch.UnitPrice.Round(2),
				Position:    i,
			})
		}
		invoice.Items = items
	}
	if req.TaxRate != nil {
		invoice.TaxRate = *req.TaxRate
	}
	if req.Promotion != nil {
		invoice.Promotion = *req.Promotion
	}
	if req.Currency != nil {
		code := strings.ToUpper(strings.TrimSpace(*req.Currency))
		invoice.Currency = code
	}
	if req.Status != nil {
		if !invoicedomain.CanTransition(invoice.Status, *req.Status) {
			return invoicedomain.ErrInvalidTransition
		}
		invoice.Status = *req.Status
	}
	if req.DueDate != nil {
		invoice.DueDate = *req.DueDate
	}
	if req.UserID != nil {
		if *req.UserID == 0 {
			invoice.UserID = nil
		} else {
			invoice.UserID = req.UserID
		}
	}
	if req.PackageID != nil {
		if *req.PackageID == 0 {
			invoice.PackageID = nil
		} else {
			invoice.PackageID = req.PackageID
		}
	}
	return nil
}

// recompute rebuilds every derived amount from the line items. The
// promotion discount comes from the stored snapshot; a fixed-type
// snapshot keeps its already-computed amount, a percentage one is
// re-applied against the new subtotal.
func (s *Service) recompute(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	subtotal := decimal.Zero
	for i := range invoice.Items {
		item := &invoice.Items[i]
		item.Amount = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		subtotal = subtotal.Add(item.Amount)
	}
	invoice.Subtotal = subtotal.Round(2)

	invoice.TaxAmount = invoice.Subtotal.Mul(invoice.TaxRate).Div(hundred).Round(2)

	discount := decimal.Zero
	if invoice.Promotion.Applied() {
		switch invoice.Promotion.DiscountType {
		case string(promotionPercentage):
			discount = invoice.Subtotal.Mul(invoice.Promotion.DiscountValue).Div(hundred)
		default:
			discount = invoice.Promotion.DiscountAmount
		}
		invoice.Promotion.DiscountAmount = discount.Round(2)
	}

	total := invoice.Subtotal.Add(invoice.TaxAmount).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	invoice.Total = total.Round(2)

	rate, err := s.currency.RateTx(ctx, tx, invoice.Currency)
	if err != nil {
		return err
	}
	invoice.ExchangeRate = rate
	invoice.TotalInBase = invoice.Total.Div(rate).Round(2)
	return nil
}
