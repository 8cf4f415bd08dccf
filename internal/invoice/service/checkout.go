package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/webafza/billing/internal/authorization"
	cartdomain "github.com/webafza/billing/internal/cart/domain"
	catalogdomain "github.com/webafza/billing/internal/catalog/domain"
	clientdomain "github.com/webafza/billing/internal/client/domain"
	invoicedomain "github.com/webafza/billing/internal/invoice/domain"
	promotiondomain "github.com/webafza/billing/internal/promotion/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const checkoutLockTTL = 15 * time.Second

func (s *Service) Checkout(ctx context.Context, req invoicedomain.CheckoutRequest) (*invoicedomain.CheckoutResponse, error) {
	actor := req.Actor

	behalf := req.BeneficiaryClientID != nil ||
		(req.BeneficiaryUserID != nil && *req.BeneficiaryUserID != actor.UserID)
	action := authorization.ActionCheckout
	if behalf {
		action = authorization.ActionCheckoutBehalf
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectInvoice, action); err != nil {
		return nil, err
	}

	// Two concurrent checkouts of the same cart would both read it
	// non-empty before either clears it; the per-user lock serializes
	// them. Lock acquisition is best-effort: a Redis outage degrades
	// to transaction-level protection only.
	if s.locker != nil {
		key := fmt.Sprintf("billing:checkout:%s", actor.UserID.String())
		token, ok, err := s.locker.TryLock(ctx, key, checkoutLockTTL)
		switch {
		case err != nil:
			s.log.Warn("checkout lock unavailable", zap.Error(err))
		case !ok:
			return nil, invoicedomain.ErrCheckoutInProgress
		default:
			defer func() {
				if err := s.locker.Release(ctx, key, token); err != nil {
					s.log.Warn("checkout lock release failed", zap.Error(err))
				}
			}()
		}
	}

	var resp *invoicedomain.CheckoutResponse
	var appliedPromotion, invoiceCurrency string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The cart checked out is always the caller's own; only the
		// beneficiary of the resulting invoice may differ.
		cart, err := s.cart.GetTx(ctx, tx, actor.UserID)
		if errors.Is(err, cartdomain.ErrCartNotFound) {
			return cartdomain.ErrCartEmpty
		}
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return cartdomain.ErrCartEmpty
		}

		client, beneficiaryUser, err := s.resolveBeneficiary(ctx, tx, req)
		if err != nil {
			return err
		}

		// Currency preference order: the cart's explicit choice, then
		// the client's preferred billing currency, then the system
		// default.
		cfg := s.billing.Get()
		currency := cart.Currency
		if currency == "" {
			currency = strings.ToUpper(strings.TrimSpace(client.Currency))
		}
		if currency == "" {
			currency = cfg.DefaultCurrency
		}
		rate, err := s.currency.RateTx(ctx, tx, currency)
		if err != nil {
			return err
		}
		invoiceCurrency = currency

		now := s.clock.Now()
		invoiceID := s.genID.Generate()
		items := make([]invoicedomain.InvoiceItem, 0, len(cart.Items))
		parts := make([]promotiondomain.CategoryAmount, 0, len(cart.Items))
		subtotal := decimal.Zero
		var firstPackage *snowflake.ID

		for i, line := range cart.Items {
			pkg, err := s.catalog.GetPackageTx(ctx, tx, line.PackageID)
			if err != nil {
				return err
			}
			if firstPackage == nil {
				id := pkg.ID
				firstPackage = &id
			}

			unitPrice := pkg.Price(line.Cycle).Mul(rate).Round(2)
			amount := unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)

			description := pkg.Name
			if line.Cycle != catalogdomain.CycleOneTime {
				description = fmt.Sprintf("%s (%s)", pkg.Name, line.Cycle)
			}

			items = append(items, invoicedomain.InvoiceItem{
				ID:          s.genID.Generate(),
				InvoiceID:   invoiceID,
				Description: description,
				Quantity:    line.Quantity,
				UnitPrice:   unitPrice,
				Amount:      amount,
				Position:    i,
			})

			categorySlug := ""
			if pkg.Category != nil {
				categorySlug = pkg.Category.Slug
			}
			parts = append(parts, promotiondomain.CategoryAmount{CategorySlug: categorySlug, Amount: amount})
			subtotal = subtotal.Add(amount)
		}
		subtotal = subtotal.Round(2)

		snapshot, discount, err := s.applyCartPromotion(ctx, tx, cart, parts, currency, now)
		if err != nil {
			return err
		}
		appliedPromotion = snapshot.Code

		total := subtotal.Sub(discount)
		if total.IsNegative() {
			total = decimal.Zero
		}
		total = total.Round(2)
		totalInBase := total.Div(rate).Round(2)

		invoice := invoicedomain.Invoice{
			ID:           invoiceID,
			ClientID:     client.ID,
			UserID:       beneficiaryUser,
			PackageID:    firstPackage,
			Subtotal:     subtotal,
			TaxRate:      decimal.Zero,
			TaxAmount:    decimal.Zero,
			Promotion:    snapshot,
			Total:        total,
			Currency:     currency,
			ExchangeRate: rate,
			TotalInBase:  totalInBase,
			Status:       invoicedomain.StatusSent,
			IssueDate:    now,
			DueDate:      now.AddDate(0, 0, cfg.InvoiceDueDays),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.insertWithFreshNumber(ctx, tx, &invoice); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
			return err
		}

		if err := s.cart.ClearTx(ctx, tx, cart.ID); err != nil {
			return err
		}

		resp = &invoicedomain.CheckoutResponse{InvoiceID: invoice.ID, Number: invoice.Number}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, "invoice.checkout", resp.InvoiceID, map[string]any{
		"number":    resp.Number,
		"promotion": appliedPromotion,
	})
	s.metrics.RecordCheckout(ctx, invoiceCurrency, appliedPromotion != "")
	return resp, nil
}

func (s *Service) resolveBeneficiary(ctx context.Context, tx *gorm.DB, req invoicedomain.CheckoutRequest) (*clientdomain.Client, *snowflake.ID, error) {
	if req.BeneficiaryClientID != nil {
		var client clientdomain.Client
		err := tx.WithContext(ctx).First(&client, "id = ?", *req.BeneficiaryClientID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, clientdomain.ErrClientNotFound
		}
		if err != nil {
			return nil, nil, err
		}
		return &client, client.LinkedUserID, nil
	}

	userID := req.Actor.UserID
	if req.BeneficiaryUserID != nil {
		userID = *req.BeneficiaryUserID
	}
	client, err := s.client.ResolveOrCreate(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	return client, &userID, nil
}

// applyCartPromotion evaluates and consumes the cart's promotion. A
// promotion that became unusable since it was applied to the cart,
// or whose last use was raced away, drops to a zero discount instead
// of failing the checkout.
func (s *Service) applyCartPromotion(ctx context.Context, tx *gorm.DB, cart *cartdomain.Cart, parts []promotiondomain.CategoryAmount, currency string, now time.Time) (invoicedomain.PromotionSnapshot, decimal.Decimal, error) {
	if cart.PromotionID == nil {
		return invoicedomain.PromotionSnapshot{}, decimal.Zero, nil
	}

	eval, err := s.promotion.Evaluate(ctx, tx, *cart.PromotionID, parts, currency, now)
	if errors.Is(err, promotiondomain.ErrPromotionNotFound) {
		s.log.Warn("cart references deleted promotion",
			zap.String("promotion_id", cart.PromotionID.String()))
		return invoicedomain.PromotionSnapshot{}, decimal.Zero, nil
	}
	if err != nil {
		return invoicedomain.PromotionSnapshot{}, decimal.Zero, err
	}
	if !eval.Usable || !eval.Discount.IsPositive() {
		return invoicedomain.PromotionSnapshot{}, decimal.Zero, nil
	}

	if err := s.promotion.ConsumeUsage(ctx, tx, *cart.PromotionID); err != nil {
		if errors.Is(err, promotiondomain.ErrPromotionExhausted) {
			s.log.Warn("promotion exhausted during checkout",
				zap.String("code", eval.Promotion.Code))
			return invoicedomain.PromotionSnapshot{}, decimal.Zero, nil
		}
		return invoicedomain.PromotionSnapshot{}, decimal.Zero, err
	}

	snapshot := invoicedomain.PromotionSnapshot{
		Code:           eval.Promotion.Code,
		DiscountType:   string(eval.Promotion.DiscountType),
		DiscountValue:  eval.Promotion.DiscountValue,
		DiscountAmount: eval.Discount,
	}
	return snapshot, eval.Discount, nil
}

// insertWithFreshNumber retries number collisions. The conflict target
// is the number index, so a hit means regenerate and try again rather
// than a broken transaction.
func (s *Service) insertWithFreshNumber(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	for attempt := 0; attempt < numberInsertAttempts; attempt++ {
		invoice.Number = invoiceNumber(invoice.IssueDate)
		result := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "number"}},
			DoNothing: true,
		}).Create(invoice)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
	}
	return invoicedomain.ErrNumberExhausted
}
