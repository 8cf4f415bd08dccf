package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/webafza/billing/internal/client/domain"
	invoicedomain "github.com/webafza/billing/internal/invoice/domain"
	paymentdomain "github.com/webafza/billing/internal/payment/domain"
	provisioningdomain "github.com/webafza/billing/internal/provisioning/domain"
	userdomain "github.com/webafza/billing/internal/user/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// applyPaidCascade runs the side effects of entering the paid state:
// one Payment, a Service window for the invoice's package, and a
// Client backfill for the beneficiary. All three share the update's
// transaction, so a crash mid-cascade rolls the status change back
// too.
func (s *Service) applyPaidCascade(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	created, err := s.recordPayment(ctx, tx, invoice)
	if err != nil {
		return err
	}
	if created {
		s.metrics.RecordPaymentRecorded(ctx, invoice.Currency)
	}

	beneficiary, err := s.resolvePaidBeneficiary(ctx, tx, invoice)
	if err != nil {
		return err
	}
	if beneficiary == nil {
		// Billing must not be blocked by provisioning ambiguity; the
		// financial state change stands, provisioning is skipped.
		s.log.Warn("paid invoice has no resolvable beneficiary, skipping service activation",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("number", invoice.Number),
		)
		return nil
	}

	if invoice.PackageID != nil {
		if err := s.activateService(ctx, tx, invoice, *beneficiary); err != nil {
			return err
		}
		s.metrics.RecordServiceActivated(ctx)
	}

	if _, err := s.client.ResolveOrCreate(ctx, tx, *beneficiary); err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			s.log.Warn("beneficiary user missing, skipping client backfill",
				zap.String("invoice_id", invoice.ID.String()),
				zap.String("user_id", beneficiary.String()),
			)
			return nil
		}
		return err
	}
	return nil
}

// recordPayment creates the payment for this invoice unless one
// already exists. The existence check plus the unique index on
// invoice_id keep a repeated paid transition from double-booking.
func (s *Service) recordPayment(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) (bool, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&paymentdomain.Payment{}).
		Where("invoice_id = ?", invoice.ID).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	payment := paymentdomain.Payment{
		ID:           s.genID.Generate(),
		InvoiceID:    invoice.ID,
		Amount:       invoice.Total,
		Currency:     invoice.Currency,
		AmountInBase: invoice.TotalInBase,
		ExchangeRate: invoice.ExchangeRate,
		Status:       paymentdomain.StatusCompleted,
		Note:         fmt.Sprintf("Automatic payment for invoice %s", invoice.Number),
		CreatedAt:    s.clock.Now(),
	}
	result := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "invoice_id"}},
		DoNothing: true,
	}).Create(&payment)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) resolvePaidBeneficiary(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) (*snowflake.ID, error) {
	if invoice.UserID != nil && *invoice.UserID != 0 {
		return invoice.UserID, nil
	}

	var client clientdomain.Client
	err := tx.WithContext(ctx).First(&client, "id = ?", invoice.ClientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if client.LinkedUserID == nil || *client.LinkedUserID == 0 {
		return nil, nil
	}
	return client.LinkedUserID, nil
}

// activateService upserts the (user, package) entitlement. A repeat
// purchase replaces the validity window, it never stacks.
func (s *Service) activateService(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, userID snowflake.ID) error {
	now := s.clock.Now()
	cfg := s.billing.Get()
	svc := provisioningdomain.Service{
		ID:        s.genID.Generate(),
		UserID:    userID,
		PackageID: *invoice.PackageID,
		InvoiceID: invoice.ID,
		Status:    provisioningdomain.StatusActive,
		Price:     invoice.Total,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, cfg.ServiceDays),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "package_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"invoice_id", "status", "price", "start_date", "end_date", "updated_at",
		}),
	}).Create(&svc).Error
}
