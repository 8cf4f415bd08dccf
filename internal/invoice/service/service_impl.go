package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/webafza/billing/internal/audit/domain"
	"github.com/webafza/billing/internal/authorization"
	cartdomain "github.com/webafza/billing/internal/cart/domain"
	catalogdomain "github.com/webafza/billing/internal/catalog/domain"
	clientdomain "github.com/webafza/billing/internal/client/domain"
	"github.com/webafza/billing/internal/clock"
	"github.com/webafza/billing/internal/config"
	currencydomain "github.com/webafza/billing/internal/currency/domain"
	"github.com/webafza/billing/internal/identity"
	invoicedomain "github.com/webafza/billing/internal/invoice/domain"
	"github.com/webafza/billing/internal/observability/metrics"
	promotiondomain "github.com/webafza/billing/internal/promotion/domain"
	"github.com/webafza/billing/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Billing   *config.BillingConfigHolder
	Cart      cartdomain.Service
	Catalog   catalogdomain.Service
	Client    clientdomain.Service
	Currency  currencydomain.Service
	Promotion promotiondomain.Service
	Authz     authorization.Service
	AuditSvc  auditdomain.Service
	Metrics   *metrics.Metrics            `optional:"true"`
	Locker    *ratelimit.Locker           `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	billing   *config.BillingConfigHolder
	cart      cartdomain.Service
	catalog   catalogdomain.Service
	client    clientdomain.Service
	currency  currencydomain.Service
	promotion promotiondomain.Service
	authz     authorization.Service
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
	locker    *ratelimit.Locker
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,

		billing:   p.Billing,
		cart:      p.Cart,
		catalog:   p.Catalog,
		client:    p.Client,
		currency:  p.Currency,
		promotion: p.Promotion,
		authz:     p.Authz,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
		locker:    p.Locker,
	}
}

func (s *Service) Get(ctx context.Context, actor identity.Actor, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.load(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, actor, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Service) List(ctx context.Context, actor identity.Actor, req invoicedomain.ListRequest) ([]invoicedomain.Invoice, error) {
	stmt := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).Preload("Items")

	// Non-privileged callers only ever see their own invoices.
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceViewAll); err != nil {
		if !errors.Is(err, authorization.ErrForbidden) {
			return nil, err
		}
		stmt = stmt.Where("user_id = ?", actor.UserID)
	} else if req.UserID != 0 {
		stmt = stmt.Where("user_id = ?", req.UserID)
	}

	if req.ClientID != 0 {
		stmt = stmt.Where("client_id = ?", req.ClientID)
	}
	if req.Status != "" {
		if !req.Status.Valid() {
			return nil, invoicedomain.ErrInvalidStatus
		}
		stmt = stmt.Where("status = ?", req.Status)
	}

	var invoices []invoicedomain.Invoice
	if err := stmt.Order("created_at DESC, id DESC").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) Delete(ctx context.Context, actor identity.Actor, id snowflake.ID) error {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceDelete); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&invoicedomain.InvoiceItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&invoicedomain.Invoice{}, "id = ?", invoice.ID).Error
	})
	if err != nil {
		return err
	}

	s.emitAudit(ctx, actor, "invoice.deleted", id, nil)
	return nil
}

var forUpdate = clause.Locking{Strength: "UPDATE"}

func (s *Service) load(ctx context.Context, tx *gorm.DB, id snowflake.ID, lock bool) (*invoicedomain.Invoice, error) {
	stmt := tx.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC, id ASC")
	})
	if lock && tx.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(forUpdate)
	}

	var invoice invoicedomain.Invoice
	err := stmt.First(&invoice, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) authorizeRead(ctx context.Context, actor identity.Actor, invoice *invoicedomain.Invoice) error {
	if invoice.UserID != nil && *invoice.UserID == actor.UserID {
		return s.authz.Authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceView)
	}
	return s.authz.Authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceViewAll)
}

func (s *Service) emitAudit(ctx context.Context, actor identity.Actor, action string, invoiceID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorID := actor.UserID.String()
	targetID := invoiceID.String()
	_ = s.auditSvc.AuditLog(ctx, "user", &actorID, action, "invoice", &targetID, metadata)
}
