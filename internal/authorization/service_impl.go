// Package authorization maps (role, operation) pairs onto allow/deny
// decisions. Every privileged billing operation funnels through
// Authorize instead of checking role lists inline.
package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/webafza/billing/internal/audit/domain"
	"github.com/webafza/billing/internal/identity"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectCart      = "cart"
	ObjectInvoice   = "invoice"
	ObjectPayment   = "payment"
	ObjectPromotion = "promotion"
	ObjectService   = "service"
	ObjectCatalog   = "catalog"
	ObjectRate      = "rate"
	ObjectAuditLog  = "audit_log"
)

const (
	ActionCheckout         = "invoice.checkout"
	ActionCheckoutBehalf   = "invoice.checkout_behalf"
	ActionInvoiceView      = "invoice.view"
	ActionInvoiceViewAll   = "invoice.view_all"
	ActionInvoiceUpdate    = "invoice.update"
	ActionInvoiceDelete    = "invoice.delete"
	ActionPaymentViewAll   = "payment.view_all"
	ActionServiceViewAll   = "service.view_all"
	ActionPromotionManage  = "promotion.manage"
	ActionCatalogManage    = "catalog.manage"
	ActionRateManage       = "rate.manage"
	ActionAuditLogView     = "audit_log.view"
	ActionCartView         = "cart.view"
	ActionCartEdit         = "cart.edit"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

type Service interface {
	Authorize(ctx context.Context, actor identity.Actor, object string, action string) error
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor identity.Actor, object string, action string) error {
	if actor.UserID == 0 || actor.Role == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", actor.UserID.String())
	roleName := fmt.Sprintf("role:%s", strings.ToLower(string(actor.Role)))
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps the subject bound to exactly its current role so
// that role changes upstream take effect immediately.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor identity.Actor, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	actorID := actor.UserID.String()
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, "user", &actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   string(actor.Role),
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Every authenticated user manages their own cart and sees
		// their own invoices; ownership itself is checked by the
		// services, not here.
		{"role:user", ObjectCart, ActionCartView},
		{"role:user", ObjectCart, ActionCartEdit},
		{"role:user", ObjectInvoice, ActionCheckout},
		{"role:user", ObjectInvoice, ActionInvoiceView},

		// Manager permissions
		{"role:manager", ObjectCart, ActionCartView},
		{"role:manager", ObjectCart, ActionCartEdit},
		{"role:manager", ObjectInvoice, ActionCheckout},
		{"role:manager", ObjectInvoice, ActionCheckoutBehalf},
		{"role:manager", ObjectInvoice, ActionInvoiceView},
		{"role:manager", ObjectInvoice, ActionInvoiceViewAll},
		{"role:manager", ObjectInvoice, ActionInvoiceUpdate},
		{"role:manager", ObjectPayment, ActionPaymentViewAll},
		{"role:manager", ObjectService, ActionServiceViewAll},
		{"role:manager", ObjectPromotion, ActionPromotionManage},
		{"role:manager", ObjectCatalog, ActionCatalogManage},

		// Admin permissions
		{"role:admin", ObjectCart, ActionCartView},
		{"role:admin", ObjectCart, ActionCartEdit},
		{"role:admin", ObjectInvoice, ActionCheckout},
		{"role:admin", ObjectInvoice, ActionCheckoutBehalf},
		{"role:admin", ObjectInvoice, ActionInvoiceView},
		{"role:admin", ObjectInvoice, ActionInvoiceViewAll},
		{"role:admin", ObjectInvoice, ActionInvoiceUpdate},
		{"role:admin", ObjectInvoice, ActionInvoiceDelete},
		{"role:admin", ObjectPayment, ActionPaymentViewAll},
		{"role:admin", ObjectService, ActionServiceViewAll},
		{"role:admin", ObjectPromotion, ActionPromotionManage},
		{"role:admin", ObjectCatalog, ActionCatalogManage},
		{"role:admin", ObjectRate, ActionRateManage},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// System permissions (automated processes)
		{"role:system", ObjectInvoice, ActionInvoiceUpdate},
		{"role:system", ObjectInvoice, ActionInvoiceViewAll},
		{"role:system", ObjectPayment, ActionPaymentViewAll},
		{"role:system", ObjectService, ActionServiceViewAll},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
