package migration

import (
	auditdomain "github.com/webafza/billing/internal/audit/domain"
	cartdomain "github.com/webafza/billing/internal/cart/domain"
	catalogdomain "github.com/webafza/billing/internal/catalog/domain"
	clientdomain "github.com/webafza/billing/internal/client/domain"
	"github.com/webafza/billing/internal/config"
	currencydomain "github.com/webafza/billing/internal/currency/domain"
	invoicedomain "github.com/webafza/billing/internal/invoice/domain"
	paymentdomain "github.com/webafza/billing/internal/payment/domain"
	promotiondomain "github.com/webafza/billing/internal/promotion/domain"
	provisioningdomain "github.com/webafza/billing/internal/provisioning/domain"
	"github.com/webafza/billing/internal/seed"
	userdomain "github.com/webafza/billing/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, billing *config.BillingConfigHolder) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres dialects (local sqlite, mysql) rely on the
			// model definitions instead of the SQL migrations.
			if err := conn.AutoMigrate(
				&userdomain.User{},
				&clientdomain.Client{},
				&catalogdomain.Category{},
				&catalogdomain.Package{},
				&currencydomain.ExchangeRate{},
				&promotiondomain.Promotion{},
				&cartdomain.Cart{},
				&cartdomain.CartItem{},
				&invoicedomain.Invoice{},
				&invoicedomain.InvoiceItem{},
				&paymentdomain.Payment{},
				&provisioningdomain.Service{},
				&auditdomain.AuditLog{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureBaseRate(conn, billing.Get().BaseCurrency)
	}),
)
