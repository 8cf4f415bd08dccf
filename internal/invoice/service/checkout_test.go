package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auditdomain "github.com/webafza/billing/internal/audit/domain"
	auditrepository "github.com/webafza/billing/internal/audit/repository"
	auditservice "github.com/webafza/billing/internal/audit/service"
	"github.com/webafza/billing/internal/authorization"
	cartdomain "github.com/webafza/billing/internal/cart/domain"
	cartservice "github.com/webafza/billing/internal/cart/service"
	catalogdomain "github.com/webafza/billing/internal/catalog/domain"
	catalogservice "github.com/webafza/billing/internal/catalog/service"
	clientdomain "github.com/webafza/billing/internal/client/domain"
	clientservice "github.com/webafza/billing/internal/client/service"
	"github.com/webafza/billing/internal/clock"
	"github.com/webafza/billing/internal/config"
	currencydomain "github.com/webafza/billing/internal/currency/domain"
	currencyservice "github.com/webafza/billing/internal/currency/service"
	"github.com/webafza/billing/internal/identity"
	invoicedomain "github.com/webafza/billing/internal/invoice/domain"
	paymentdomain "github.com/webafza/billing/internal/payment/domain"
	promotiondomain "github.com/webafza/billing/internal/promotion/domain"
	promotionservice "github.com/webafza/billing/internal/promotion/service"
	provisioningdomain "github.com/webafza/billing/internal/provisioning/domain"
	userdomain "github.com/webafza/billing/internal/user/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	invoice invoicedomain.Service
	cart    cartdomain.Service
	catalog catalogdomain.Service
	promo   promotiondomain.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:invoice_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&clientdomain.Client{},
		&catalogdomain.Category{}, &catalogdomain.Package{},
		&cartdomain.Cart{}, &cartdomain.CartItem{},
		&currencydomain.ExchangeRate{},
		&promotiondomain.Promotion{},
		&invoicedomain.Invoice{}, &invoicedomain.InvoiceItem{},
		&paymentdomain.Payment{},
		&provisioningdomain.Service{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(testNow)
	log := zap.NewNop()
	holder := config.NewStaticBillingConfigHolder(config.BillingConfig{
		BaseCurrency: "USD", DefaultCurrency: "USD", InvoiceDueDays: 7, ServiceDays: 30,
	})

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{DB: db, Log: log, Enforcer: enforcer})

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Clock: fc, Repo: auditrepository.Provide(),
	})
	catalogSvc := catalogservice.NewService(catalogservice.Params{DB: db, Log: log, GenID: node, Clock: fc})
	currencySvc := currencyservice.NewService(currencyservice.Params{DB: db, Log: log, Billing: holder, Clock: fc})
	promoSvc := promotionservice.NewService(promotionservice.Params{DB: db, Log: log, GenID: node, Clock: fc, Currency: currencySvc})
	cartSvc := cartservice.NewService(cartservice.Params{DB: db, Log: log, GenID: node, Clock: fc, Catalog: catalogSvc, Currency: currencySvc, Promotion: promoSvc})
	clientSvc := clientservice.NewService(clientservice.Params{DB: db, Log: log, GenID: node, Clock: fc})

	invoiceSvc := NewService(ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fc, Billing: holder,
		Cart: cartSvc, Catalog: catalogSvc, Client: clientSvc,
		Currency: currencySvc, Promotion: promoSvc,
		Authz: authz, AuditSvc: auditSvc,
	})

	return &fixture{
		db: db, node: node, clock: fc,
		invoice: invoiceSvc, cart: cartSvc, catalog: catalogSvc, promo: promoSvc,
	}
}

func (f *fixture) seedUser(t *testing.T, email string) *userdomain.User {
	t.Helper()
	user := userdomain.User{
		ID:        f.node.Generate(),
		Email:     email,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Country:   "GB",
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, f.db.Create(&user).Error)
	return &user
}

func (f *fixture) seedPackage(t *testing.T, category, name string, monthly float64) *catalogdomain.Package {
	t.Helper()
	ctx := context.Background()
	cat, err := f.catalog.CreateCategory(ctx, category)
	require.NoError(t, err)
	pkg, err := f.catalog.CreatePackage(ctx, &catalogdomain.Package{
		CategoryID:   cat.ID,
		Name:         name,
		PriceMonthly: decimal.NewFromFloat(monthly),
		PriceAnnual:  decimal.NewFromFloat(monthly * 10),
		PriceOneTime: decimal.NewFromFloat(monthly),
		Active:       true,
	})
	require.NoError(t, err)
	return pkg
}

func (f *fixture) seedRate(t *testing.T, code string, rate float64) {
	t.Helper()
	require.NoError(t, f.db.Create(&currencydomain.ExchangeRate{
		Code: code, Rate: decimal.NewFromFloat(rate), UpdatedAt: testNow,
	}).Error)
}

func (f *fixture) fillCart(t *testing.T, userID snowflake.ID, pkg *catalogdomain.Package, qty int, cycle catalogdomain.BillingCycle) {
	t.Helper()
	_, err := f.cart.AddItem(context.Background(), userID, pkg.ID, qty, cycle)
	require.NoError(t, err)
}

func actorFor(user *userdomain.User, role identity.Role) identity.Actor {
	return identity.Actor{UserID: user.ID, Role: role}
}

func (f *fixture) getInvoice(t *testing.T, actor identity.Actor, id snowflake.ID) *invoicedomain.Invoice {
	t.Helper()
	invoice, err := f.invoice.Get(context.Background(), actor, id)
	require.NoError(t, err)
	return invoice
}

func TestCheckoutRoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	actor := actorFor(user, identity.RoleUser)

	// Two packages at base prices 100 and 50; one base unit buys 2
	// target units.
	f.seedRate(t, "IRT", 2.0)
	pkgA := f.seedPackage(t, "Hosting", "Plan A", 100)
	pkgB := f.seedPackage(t, "Domains", "Plan B", 50)
	f.fillCart(t, user.ID, pkgA, 2, catalogdomain.CycleOneTime)
	f.fillCart(t, user.ID, pkgB, 1, catalogdomain.CycleOneTime)
	_, err := f.cart.SetCurrency(ctx, user.ID, "IRT")
	require.NoError(t, err)

	resp, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actor})
	require.NoError(t, err)

	invoice := f.getInvoice(t, actor, resp.InvoiceID)
	assert.True(t, invoice.Subtotal.Equal(decimal.NewFromInt(500)), invoice.Subtotal.String())
	assert.True(t, invoice.Total.Equal(decimal.NewFromInt(500)), invoice.Total.String())
	assert.True(t, invoice.TotalInBase.Equal(decimal.NewFromInt(250)), invoice.TotalInBase.String())
	assert.True(t, invoice.ExchangeRate.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "IRT", invoice.Currency)
	assert.Equal(t, invoicedomain.StatusSent, invoice.Status)
	assert.Equal(t, testNow.AddDate(0, 0, 7), invoice.DueDate)
	assert.Regexp(t, `^INV-20250601-\d{4}$`, invoice.Number)
	require.Len(t, invoice.Items, 2)
	require.NotNil(t, invoice.PackageID)
	assert.Equal(t, pkgA.ID, *invoice.PackageID)

	// Checkout empties the cart.
	cart, err := f.cart.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Nil(t, cart.PromotionID)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := setup(t)
	user := f.seedUser(t, "ada@example.com")

	_, err := f.invoice.Checkout(context.Background(), invoicedomain.CheckoutRequest{
		Actor: actorFor(user, identity.RoleUser),
	})
	assert.ErrorIs(t, err, cartdomain.ErrCartEmpty)
}

func TestCheckoutCreatesClientOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	actor := actorFor(user, identity.RoleUser)
	pkg := f.seedPackage(t, "Hosting", "Plan A", 10)

	f.fillCart(t, user.ID, pkg, 1, catalogdomain.CycleMonthly)
	_, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actor})
	require.NoError(t, err)

	f.fillCart(t, user.ID, pkg, 1, catalogdomain.CycleMonthly)
	_, err = f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actor})
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Model(&clientdomain.Client{}).
		Where("linked_user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCheckoutUsesClientPreferredCurrency(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	actor := actorFor(user, identity.RoleUser)

	f.seedRate(t, "EUR", 2.0)
	require.NoError(t, f.db.Create(&clientdomain.Client{
		ID:           f.node.Generate(),
		LinkedUserID: &user.ID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Country:      user.Country,
		Currency:     "eur",
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}).Error)

	// The cart never picked a currency, so the client's preference
	// wins over the system default.
	pkg := f.seedPackage(t, "Hosting", "Plan A", 100)
	f.fillCart(t, user.ID, pkg, 1, catalogdomain.CycleOneTime)

	resp, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actor})
	require.NoError(t, err)

	invoice := f.getInvoice(t, actor, resp.InvoiceID)
	assert.Equal(t, "EUR", invoice.Currency)
	assert.True(t, invoice.ExchangeRate.Equal(decimal.NewFromInt(2)))
	assert.True(t, invoice.Total.Equal(decimal.NewFromInt(200)), invoice.Total.String())
	assert.True(t, invoice.TotalInBase.Equal(decimal.NewFromInt(100)), invoice.TotalInBase.String())
}

func TestCheckoutCartCurrencyBeatsClientPreference(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	actor := actorFor(user, identity.RoleUser)

	f.seedRate(t, "EUR", 2.0)
	f.seedRate(t, "IRT", 4.0)
	require.NoError(t, f.db.Create(&clientdomain.Client{
		ID:           f.node.Generate(),
		LinkedUserID: &user.ID,
		Email:        user.Email,
		Currency:     "EUR",
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}).Error)

	pkg := f.seedPackage(t, "Hosting", "Plan A", 100)
	f.fillCart(t, user.ID, pkg, 1, catalogdomain.CycleOneTime)
	_, err := f.cart.SetCurrency(ctx, user.ID, "IRT")
	require.NoError(t, err)

	resp, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actor})
	require.NoError(t, err)

	invoice := f.getInvoice(t, actor, resp.InvoiceID)
	assert.Equal(t, "IRT", invoice.Currency)
	assert.True(t, invoice.ExchangeRate.Equal(decimal.NewFromInt(4)))
}

func TestCheckoutAppliesPromotionAndConsumesUsage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	actor := actorFor(user, identity.RoleUser)
	pkg := f.seedPackage(t, "Hosting", "Plan A", 100)

	limit := int64(10)
	promo, err := f.promo.Create(ctx, &promotiondomain.Promotion{
		Code: "SAVE20", DiscountType: promotiondomain.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20), IsActive: true, UsageLimit: &limit,
	})
	require.NoError(t, err)

	f.fillCart(t, user.ID, pkg, 1, catalogdomain.CycleOneTime)
	_, err = f.cart.ApplyPromotion(ctx, user.ID, "SAVE20")
	require.NoError(t, err)

	resp, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actor})
	require.NoError(t, err)

	invoice := f.getInvoice(t, actor, resp.InvoiceID)
	assert.True(t, invoice.Total.Equal(decimal.NewFromInt(80)), invoice.Total.String())
	assert.Equal(t, "SAVE20", invoice.Promotion.Code)
	assert.True(t, invoice.Promotion.DiscountAmount.Equal(decimal.NewFromInt(20)))

	stored, err := f.promo.Get(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.UsedCount)
}

func TestCheckoutUnusablePromotionYieldsNoDiscount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	actor := actorFor(user, identity.RoleUser)
	pkg := f.seedPackage(t, "Hosting", "Plan A", 100)

	promo, err := f.promo.Create(ctx, &promotiondomain.Promotion{
		Code: "SAVE20", DiscountType: promotiondomain.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20), IsActive: true,
	})
	require.NoError(t, err)

	f.fillCart(t, user.ID, pkg, 1, catalogdomain.CycleOneTime)
	_, err = f.cart.ApplyPromotion(ctx, user.ID, "SAVE20")
	require.NoError(t, err)

	// Deactivated between cart application and checkout.
	inactive := false
	_, err = f.promo.Update(ctx, promo.ID, promotiondomain.UpdatePromotionRequest{IsActive: &inactive})
	require.NoError(t, err)

	resp, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actor})
	require.NoError(t, err)

	invoice := f.getInvoice(t, actor, resp.InvoiceID)
	assert.True(t, invoice.Total.Equal(decimal.NewFromInt(100)))
	assert.False(t, invoice.Promotion.Applied())

	stored, err := f.promo.Get(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.UsedCount)
}

func TestCheckoutBehalfRequiresPrivilege(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	caller := f.seedUser(t, "caller@example.com")
	target := f.seedUser(t, "target@example.com")
	pkg := f.seedPackage(t, "Hosting", "Plan A", 10)
	f.fillCart(t, caller.ID, pkg, 1, catalogdomain.CycleMonthly)

	targetID := target.ID
	_, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{
		Actor:             actorFor(caller, identity.RoleUser),
		BeneficiaryUserID: &targetID,
	})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	resp, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{
		Actor:             actorFor(caller, identity.RoleManager),
		BeneficiaryUserID: &targetID,
	})
	require.NoError(t, err)

	// The cart came from the caller; the invoice belongs to the
	// beneficiary.
	invoice := f.getInvoice(t, actorFor(caller, identity.RoleManager), resp.InvoiceID)
	require.NotNil(t, invoice.UserID)
	assert.Equal(t, target.ID, *invoice.UserID)

	cart, err := f.cart.Get(ctx, caller.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCheckoutBehalfUnknownUser(t *testing.T) {
	f := setup(t)
	caller := f.seedUser(t, "caller@example.com")
	pkg := f.seedPackage(t, "Hosting", "Plan A", 10)
	f.fillCart(t, caller.ID, pkg, 1, catalogdomain.CycleMonthly)

	missing := f.node.Generate()
	_, err := f.invoice.Checkout(context.Background(), invoicedomain.CheckoutRequest{
		Actor:             actorFor(caller, identity.RoleAdmin),
		BeneficiaryUserID: &missing,
	})
	assert.ErrorIs(t, err, userdomain.ErrUserNotFound)
}

func TestCheckoutMissingRateFailsLoudly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	pkg := f.seedPackage(t, "Hosting", "Plan A", 10)
	f.fillCart(t, user.ID, pkg, 1, catalogdomain.CycleMonthly)

	// Currency forced directly so SetCurrency validation cannot save
	// us; checkout itself must refuse the unknown code.
	require.NoError(t, f.db.Model(&cartdomain.Cart{}).
		Where("user_id = ?", user.ID).Update("currency", "XXX").Error)

	_, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actorFor(user, identity.RoleUser)})
	assert.ErrorIs(t, err, currencydomain.ErrRateNotFound)

	// Nothing was committed: the cart still has its item.
	cart, err := f.cart.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	var count int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCheckoutLineDescriptions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	actor := actorFor(user, identity.RoleUser)
	pkg := f.seedPackage(t, "Hosting", "Plan A", 10)

	f.fillCart(t, user.ID, pkg, 1, catalogdomain.CycleMonthly)
	f.fillCart(t, user.ID, pkg, 1, catalogdomain.CycleOneTime)

	resp, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actor})
	require.NoError(t, err)

	invoice := f.getInvoice(t, actor, resp.InvoiceID)
	require.Len(t, invoice.Items, 2)
	assert.Equal(t, "Plan A (monthly)", invoice.Items[0].Description)
	assert.Equal(t, "Plan A", invoice.Items[1].Description)
}
