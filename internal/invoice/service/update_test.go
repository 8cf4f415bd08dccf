package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webafza/billing/internal/authorization"
	catalogdomain "github.com/webafza/billing/internal/catalog/domain"
	currencydomain "github.com/webafza/billing/internal/currency/domain"
	"github.com/webafza/billing/internal/identity"
	invoicedomain "github.com/webafza/billing/internal/invoice/domain"
	paymentdomain "github.com/webafza/billing/internal/payment/domain"
	userdomain "github.com/webafza/billing/internal/user/domain"
)

func (f *fixture) checkoutInvoice(t *testing.T, user *userdomain.User, basePrice float64) *invoicedomain.Invoice {
	t.Helper()
	ctx := context.Background()
	pkg := f.seedPackage(t, "Hosting", "Plan A", basePrice)
	f.fillCart(t, user.ID, pkg, 1, catalogdomain.CycleOneTime)
	resp, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actorFor(user, identity.RoleUser)})
	require.NoError(t, err)
	return f.getInvoice(t, actorFor(user, identity.RoleAdmin), resp.InvoiceID)
}

func TestUpdateRequiresPrivilege(t *testing.T) {
	f := setup(t)
	user := f.seedUser(t, "ada@example.com")
	invoice := f.checkoutInvoice(t, user, 100)

	rate := decimal.NewFromInt(10)
	_, err := f.invoice.Update(context.Background(), actorFor(user, identity.RoleUser), invoice.ID,
		invoicedomain.UpdateRequest{TaxRate: &rate})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestUpdateRecomputesTotalsFromScratch(t *testing.T) {
	f := setup(t)
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	invoice := f.checkoutInvoice(t, user, 100)

	items := []invoicedomain.ItemPatch{
		{Description: "Line one", Quantity: 3, UnitPrice: decimal.NewFromFloat(19.99)},
		{Description: "Line two", Quantity: 1, UnitPrice: decimal.NewFromFloat(5.01)},
	}
	rate := decimal.NewFromInt(10)
	updated, err := f.invoice.Update(context.Background(), admin, invoice.ID, invoicedomain.UpdateRequest{
		Items:   &items,
		TaxRate: &rate,
	})
	require.NoError(t, err)

	// subtotal 64.98, tax 6.50 (rounded), total 71.48
	assert.True(t, updated.Subtotal.Equal(decimal.NewFromFloat(64.98)), updated.Subtotal.String())
	assert.True(t, updated.TaxAmount.Equal(decimal.NewFromFloat(6.50)), updated.TaxAmount.String())
	assert.True(t, updated.Total.Equal(decimal.NewFromFloat(71.48)), updated.Total.String())
	assert.True(t, updated.TotalInBase.Equal(updated.Total), "base currency invoice converts 1:1")
	require.Len(t, updated.Items, 2)
	assert.True(t, updated.Items[0].Amount.Equal(decimal.NewFromFloat(59.97)))
}

func TestUpdateEmptyItemsProducesZeroTotals(t *testing.T) {
	f := setup(t)
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	invoice := f.checkoutInvoice(t, user, 100)

	items := []invoicedomain.ItemPatch{}
	updated, err := f.invoice.Update(context.Background(), admin, invoice.ID, invoicedomain.UpdateRequest{
		Items: &items,
	})
	require.NoError(t, err)
	assert.True(t, updated.Subtotal.IsZero())
	assert.True(t, updated.Total.IsZero())
	assert.True(t, updated.TotalInBase.IsZero())
	assert.Empty(t, updated.Items)
}

func TestUpdatePercentageSnapshotReappliedFixedTrusted(t *testing.T) {
	f := setup(t)
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	invoice := f.checkoutInvoice(t, user, 100)
	ctx := context.Background()

	// A percentage snapshot is re-applied against the new subtotal.
	percent := invoicedomain.PromotionSnapshot{
		Code: "SAVE10", DiscountType: "percentage",
		DiscountValue: decimal.NewFromInt(10), DiscountAmount: decimal.NewFromInt(10),
	}
	items := []invoicedomain.ItemPatch{{Description: "Line", Quantity: 1, UnitPrice: decimal.NewFromInt(200)}}
	updated, err := f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{
		Items: &items, Promotion: &percent,
	})
	require.NoError(t, err)
	assert.True(t, updated.Promotion.DiscountAmount.Equal(decimal.NewFromInt(20)), updated.Promotion.DiscountAmount.String())
	assert.True(t, updated.Total.Equal(decimal.NewFromInt(180)), updated.Total.String())

	// A fixed snapshot keeps its stored amount; the live promotion is
	// never re-read.
	fixed := invoicedomain.PromotionSnapshot{
		Code: "FLAT15", DiscountType: "fixed",
		DiscountValue: decimal.NewFromInt(15), DiscountAmount: decimal.NewFromInt(15),
	}
	updated, err = f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{Promotion: &fixed})
	require.NoError(t, err)
	assert.True(t, updated.Promotion.DiscountAmount.Equal(decimal.NewFromInt(15)))
	assert.True(t, updated.Total.Equal(decimal.NewFromInt(185)), updated.Total.String())
}

func TestUpdateDiscountNeverProducesNegativeTotal(t *testing.T) {
	f := setup(t)
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	invoice := f.checkoutInvoice(t, user, 10)

	fixed := invoicedomain.PromotionSnapshot{
		Code: "HUGE", DiscountType: "fixed",
		DiscountValue: decimal.NewFromInt(500), DiscountAmount: decimal.NewFromInt(500),
	}
	updated, err := f.invoice.Update(context.Background(), admin, invoice.ID, invoicedomain.UpdateRequest{Promotion: &fixed})
	require.NoError(t, err)
	assert.True(t, updated.Total.IsZero(), updated.Total.String())
}

func TestUpdateCurrencyRederivesBaseTotal(t *testing.T) {
	f := setup(t)
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	invoice := f.checkoutInvoice(t, user, 100)
	f.seedRate(t, "EUR", 2.0)

	currency := "eur"
	updated, err := f.invoice.Update(context.Background(), admin, invoice.ID, invoicedomain.UpdateRequest{Currency: &currency})
	require.NoError(t, err)
	assert.Equal(t, "EUR", updated.Currency)
	assert.True(t, updated.ExchangeRate.Equal(decimal.NewFromInt(2)))
	// Items stay denominated as entered; only the base conversion is
	// re-derived.
	assert.True(t, updated.TotalInBase.Equal(decimal.NewFromInt(50)), updated.TotalInBase.String())
}

func TestUpdateStatusOnlyKeepsStoredExchangeRate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)

	f.seedRate(t, "EUR", 2.0)
	pkg := f.seedPackage(t, "Hosting", "Plan A", 100)
	f.fillCart(t, user.ID, pkg, 1, catalogdomain.CycleOneTime)
	_, err := f.cart.SetCurrency(ctx, user.ID, "EUR")
	require.NoError(t, err)
	resp, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actorFor(user, identity.RoleUser)})
	require.NoError(t, err)
	invoice := f.getInvoice(t, admin, resp.InvoiceID)
	require.True(t, invoice.ExchangeRate.Equal(decimal.NewFromInt(2)))

	// The market moves after checkout. The invoice keeps the rate it
	// was priced at; only amount-bearing patches re-read the table.
	require.NoError(t, f.db.Model(&currencydomain.ExchangeRate{}).
		Where("code = ?", "EUR").Update("rate", decimal.NewFromInt(3)).Error)

	paid := invoicedomain.StatusPaid
	updated, err := f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{Status: &paid})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, updated.Status)
	assert.True(t, updated.ExchangeRate.Equal(decimal.NewFromInt(2)), updated.ExchangeRate.String())
	assert.True(t, updated.Total.Equal(invoice.Total), updated.Total.String())
	assert.True(t, updated.TotalInBase.Equal(invoice.TotalInBase), updated.TotalInBase.String())

	// The cascade payment settles at the stored rate too.
	var payments []paymentdomain.Payment
	require.NoError(t, f.db.Where("invoice_id = ?", invoice.ID).Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].ExchangeRate.Equal(decimal.NewFromInt(2)))
	assert.True(t, payments[0].AmountInBase.Equal(invoice.TotalInBase))
}

func TestUpdateRejectsInvalidPatches(t *testing.T) {
	f := setup(t)
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	invoice := f.checkoutInvoice(t, user, 100)
	ctx := context.Background()

	bad := invoicedomain.Status("bogus")
	_, err := f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{Status: &bad})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)

	negative := decimal.NewFromInt(-1)
	_, err = f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{TaxRate: &negative})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTaxRate)

	items := []invoicedomain.ItemPatch{{Description: "", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}}
	_, err = f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{Items: &items})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidItem)

	archived := invoicedomain.StatusArchived
	_, err = f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{Status: &archived})
	require.NoError(t, err)
	sent := invoicedomain.StatusSent
	_, err = f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{Status: &sent})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	missing := f.node.Generate()
	_, err = f.invoice.Update(ctx, admin, missing, invoicedomain.UpdateRequest{})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestUpdateNormalizesEmptyReferences(t *testing.T) {
	f := setup(t)
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	invoice := f.checkoutInvoice(t, user, 100)

	// Zero-valued references clear the field instead of failing.
	zero := snowflake.ID(0)
	updated, err := f.invoice.Update(context.Background(), admin, invoice.ID, invoicedomain.UpdateRequest{
		UserID:    &zero,
		PackageID: &zero,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.UserID)
	assert.Nil(t, updated.PackageID)
}
