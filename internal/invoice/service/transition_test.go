package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientdomain "github.com/webafza/billing/internal/client/domain"
	"github.com/webafza/billing/internal/identity"
	invoicedomain "github.com/webafza/billing/internal/invoice/domain"
	paymentdomain "github.com/webafza/billing/internal/payment/domain"
	provisioningdomain "github.com/webafza/billing/internal/provisioning/domain"
)

func TestPaidCascadeCreatesPaymentServiceAndClient(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	invoice := f.checkoutInvoice(t, user, 100)

	// Drop the client created during checkout to exercise backfill.
	require.NoError(t, f.db.Where("linked_user_id = ?", user.ID).Delete(&clientdomain.Client{}).Error)

	paid := invoicedomain.StatusPaid
	updated, err := f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{Status: &paid})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, updated.Status)

	var payments []paymentdomain.Payment
	require.NoError(t, f.db.Where("invoice_id = ?", invoice.ID).Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, paymentdomain.StatusCompleted, payments[0].Status)
	assert.True(t, payments[0].Amount.Equal(invoice.Total))
	assert.True(t, payments[0].ExchangeRate.Equal(invoice.ExchangeRate))
	assert.Contains(t, payments[0].Note, invoice.Number)

	var services []provisioningdomain.Service
	require.NoError(t, f.db.Where("user_id = ?", user.ID).Find(&services).Error)
	require.Len(t, services, 1)
	assert.Equal(t, provisioningdomain.StatusActive, services[0].Status)
	assert.Equal(t, *invoice.PackageID, services[0].PackageID)
	assert.Equal(t, testNow, services[0].StartDate)
	assert.Equal(t, testNow.AddDate(0, 0, 30), services[0].EndDate)
	assert.True(t, services[0].Price.Equal(invoice.Total))

	var clients []clientdomain.Client
	require.NoError(t, f.db.Where("linked_user_id = ?", user.ID).Find(&clients).Error)
	require.Len(t, clients, 1)
	assert.Equal(t, user.Email, clients[0].Email)
}

func TestPaidTransitionIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	invoice := f.checkoutInvoice(t, user, 100)

	paid := invoicedomain.StatusPaid
	_, err := f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{Status: &paid})
	require.NoError(t, err)

	var before provisioningdomain.Service
	require.NoError(t, f.db.First(&before, "user_id = ?", user.ID).Error)

	f.clock.Advance(48 * time.Hour)
	_, err = f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{Status: &paid})
	require.NoError(t, err)

	var paymentCount int64
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).
		Where("invoice_id = ?", invoice.ID).Count(&paymentCount).Error)
	assert.Equal(t, int64(1), paymentCount)

	// The service window did not move: paid→paid runs no cascade.
	var after provisioningdomain.Service
	require.NoError(t, f.db.First(&after, "user_id = ?", user.ID).Error)
	assert.Equal(t, before.EndDate, after.EndDate)
}

func TestRepeatPurchaseReplacesServiceWindow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	paid := invoicedomain.StatusPaid

	first := f.checkoutInvoice(t, user, 100)
	_, err := f.invoice.Update(ctx, admin, first.ID, invoicedomain.UpdateRequest{Status: &paid})
	require.NoError(t, err)

	// Second purchase of the same package 10 days later.
	f.clock.Advance(10 * 24 * time.Hour)
	_, err = f.cart.AddItem(ctx, user.ID, *first.PackageID, 1, "one_time")
	require.NoError(t, err)
	resp, err := f.invoice.Checkout(ctx, invoicedomain.CheckoutRequest{Actor: actorFor(user, identity.RoleUser)})
	require.NoError(t, err)
	_, err = f.invoice.Update(ctx, admin, resp.InvoiceID, invoicedomain.UpdateRequest{Status: &paid})
	require.NoError(t, err)

	var services []provisioningdomain.Service
	require.NoError(t, f.db.Where("user_id = ?", user.ID).Find(&services).Error)
	require.Len(t, services, 1)
	assert.Equal(t, resp.InvoiceID, services[0].InvoiceID)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 30), services[0].EndDate)
}

func TestPaidCascadeSkipsProvisioningWithoutBeneficiary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	invoice := f.checkoutInvoice(t, user, 100)

	// Detach the user from invoice and client: no beneficiary is
	// resolvable, yet the financial transition must still succeed.
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).Update("user_id", nil).Error)
	require.NoError(t, f.db.Model(&clientdomain.Client{}).
		Where("id = ?", invoice.ClientID).Update("linked_user_id", nil).Error)

	paid := invoicedomain.StatusPaid
	updated, err := f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{Status: &paid})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, updated.Status)

	var paymentCount int64
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).
		Where("invoice_id = ?", invoice.ID).Count(&paymentCount).Error)
	assert.Equal(t, int64(1), paymentCount)

	var serviceCount int64
	require.NoError(t, f.db.Model(&provisioningdomain.Service{}).Count(&serviceCount).Error)
	assert.Zero(t, serviceCount)
}

func TestNonPaidTransitionHasNoSideEffects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada@example.com")
	admin := actorFor(user, identity.RoleAdmin)
	invoice := f.checkoutInvoice(t, user, 100)

	partial := invoicedomain.StatusPartial
	_, err := f.invoice.Update(ctx, admin, invoice.ID, invoicedomain.UpdateRequest{Status: &partial})
	require.NoError(t, err)

	var paymentCount int64
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).Count(&paymentCount).Error)
	assert.Zero(t, paymentCount)
}
