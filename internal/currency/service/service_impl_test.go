package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webafza/billing/internal/clock"
	"github.com/webafza/billing/internal/config"
	"github.com/webafza/billing/internal/currency/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:currency_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.ExchangeRate{}))
	return db
}

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	return NewService(Params{
		DB:      setupTestDB(t),
		Log:     zap.NewNop(),
		Billing: config.NewStaticBillingConfigHolder(config.BillingConfig{BaseCurrency: "USD", DefaultCurrency: "USD", InvoiceDueDays: 7, ServiceDays: 30}),
		Clock:   clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
	})
}

func TestBaseCurrencyRateIsOne(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	conv, err := svc.ToBase(ctx, decimal.NewFromFloat(12.34), "USD")
	require.NoError(t, err)
	assert.True(t, conv.Amount.Equal(decimal.NewFromFloat(12.34)))
	assert.True(t, conv.Rate.Equal(decimal.NewFromInt(1)))
}

func TestMissingRateIsAnError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ToBase(ctx, decimal.NewFromInt(10), "EUR")
	assert.ErrorIs(t, err, domain.ErrRateNotFound)

	_, err = svc.FromBase(ctx, decimal.NewFromInt(10), "EUR")
	assert.ErrorIs(t, err, domain.ErrRateNotFound)
}

func TestConversionRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// One base unit buys 2 target units.
	require.NoError(t, svc.SetRate(ctx, "EUR", decimal.NewFromInt(2)))

	fromBase, err := svc.FromBase(ctx, decimal.NewFromInt(250), "EUR")
	require.NoError(t, err)
	assert.True(t, fromBase.Amount.Equal(decimal.NewFromInt(500)), fromBase.Amount.String())
	assert.True(t, fromBase.Rate.Equal(decimal.NewFromInt(2)))

	back, err := svc.ToBase(ctx, fromBase.Amount, "EUR")
	require.NoError(t, err)
	assert.True(t, back.Amount.Equal(decimal.NewFromInt(250)), back.Amount.String())
}

func TestSetRateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SetRate(ctx, "EUR", decimal.Zero), domain.ErrInvalidRate)
	assert.ErrorIs(t, svc.SetRate(ctx, "EUR", decimal.NewFromInt(-1)), domain.ErrInvalidRate)
	assert.ErrorIs(t, svc.SetRate(ctx, "USD", decimal.NewFromFloat(1.01)), domain.ErrInvalidRate)
	assert.ErrorIs(t, svc.SetRate(ctx, "EURO", decimal.NewFromInt(1)), domain.ErrInvalidCurrency)
	assert.ErrorIs(t, svc.SetRate(ctx, "E1R", decimal.NewFromInt(1)), domain.ErrInvalidCurrency)
}

func TestSetRateUpsertsAndNormalizes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetRate(ctx, " eur ", decimal.NewFromFloat(1.10)))
	require.NoError(t, svc.SetRate(ctx, "EUR", decimal.NewFromFloat(1.20)))

	rate, err := svc.Rate(ctx, "eur")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromFloat(1.20)))

	rates, err := svc.ListRates(ctx)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "EUR", rates[0].Code)
}
