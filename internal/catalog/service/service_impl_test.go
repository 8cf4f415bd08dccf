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
	"github.com/webafza/billing/internal/catalog/domain"
	"github.com/webafza/billing/internal/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setupTestService(t *testing.T) (*gorm.DB, domain.Service) {
	t.Helper()
	dsn := fmt.Sprintf("file:catalog_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Category{}, &domain.Package{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(testNow),
	})
	return db, svc
}

func TestCreateCategorySlugifiesName(t *testing.T) {
	_, svc := setupTestService(t)

	category, err := svc.CreateCategory(context.Background(), "  Shared Hosting ")
	require.NoError(t, err)
	assert.Equal(t, "Shared Hosting", category.Name)
	assert.Equal(t, "shared-hosting", category.Slug)

	_, err = svc.CreateCategory(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidSlug)
}

func TestCreatePackagePersistsInactiveFlag(t *testing.T) {
	db, svc := setupTestService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, "Hosting")
	require.NoError(t, err)

	created, err := svc.CreatePackage(ctx, &domain.Package{
		CategoryID:   category.ID,
		Name:         "Retired plan",
		PriceMonthly: decimal.NewFromInt(10),
		Active:       false,
	})
	require.NoError(t, err)

	// Reload straight from the table; a column default must not
	// overwrite an explicit false on insert.
	var stored domain.Package
	require.NoError(t, db.First(&stored, "id = ?", created.ID).Error)
	assert.False(t, stored.Active)

	inactive := false
	listed, err := svc.ListPackages(ctx, domain.ListPackageRequest{Active: &inactive})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
}

func TestCreatePackageRejectsNegativePrice(t *testing.T) {
	_, svc := setupTestService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, "Hosting")
	require.NoError(t, err)

	_, err = svc.CreatePackage(ctx, &domain.Package{
		CategoryID:   category.ID,
		Name:         "Bad plan",
		PriceMonthly: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}
