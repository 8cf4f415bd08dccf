package seed

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	currencydomain "github.com/webafza/billing/internal/currency/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureBaseRate seeds the base currency with a rate of exactly 1 so
// conversions work on a fresh database. An existing row is left alone.
func EnsureBaseRate(db *gorm.DB, baseCurrency string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	row := currencydomain.ExchangeRate{
		Code: baseCurrency,
		Rate: decimal.NewFromInt(1),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).
		Create(&row).Error
}
