package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidRate     = errors.New("invalid_rate")
	ErrRateNotFound    = errors.New("rate_not_found")
)

// ExchangeRate holds how many units of Code one base-currency unit
// buys. Rates keep full precision; only invoice amounts are rounded.
type ExchangeRate struct {
	Code      string          `json:"code" gorm:"primaryKey;size:3"`
	Rate      decimal.Decimal `json:"rate" gorm:"type:decimal(30,12);not null"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (ExchangeRate) TableName() string {
	return "exchange_rates"
}

// Conversion is the outcome of a currency conversion. Rate is the
// rate that was applied so callers can snapshot it.
type Conversion struct {
	Amount decimal.Decimal `json:"amount"`
	Rate   decimal.Decimal `json:"rate"`
}

type Service interface {
	// ToBase converts an amount in the given currency into the base
	// currency. A missing rate is an error, never a silent 1:1 pass.
	ToBase(ctx context.Context, amount decimal.Decimal, code string) (Conversion, error)
	// FromBase converts a base-currency amount into the given
	// currency.
	FromBase(ctx context.Context, amount decimal.Decimal, code string) (Conversion, error)
	// Rate returns the stored rate for the given currency code.
	Rate(ctx context.Context, code string) (decimal.Decimal, error)
	// RateTx reads a rate inside an open transaction.
	RateTx(ctx context.Context, tx *gorm.DB, code string) (decimal.Decimal, error)
	// SetRate upserts a rate. Setting the base currency to anything
	// other than 1 is rejected.
	SetRate(ctx context.Context, code string, rate decimal.Decimal) error
	// ListRates returns all stored rates ordered by code.
	ListRates(ctx context.Context) ([]ExchangeRate, error)
	// BaseCurrency reports the configured base currency code.
	BaseCurrency() string
}
