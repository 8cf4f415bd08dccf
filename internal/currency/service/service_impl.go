package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/webafza/billing/internal/clock"
	"github.com/webafza/billing/internal/config"
	"github.com/webafza/billing/internal/currency/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Billing *config.BillingConfigHolder
	Clock   clock.Clock
}

type ServiceImpl struct {
	db      *gorm.DB
	log     *zap.Logger
	billing *config.BillingConfigHolder
	clock   clock.Clock
}

func NewService(p Params) domain.Service {
	return &ServiceImpl{
		db:      p.DB,
		log:     p.Log.Named("currency.service"),
		billing: p.Billing,
		clock:   p.Clock,
	}
}

func (s *ServiceImpl) BaseCurrency() string {
	return s.billing.Get().BaseCurrency
}

func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", domain.ErrInvalidCurrency
		}
	}
	return code, nil
}

func (s *ServiceImpl) Rate(ctx context.Context, code string) (decimal.Decimal, error) {
	return s.RateTx(ctx, s.db, code)
}

func (s *ServiceImpl) RateTx(ctx context.Context, tx *gorm.DB, code string) (decimal.Decimal, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if code == s.BaseCurrency() {
		return decimal.NewFromInt(1), nil
	}

	var rate domain.ExchangeRate
	err = tx.WithContext(ctx).First(&rate, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Decimal{}, domain.ErrRateNotFound
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !rate.Rate.IsPositive() {
		return decimal.Decimal{}, domain.ErrInvalidRate
	}
	return rate.Rate, nil
}

func (s *ServiceImpl) ToBase(ctx context.Context, amount decimal.Decimal, code string) (domain.Conversion, error) {
	rate, err := s.Rate(ctx, code)
	if err != nil {
		return domain.Conversion{}, err
	}
	return domain.Conversion{Amount: amount.Div(rate), Rate: rate}, nil
}

func (s *ServiceImpl) FromBase(ctx context.Context, amount decimal.Decimal, code string) (domain.Conversion, error) {
	rate, err := s.Rate(ctx, code)
	if err != nil {
		return domain.Conversion{}, err
	}
	return domain.Conversion{Amount: amount.Mul(rate), Rate: rate}, nil
}

func (s *ServiceImpl) SetRate(ctx context.Context, code string, rate decimal.Decimal) error {
	code, err := normalizeCode(code)
	if err != nil {
		return err
	}
	if !rate.IsPositive() {
		return domain.ErrInvalidRate
	}
	if code == s.BaseCurrency() && !rate.Equal(decimal.NewFromInt(1)) {
		return domain.ErrInvalidRate
	}

	row := domain.ExchangeRate{
		Code:      code,
		Rate:      rate,
		UpdatedAt: s.clock.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "updated_at"}),
	}).Create(&row).Error
}

func (s *ServiceImpl) ListRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	var rates []domain.ExchangeRate
	if err := s.db.WithContext(ctx).Order("code ASC").Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}
