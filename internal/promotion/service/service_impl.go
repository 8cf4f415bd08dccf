package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/webafza/billing/internal/clock"
	currencydomain "github.com/webafza/billing/internal/currency/domain"
	"github.com/webafza/billing/internal/promotion/domain"
	"github.com/webafza/billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Currency currencydomain.Service
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	currency currencydomain.Service
}

func NewService(p Params) domain.Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("promotion.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		currency: p.Currency,
	}
}

func (s *ServiceImpl) Evaluate(ctx context.Context, tx *gorm.DB, promotionID snowflake.ID, parts []domain.CategoryAmount, currency string, now time.Time) (domain.Evaluation, error) {
	var promo domain.Promotion
	err := tx.WithContext(ctx).First(&promo, "id = ?", promotionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Evaluation{}, domain.ErrPromotionNotFound
	}
	if err != nil {
		return domain.Evaluation{}, err
	}

	eval := domain.Evaluation{
		Promotion:          promo,
		ApplicableSubtotal: applicableSubtotal(promo, parts),
		Discount:           decimal.Zero,
	}
	if !promo.UsableAt(now) {
		return eval, nil
	}
	eval.Usable = true

	var discount decimal.Decimal
	switch promo.DiscountType {
	case domain.DiscountPercentage:
		discount = eval.ApplicableSubtotal.Mul(promo.DiscountValue).Div(decimal.NewFromInt(100))
	case domain.DiscountFixed:
		// Fixed values are stored in the base currency.
		conv, err := s.currency.FromBase(ctx, promo.DiscountValue, currency)
		if err != nil {
			return domain.Evaluation{}, err
		}
		discount = conv.Amount
	default:
		return domain.Evaluation{}, domain.ErrInvalidDiscount
	}

	// A promotion never pushes a category below zero.
	if discount.GreaterThan(eval.ApplicableSubtotal) {
		discount = eval.ApplicableSubtotal
	}
	eval.Discount = discount.Round(2)
	return eval, nil
}

func applicableSubtotal(promo domain.Promotion, parts []domain.CategoryAmount) decimal.Decimal {
	sum := decimal.Zero
	if len(promo.ApplicableCategories) == 0 {
		for _, part := range parts {
			sum = sum.Add(part.Amount)
		}
		return sum
	}

	allowed := make(map[string]struct{}, len(promo.ApplicableCategories))
	for _, raw := range promo.ApplicableCategories {
		allowed[slug.Make(raw)] = struct{}{}
	}
	for _, part := range parts {
		if _, ok := allowed[slug.Make(part.CategorySlug)]; ok {
			sum = sum.Add(part.Amount)
		}
	}
	return sum
}

func (s *ServiceImpl) ConsumeUsage(ctx context.Context, tx *gorm.DB, promotionID snowflake.ID) error {
	result := tx.WithContext(ctx).Model(&domain.Promotion{}).
		Where("id = ?", promotionID).
		Where("usage_limit IS NULL OR used_count < usage_limit").
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.WithContext(ctx).Model(&domain.Promotion{}).
			Where("id = ?", promotionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrPromotionNotFound
		}
		return domain.ErrPromotionExhausted
	}
	return nil
}

func (s *ServiceImpl) Create(ctx context.Context, promo *domain.Promotion) (*domain.Promotion, error) {
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))
	if promo.Code == "" {
		return nil, domain.ErrInvalidCode
	}
	if !promo.DiscountType.Valid() || promo.DiscountValue.IsNegative() {
		return nil, domain.ErrInvalidDiscount
	}
	if promo.DiscountType == domain.DiscountPercentage && promo.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, domain.ErrInvalidDiscount
	}

	now := s.clock.Now()
	promo.ID = s.genID.Generate()
	promo.ApplicableCategories = canonicalCategories(promo.ApplicableCategories)
	promo.UsedCount = 0
	promo.CreatedAt = now
	promo.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(promo).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateCode
		}
		return nil, err
	}
	return promo, nil
}

func canonicalCategories(raw datatypes.JSONSlice[string]) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, value := range raw {
		canonical := slug.Make(value)
		if canonical == "" {
			continue
		}
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

func (s *ServiceImpl) Get(ctx context.Context, id snowflake.ID) (*domain.Promotion, error) {
	var promo domain.Promotion
	err := s.db.WithContext(ctx).First(&promo, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPromotionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (s *ServiceImpl) GetByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	var promo domain.Promotion
	err := s.db.WithContext(ctx).First(&promo, "code = ?", strings.ToUpper(strings.TrimSpace(code))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPromotionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (s *ServiceImpl) List(ctx context.Context, req domain.ListPromotionRequest) ([]domain.Promotion, error) {
	stmt := s.db.WithContext(ctx).Model(&domain.Promotion{})
	if req.Code != "" {
		stmt = stmt.Where("code = ?", strings.ToUpper(strings.TrimSpace(req.Code)))
	}
	if req.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *req.IsActive)
	}

	var promos []domain.Promotion
	if err := stmt.Order("created_at DESC, id DESC").Find(&promos).Error; err != nil {
		return nil, err
	}
	return promos, nil
}

func (s *ServiceImpl) Update(ctx context.Context, id snowflake.ID, req domain.UpdatePromotionRequest) (*domain.Promotion, error) {
	promo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.DiscountType != nil {
		if !req.DiscountType.Valid() {
			return nil, domain.ErrInvalidDiscount
		}
		promo.DiscountType = *req.DiscountType
	}
	if req.DiscountValue != nil {
		if req.DiscountValue.IsNegative() {
			return nil, domain.ErrInvalidDiscount
		}
		promo.DiscountValue = *req.DiscountValue
	}
	if promo.DiscountType == domain.DiscountPercentage && promo.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, domain.ErrInvalidDiscount
	}
	if req.ApplicableCategories != nil {
		promo.ApplicableCategories = canonicalCategories(datatypes.JSONSlice[string](*req.ApplicableCategories))
	}
	if req.IsActive != nil {
		promo.IsActive = *req.IsActive
	}
	if req.StartDate != nil {
		promo.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		promo.EndDate = req.EndDate
	}
	if req.UsageLimit != nil {
		promo.UsageLimit = req.UsageLimit
	}
	promo.UpdatedAt = s.clock.Now()

	if err := s.db.WithContext(ctx).Save(promo).Error; err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *ServiceImpl) Delete(ctx context.Context, id snowflake.ID) error {
	result := s.db.WithContext(ctx).Delete(&domain.Promotion{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrPromotionNotFound
	}
	return nil
}
