package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrPromotionNotFound  = errors.New("promotion_not_found")
	ErrPromotionExhausted = errors.New("promotion_exhausted")
	ErrInvalidDiscount    = errors.New("invalid_discount")
	ErrInvalidCode        = errors.New("invalid_code")
	ErrDuplicateCode      = errors.New("duplicate_code")
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Promotion is a discount rule. Fixed discount values are denominated
// in the base currency. ApplicableCategories holds canonical category
// slugs; empty means the promotion applies to the whole cart.
type Promotion struct {
	ID                   snowflake.ID                 `json:"id" gorm:"primaryKey"`
	Code                 string                       `json:"code" gorm:"size:64;not null;uniqueIndex:ux_promotions_code"`
	DiscountType         DiscountType                 `json:"discount_type" gorm:"size:16;not null"`
	DiscountValue        decimal.Decimal              `json:"discount_value" gorm:"type:decimal(20,2);not null"`
	ApplicableCategories datatypes.JSONSlice[string]  `json:"applicable_categories"`
	IsActive             bool                         `json:"is_active" gorm:"not null"`
	StartDate            *time.Time                   `json:"start_date"`
	EndDate              *time.Time                   `json:"end_date"`
	UsageLimit           *int64                       `json:"usage_limit"`
	UsedCount            int64                        `json:"used_count" gorm:"not null;default:0"`
	CreatedAt            time.Time                    `json:"created_at"`
	UpdatedAt            time.Time                    `json:"updated_at"`
}

func (Promotion) TableName() string {
	return "promotions"
}

// UsableAt reports whether the promotion can be applied at the given
// instant, without consuming a use.
func (p Promotion) UsableAt(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.StartDate != nil && now.Before(*p.StartDate) {
		return false
	}
	if p.EndDate != nil && now.After(*p.EndDate) {
		return false
	}
	if p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit {
		return false
	}
	return true
}

// CategoryAmount is one slice of a cart subtotal, tagged with the
// canonical slug of the package's category.
type CategoryAmount struct {
	CategorySlug string
	Amount       decimal.Decimal
}

// Evaluation is the outcome of running the validator against a cart
// subtotal. Discount is denominated in the cart's currency and already
// clamped to the applicable subtotal. An unusable promotion evaluates
// to a zero discount rather than an error.
type Evaluation struct {
	Promotion          Promotion
	Usable             bool
	ApplicableSubtotal decimal.Decimal
	Discount           decimal.Decimal
}

type ListPromotionRequest struct {
	Code     string
	IsActive *bool
}

type UpdatePromotionRequest struct {
	DiscountType         *DiscountType
	DiscountValue        *decimal.Decimal
	ApplicableCategories *[]string
	IsActive             *bool
	StartDate            *time.Time
	EndDate              *time.Time
	UsageLimit           *int64
}

type Service interface {
	// Evaluate computes the discount a promotion yields against a
	// subtotal partitioned by category, in the given cart currency.
	Evaluate(ctx context.Context, tx *gorm.DB, promotionID snowflake.ID, parts []CategoryAmount, currency string, now time.Time) (Evaluation, error)

	// ConsumeUsage increments used_count by one with an atomic guard
	// against the usage limit. Returns ErrPromotionExhausted when the
	// limit has been reached by a concurrent application.
	ConsumeUsage(ctx context.Context, tx *gorm.DB, promotionID snowflake.ID) error

	Create(ctx context.Context, promo *Promotion) (*Promotion, error)
	Get(ctx context.Context, id snowflake.ID) (*Promotion, error)
	GetByCode(ctx context.Context, code string) (*Promotion, error)
	List(ctx context.Context, req ListPromotionRequest) ([]Promotion, error)
	Update(ctx context.Context, id snowflake.ID, req UpdatePromotionRequest) (*Promotion, error)
	Delete(ctx context.Context, id snowflake.ID) error
}
