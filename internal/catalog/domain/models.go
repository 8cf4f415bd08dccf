package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrCategoryNotFound = errors.New("category_not_found")
	ErrPackageNotFound  = errors.New("package_not_found")
	ErrInvalidSlug      = errors.New("invalid_slug")
	ErrInvalidPrice     = errors.New("invalid_price")
)

// Category groups purchasable packages. Slug is the canonical
// lowercase-hyphenated identity used for promotion scoping; Name is
// display-only and never used for matching.
type Category struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"size:120;not null"`
	Slug      string       `json:"slug" gorm:"size:120;not null;uniqueIndex:ux_categories_slug"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Category) TableName() string {
	return "categories"
}

// BillingCycle identifies which price of a package a cart line refers
// to.
type BillingCycle string

const (
	CycleMonthly  BillingCycle = "monthly"
	CycleAnnually BillingCycle = "annually"
	CycleOneTime  BillingCycle = "one_time"
)

func (c BillingCycle) Valid() bool {
	switch c {
	case CycleMonthly, CycleAnnually, CycleOneTime:
		return true
	}
	return false
}

// Package is a sellable product. Prices are stored in the base
// currency with two decimal places.
type Package struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	CategoryID   snowflake.ID    `json:"category_id" gorm:"index;not null"`
	Name         string          `json:"name" gorm:"size:160;not null"`
	PriceMonthly decimal.Decimal `json:"price_monthly" gorm:"type:decimal(20,2);not null"`
	PriceAnnual  decimal.Decimal `json:"price_annual" gorm:"type:decimal(20,2);not null"`
	PriceOneTime decimal.Decimal `json:"price_one_time" gorm:"type:decimal(20,2);not null"`
	Active       bool            `json:"active" gorm:"not null"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
}

func (Package) TableName() string {
	return "packages"
}

// Price returns the package price for the given billing cycle.
func (p Package) Price(cycle BillingCycle) decimal.Decimal {
	switch cycle {
	case CycleAnnually:
		return p.PriceAnnual
	case CycleOneTime:
		return p.PriceOneTime
	default:
		return p.PriceMonthly
	}
}

type ListCategoryRequest struct {
	Slug string
}

type ListPackageRequest struct {
	CategoryID snowflake.ID
	Active     *bool
}

type Service interface {
	CreateCategory(ctx context.Context, name string) (*Category, error)
	GetCategory(ctx context.Context, id snowflake.ID) (*Category, error)
	ListCategories(ctx context.Context, req ListCategoryRequest) ([]Category, error)

	CreatePackage(ctx context.Context, pkg *Package) (*Package, error)
	GetPackage(ctx context.Context, id snowflake.ID) (*Package, error)
	// GetPackageTx reads a package inside an open transaction so
	// checkout can price cart lines against a consistent snapshot.
	GetPackageTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Package, error)
	ListPackages(ctx context.Context, req ListPackageRequest) ([]Package, error)
}
