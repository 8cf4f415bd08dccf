package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/webafza/billing/internal/catalog/domain"
	"github.com/webafza/billing/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type ServiceImpl struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &ServiceImpl{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *ServiceImpl) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	canonical := slug.Make(name)
	if canonical == "" {
		return nil, domain.ErrInvalidSlug
	}

	now := s.clock.Now()
	category := domain.Category{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      canonical,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *ServiceImpl) GetCategory(ctx context.Context, id snowflake.ID) (*domain.Category, error) {
	var category domain.Category
	err := s.db.WithContext(ctx).First(&category, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *ServiceImpl) ListCategories(ctx context.Context, req domain.ListCategoryRequest) ([]domain.Category, error) {
	stmt := s.db.WithContext(ctx).Model(&domain.Category{})
	if req.Slug != "" {
		stmt = stmt.Where("slug = ?", slug.Make(req.Slug))
	}

	var categories []domain.Category
	if err := stmt.Order("name ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *ServiceImpl) CreatePackage(ctx context.Context, pkg *domain.Package) (*domain.Package, error) {
	if pkg.PriceMonthly.IsNegative() || pkg.PriceAnnual.IsNegative() || pkg.PriceOneTime.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}
	if _, err := s.GetCategory(ctx, pkg.CategoryID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	pkg.ID = s.genID.Generate()
	pkg.PriceMonthly = pkg.PriceMonthly.Round(2)
	pkg.PriceAnnual = pkg.PriceAnnual.Round(2)
	pkg.PriceOneTime = pkg.PriceOneTime.Round(2)
	pkg.CreatedAt = now
	pkg.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(pkg).Error; err != nil {
		return nil, err
	}
	return pkg, nil
}

func (s *ServiceImpl) GetPackage(ctx context.Context, id snowflake.ID) (*domain.Package, error) {
	return s.GetPackageTx(ctx, s.db, id)
}

func (s *ServiceImpl) GetPackageTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Package, error) {
	var pkg domain.Package
	err := tx.WithContext(ctx).Preload("Category").First(&pkg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPackageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (s *ServiceImpl) ListPackages(ctx context.Context, req domain.ListPackageRequest) ([]domain.Package, error) {
	stmt := s.db.WithContext(ctx).Model(&domain.Package{}).Preload("Category")
	if req.CategoryID != 0 {
		stmt = stmt.Where("category_id = ?", req.CategoryID)
	}
	if req.Active != nil {
		stmt = stmt.Where("active = ?", *req.Active)
	}

	var packages []domain.Package
	if err := stmt.Order("name ASC").Find(&packages).Error; err != nil {
		return nil, err
	}
	return packages, nil
}
