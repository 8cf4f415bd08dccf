package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/webafza/billing/internal/cart/domain"
	catalogdomain "github.com/webafza/billing/internal/catalog/domain"
	"github.com/webafza/billing/internal/clock"
	currencydomain "github.com/webafza/billing/internal/currency/domain"
	promotiondomain "github.com/webafza/billing/internal/promotion/domain"
	"github.com/webafza/billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Catalog   catalogdomain.Service
	Currency  currencydomain.Service
	Promotion promotiondomain.Service
}

type ServiceImpl struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	catalog   catalogdomain.Service
	currency  currencydomain.Service
	promotion promotiondomain.Service
}

func NewService(p Params) domain.Service {
	return &ServiceImpl{
		db:        p.DB,
		log:       p.Log.Named("cart.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		catalog:   p.Catalog,
		currency:  p.Currency,
		promotion: p.Promotion,
	}
}

func (s *ServiceImpl) Get(ctx context.Context, userID snowflake.ID) (*domain.Cart, error) {
	cart, err := s.load(ctx, s.db, userID, false)
	if err != nil {
		return nil, err
	}
	if cart != nil {
		return cart, nil
	}
	return s.create(ctx, userID)
}

func (s *ServiceImpl) GetTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*domain.Cart, error) {
	cart, err := s.load(ctx, tx, userID, true)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, domain.ErrCartNotFound
	}
	return cart, nil
}

func (s *ServiceImpl) load(ctx context.Context, tx *gorm.DB, userID snowflake.ID, lock bool) (*domain.Cart, error) {
	stmt := tx.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC, id ASC")
	})
	// sqlite serializes writers already and has no FOR UPDATE.
	if lock && tx.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var cart domain.Cart
	err := stmt.First(&cart, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *ServiceImpl) create(ctx context.Context, userID snowflake.ID) (*domain.Cart, error) {
	now := s.clock.Now()
	cart := domain.Cart{
		ID:        s.genID.Generate(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Items:     []domain.CartItem{},
	}
	if err := s.db.WithContext(ctx).Create(&cart).Error; err != nil {
		// Lost a race against a concurrent first-add; the existing
		// cart wins.
		if db.IsDuplicateKeyErr(err) {
			existing, loadErr := s.load(ctx, s.db, userID, false)
			if loadErr != nil {
				return nil, loadErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return &cart, nil
}

func (s *ServiceImpl) AddItem(ctx context.Context, userID snowflake.ID, packageID snowflake.ID, quantity int, cycle catalogdomain.BillingCycle) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if !cycle.Valid() {
		return nil, domain.ErrInvalidCycle
	}
	if _, err := s.catalog.GetPackage(ctx, packageID); err != nil {
		return nil, err
	}

	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Same package and cycle folds into the existing line.
		for _, item := range cart.Items {
			if item.PackageID == packageID && item.Cycle == cycle {
				return tx.Model(&domain.CartItem{}).
					Where("id = ?", item.ID).
					UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity)).Error
			}
		}
		return tx.Create(&domain.CartItem{
			ID:        s.genID.Generate(),
			CartID:    cart.ID,
			PackageID: packageID,
			Quantity:  quantity,
			Cycle:     cycle,
			CreatedAt: s.clock.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *ServiceImpl) RemoveItem(ctx context.Context, userID snowflake.ID, itemID snowflake.ID) (*domain.Cart, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cart.ID).
		Delete(&domain.CartItem{})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrCartItemNotFound
	}
	return s.Get(ctx, userID)
}

func (s *ServiceImpl) ApplyPromotion(ctx context.Context, userID snowflake.ID, code string) (*domain.Cart, error) {
	promo, err := s.promotion.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, domain.ErrCartEmpty
	}
	if !promo.UsableAt(s.clock.Now()) {
		return nil, promotiondomain.ErrPromotionExhausted
	}

	if err := s.db.WithContext(ctx).Model(&domain.Cart{}).
		Where("id = ?", cart.ID).
		Updates(map[string]any{"promotion_id": promo.ID, "updated_at": s.clock.Now()}).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *ServiceImpl) RemovePromotion(ctx context.Context, userID snowflake.ID) (*domain.Cart, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&domain.Cart{}).
		Where("id = ?", cart.ID).
		Updates(map[string]any{"promotion_id": nil, "updated_at": s.clock.Now()}).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *ServiceImpl) SetCurrency(ctx context.Context, userID snowflake.ID, code string) (*domain.Cart, error) {
	// Reject currencies we cannot convert before the cart commits to
	// them.
	rate, err := s.currency.Rate(ctx, code)
	if err != nil {
		return nil, err
	}
	_ = rate

	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&domain.Cart{}).
		Where("id = ?", cart.ID).
		Updates(map[string]any{"currency": normalizeCurrency(code), "updated_at": s.clock.Now()}).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *ServiceImpl) ClearTx(ctx context.Context, tx *gorm.DB, cartID snowflake.ID) error {
	if err := tx.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&domain.CartItem{}).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&domain.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{"promotion_id": nil, "updated_at": s.clock.Now()}).Error
}
