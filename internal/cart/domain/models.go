package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/webafza/billing/internal/catalog/domain"
	"gorm.io/gorm"
)

var (
	ErrCartNotFound     = errors.New("cart_not_found")
	ErrCartEmpty        = errors.New("cart_empty")
	ErrCartItemNotFound = errors.New("cart_item_not_found")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidCycle     = errors.New("invalid_cycle")
)

// Cart holds a user's pending purchase. At most one cart exists per
// user; it is cleared by checkout, never deleted.
type Cart struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID      snowflake.ID  `json:"user_id" gorm:"not null;uniqueIndex:ux_carts_user"`
	PromotionID *snowflake.ID `json:"promotion_id"`
	Currency    string        `json:"currency" gorm:"size:3"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	Items []CartItem `json:"items" gorm:"foreignKey:CartID"`
}

func (Cart) TableName() string {
	return "carts"
}

type CartItem struct {
	ID        snowflake.ID               `json:"id" gorm:"primaryKey"`
	CartID    snowflake.ID               `json:"cart_id" gorm:"index;not null"`
	PackageID snowflake.ID               `json:"package_id" gorm:"not null"`
	Quantity  int                        `json:"quantity" gorm:"not null"`
	Cycle     catalogdomain.BillingCycle `json:"cycle" gorm:"size:16;not null"`
	CreatedAt time.Time                  `json:"created_at"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

type Service interface {
	// Get returns the user's cart with items, creating an empty one
	// on first use.
	Get(ctx context.Context, userID snowflake.ID) (*Cart, error)
	// GetTx loads the cart inside an open transaction, locked for
	// update where the dialect supports it.
	GetTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*Cart, error)
	AddItem(ctx context.Context, userID snowflake.ID, packageID snowflake.ID, quantity int, cycle catalogdomain.BillingCycle) (*Cart, error)
	RemoveItem(ctx context.Context, userID snowflake.ID, itemID snowflake.ID) (*Cart, error)
	ApplyPromotion(ctx context.Context, userID snowflake.ID, code string) (*Cart, error)
	RemovePromotion(ctx context.Context, userID snowflake.ID) (*Cart, error)
	SetCurrency(ctx context.Context, userID snowflake.ID, currency string) (*Cart, error)
	// ClearTx empties the cart's items and applied promotion inside
	// the caller's transaction.
	ClearTx(ctx context.Context, tx *gorm.DB, cartID snowflake.ID) error
}
