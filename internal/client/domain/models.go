package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrClientNotFound = errors.New("client_not_found")
	ErrUserNotLinked  = errors.New("user_not_linked")
)

// Client is the billing counterparty an invoice belongs to. At most
// one client row links to a given user, enforced by
// ux_clients_linked_user.
type Client struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	LinkedUserID *snowflake.ID `json:"linked_user_id" gorm:"uniqueIndex:ux_clients_linked_user"`
	Email        string        `json:"email" gorm:"size:255;not null"`
	FirstName    string        `json:"first_name" gorm:"size:120"`
	LastName     string        `json:"last_name" gorm:"size:120"`
	Company      string        `json:"company" gorm:"size:160"`
	Phone        string        `json:"phone" gorm:"size:40"`
	Address      string        `json:"address" gorm:"size:255"`
	City         string        `json:"city" gorm:"size:120"`
	Country      string        `json:"country" gorm:"size:2"`
	// Currency is the client's preferred billing currency; empty
	// means no preference and checkout falls through to the system
	// default.
	Currency  string    `json:"currency" gorm:"size:3"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Client) TableName() string {
	return "clients"
}

type Service interface {
	// ResolveOrCreate returns the client linked to userID, creating
	// one from the user profile when none exists. It runs inside the
	// caller's transaction. When legacy data holds several rows for
	// the same user the oldest row wins.
	ResolveOrCreate(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*Client, error)
	Get(ctx context.Context, id snowflake.ID) (*Client, error)
}
