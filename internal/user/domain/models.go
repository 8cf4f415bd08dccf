package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrUserNotFound = errors.New("user_not_found")

// User is the account profile clients are backfilled from when an
// invoice is paid.
type User struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Email     string       `json:"email" gorm:"size:255;not null;uniqueIndex:ux_users_email"`
	FirstName string       `json:"first_name" gorm:"size:120"`
	LastName  string       `json:"last_name" gorm:"size:120"`
	Company   string       `json:"company" gorm:"size:160"`
	Phone     string       `json:"phone" gorm:"size:40"`
	Address   string       `json:"address" gorm:"size:255"`
	City      string       `json:"city" gorm:"size:120"`
	Country   string       `json:"country" gorm:"size:2"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
