package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var ErrServiceNotFound = errors.New("service_not_found")

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
)

// Service is the entitlement a paid invoice grants a user for a
// package. The (user, package) pair is unique; repeat purchases
// replace the window instead of stacking it.
type Service struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID    `json:"user_id" gorm:"not null;uniqueIndex:ux_services_user_package,priority:1"`
	PackageID snowflake.ID    `json:"package_id" gorm:"not null;uniqueIndex:ux_services_user_package,priority:2"`
	InvoiceID snowflake.ID    `json:"invoice_id" gorm:"not null"`
	Status    Status          `json:"status" gorm:"size:16;not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(20,2);not null"`
	StartDate time.Time       `json:"start_date" gorm:"not null"`
	EndDate   time.Time       `json:"end_date" gorm:"not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Service) TableName() string {
	return "services"
}

type ListServiceRequest struct {
	UserID    snowflake.ID
	PackageID snowflake.ID
	Status    Status
}

type Reader interface {
	Get(ctx context.Context, id snowflake.ID) (*Service, error)
	List(ctx context.Context, req ListServiceRequest) ([]Service, error)
}
