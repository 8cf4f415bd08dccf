package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var ErrPaymentNotFound = errors.New("payment_not_found")

type Status string

const (
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
)

// Payment records money received against one invoice. The unique
// index on InvoiceID is the idempotency guard for the paid-transition
// cascade.
type Payment struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID    snowflake.ID    `json:"invoice_id" gorm:"not null;uniqueIndex:ux_payments_invoice_id"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Currency     string          `json:"currency" gorm:"size:3;not null"`
	AmountInBase decimal.Decimal `json:"amount_in_base" gorm:"type:decimal(20,2);not null"`
	ExchangeRate decimal.Decimal `json:"exchange_rate" gorm:"type:decimal(30,12);not null"`
	Status       Status          `json:"status" gorm:"size:16;not null"`
	Note         string          `json:"note" gorm:"size:255"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (Payment) TableName() string {
	return "payments"
}

type ListPaymentRequest struct {
	InvoiceID snowflake.ID
	UserID    snowflake.ID
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Payment, error)
	GetByInvoice(ctx context.Context, invoiceID snowflake.ID) (*Payment, error)
	List(ctx context.Context, req ListPaymentRequest) ([]Payment, error)
}
