package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/webafza/billing/internal/identity"
)

var (
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidTransition  = errors.New("invalid_transition")
	ErrInvalidItem        = errors.New("invalid_item")
	ErrInvalidTaxRate     = errors.New("invalid_tax_rate")
	ErrBeneficiaryMissing = errors.New("beneficiary_missing")
	ErrCheckoutInProgress = errors.New("checkout_in_progress")
	ErrNumberExhausted    = errors.New("invoice_number_exhausted")
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusPartial  Status = "partial"
	StatusPaid     Status = "paid"
	StatusOverdue  Status = "overdue"
	StatusArchived Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPartial, StatusPaid, StatusOverdue, StatusArchived:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusDraft:   {StatusSent, StatusArchived},
	StatusSent:    {StatusPartial, StatusPaid, StatusOverdue, StatusArchived},
	StatusPartial: {StatusPaid, StatusOverdue, StatusArchived},
	StatusOverdue: {StatusPartial, StatusPaid, StatusArchived},
	StatusPaid:    {StatusArchived},
}

// CanTransition reports whether the status change is allowed. A no-op
// transition to the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PromotionSnapshot is the promotion's effect captured at the moment
// it was applied. Invoice edits trust this copy and never re-read the
// live promotion, so historical invoices stay reproducible.
type PromotionSnapshot struct {
	Code           string          `json:"code,omitempty" gorm:"column:promotion_code;size:64"`
	DiscountType   string          `json:"discount_type,omitempty" gorm:"column:promotion_discount_type;size:16"`
	DiscountValue  decimal.Decimal `json:"discount_value" gorm:"column:promotion_discount_value;type:decimal(20,2)"`
	DiscountAmount decimal.Decimal `json:"discount_amount" gorm:"column:promotion_discount_amount;type:decimal(20,2)"`
}

func (p PromotionSnapshot) Applied() bool {
	return p.Code != ""
}

type Invoice struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	Number   string       `json:"number" gorm:"size:32;not null;uniqueIndex:ux_invoices_number"`
	ClientID snowflake.ID `json:"client_id" gorm:"index;not null"`
	// UserID may be empty when the invoice was raised against a
	// client with no direct user link.
	UserID *snowflake.ID `json:"user_id" gorm:"index"`
	// PackageID references the first cart line's package and drives
	// downstream provisioning.
	PackageID *snowflake.ID `json:"package_id"`

	Subtotal  decimal.Decimal   `json:"subtotal" gorm:"type:decimal(20,2);not null"`
	TaxRate   decimal.Decimal   `json:"tax_rate" gorm:"type:decimal(10,4);not null"`
	TaxAmount decimal.Decimal   `json:"tax_amount" gorm:"type:decimal(20,2);not null"`
	Promotion PromotionSnapshot `json:"promotion" gorm:"embedded"`
	Total     decimal.Decimal   `json:"total" gorm:"type:decimal(20,2);not null"`

	Currency     string          `json:"currency" gorm:"size:3;not null"`
	ExchangeRate decimal.Decimal `json:"exchange_rate" gorm:"type:decimal(30,12);not null"`
	TotalInBase  decimal.Decimal `json:"total_in_base" gorm:"type:decimal(20,2);not null"`

	Status    Status    `json:"status" gorm:"size:16;not null;index"`
	IssueDate time.Time `json:"issue_date" gorm:"not null"`
	DueDate   time.Time `json:"due_date" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []InvoiceItem `json:"items" gorm:"foreignKey:InvoiceID"`
}

func (Invoice) TableName() string {
	return "invoices"
}

type InvoiceItem struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID   snowflake.ID    `json:"invoice_id" gorm:"index;not null"`
	Description string          `json:"description" gorm:"size:255;not null"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(20,2);not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Position    int             `json:"position" gorm:"not null"`
}

func (InvoiceItem) TableName() string {
	return "invoice_items"
}

type CheckoutRequest struct {
	Actor identity.Actor
	// BeneficiaryUserID and BeneficiaryClientID name a different
	// beneficiary than the caller; privileged roles only. The cart
	// is always the caller's own.
	BeneficiaryUserID   *snowflake.ID
	BeneficiaryClientID *snowflake.ID
}

type CheckoutResponse struct {
	InvoiceID snowflake.ID `json:"invoice_id"`
	Number    string       `json:"number"`
}

type ItemPatch struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// UpdateRequest is a partial patch; nil fields are left untouched.
type UpdateRequest struct {
	Items     *[]ItemPatch
	TaxRate   *decimal.Decimal
	Promotion *PromotionSnapshot
	Currency  *string
	Status    *Status
	DueDate   *time.Time
	UserID    *snowflake.ID
	PackageID *snowflake.ID
}

type ListRequest struct {
	UserID   snowflake.ID
	ClientID snowflake.ID
	Status   Status
}

type Service interface {
	// Checkout turns the caller's cart into an invoice: promotion
	// evaluation, currency conversion, invoice creation and cart
	// clearing happen in one transaction.
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
	Get(ctx context.Context, actor identity.Actor, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, actor identity.Actor, req ListRequest) ([]Invoice, error)
	// Update applies a partial patch and recomputes all derived
	// totals from scratch. Setting status to paid from a non-paid
	// state triggers the payment/service/client cascade inside the
	// same transaction.
	Update(ctx context.Context, actor identity.Actor, id snowflake.ID, req UpdateRequest) (*Invoice, error)
	Delete(ctx context.Context, actor identity.Actor, id snowflake.ID) error
}
