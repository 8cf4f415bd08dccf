package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/webafza/billing/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type ServiceImpl struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) domain.Service {
	return &ServiceImpl{
		db:  p.DB,
		log: p.Log.Named("payment.service"),
	}
}

func (s *ServiceImpl) Get(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := s.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *ServiceImpl) GetByInvoice(ctx context.Context, invoiceID snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := s.db.WithContext(ctx).First(&payment, "invoice_id = ?", invoiceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *ServiceImpl) List(ctx context.Context, req domain.ListPaymentRequest) ([]domain.Payment, error) {
	stmt := s.db.WithContext(ctx).Model(&domain.Payment{})
	if req.InvoiceID != 0 {
		stmt = stmt.Where("invoice_id = ?", req.InvoiceID)
	}
	if req.UserID != 0 {
		stmt = stmt.Where("invoice_id IN (?)",
			s.db.Table("invoices").Select("id").Where("user_id = ?", req.UserID))
	}

	var payments []domain.Payment
	if err := stmt.Order("created_at DESC, id DESC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
