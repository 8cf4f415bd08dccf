package repository

import (
	"context"

	auditdomain "github.com/webafza/billing/internal/audit/domain"
	"gorm.io/gorm"
)

type repositoryImpl struct{}

func Provide() auditdomain.Repository {
	return &repositoryImpl{}
}

func (r *repositoryImpl) Insert(ctx context.Context, db *gorm.DB, entry *auditdomain.AuditLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repositoryImpl) List(ctx context.Context, db *gorm.DB, req auditdomain.ListAuditLogRequest) ([]*auditdomain.AuditLog, error) {
	stmt := db.WithContext(ctx).Model(&auditdomain.AuditLog{})
	if req.Action != "" {
		stmt = stmt.Where("action = ?", req.Action)
	}
	if req.TargetType != "" {
		stmt = stmt.Where("target_type = ?", req.TargetType)
	}
	if req.TargetID != "" {
		stmt = stmt.Where("target_id = ?", req.TargetID)
	}
	if req.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", *req.StartAt)
	}
	if req.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", *req.EndAt)
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 50
	}

	var entries []*auditdomain.AuditLog
	err := stmt.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
