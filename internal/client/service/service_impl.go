package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/webafza/billing/internal/client/domain"
	"github.com/webafza/billing/internal/clock"
	userdomain "github.com/webafza/billing/internal/user/domain"
	"github.com/webafza/billing/pkg/db"
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
		log:   p.Log.Named("client.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *ServiceImpl) Get(ctx context.Context, id snowflake.ID) (*domain.Client, error) {
	var client domain.Client
	err := s.db.WithContext(ctx).First(&client, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *ServiceImpl) ResolveOrCreate(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*domain.Client, error) {
	if userID == 0 {
		return nil, domain.ErrUserNotLinked
	}

	client, err := s.findLinked(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if client != nil {
		return client, nil
	}

	var user userdomain.User
	err = tx.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userdomain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	created := domain.Client{
		ID:           s.genID.Generate(),
		LinkedUserID: &userID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Company:      user.Company,
		Phone:        user.Phone,
		Address:      user.Address,
		City:         user.City,
		Country:      user.Country,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&created).Error; err != nil {
		// A concurrent transaction may have backfilled the same user;
		// the unique index turns that into a duplicate, so re-read.
		if db.IsDuplicateKeyErr(err) {
			existing, findErr := s.findLinked(ctx, tx, userID)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	s.log.Info("client backfilled from user profile",
		zap.String("client_id", created.ID.String()),
		zap.String("user_id", userID.String()),
	)
	return &created, nil
}

// findLinked selects the oldest client row linked to the user, which
// keeps the result deterministic against legacy duplicates.
func (s *ServiceImpl) findLinked(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*domain.Client, error) {
	var client domain.Client
	err := tx.WithContext(ctx).
		Where("linked_user_id = ?", userID).
		Order("created_at ASC, id ASC").
		First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}
