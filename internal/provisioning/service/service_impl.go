package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/webafza/billing/internal/provisioning/domain"
	"github.com/webafza/billing/pkg/db/option"
	"github.com/webafza/billing/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type ReaderImpl struct {
	log      *zap.Logger
	services repository.Repository[domain.Service]
}

func NewReader(p Params) domain.Reader {
	return &ReaderImpl{
		log:      p.Log.Named("provisioning.service"),
		services: repository.ProvideStore[domain.Service](p.DB),
	}
}

func (s *ReaderImpl) Get(ctx context.Context, id snowflake.ID) (*domain.Service, error) {
	svc, err := s.services.FindOne(ctx, &domain.Service{ID: id})
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, domain.ErrServiceNotFound
	}
	return svc, nil
}

func (s *ReaderImpl) List(ctx context.Context, req domain.ListServiceRequest) ([]domain.Service, error) {
	filter := domain.Service{
		UserID:    req.UserID,
		PackageID: req.PackageID,
		Status:    req.Status,
	}
	rows, err := s.services.Find(ctx, &filter,
		option.WithSortBy(option.QuerySortBy{}),
	)
	if err != nil {
		return nil, err
	}

	services := make([]domain.Service, 0, len(rows))
	for _, row := range rows {
		services = append(services, *row)
	}
	return services, nil
}
