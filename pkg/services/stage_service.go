package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/skyatlas/solarwarehouse/pkg/repositories"
)

// StageService snapshots the operational schema into staging. Tables are
// copied parent-first; a failed table is logged and left out of this
// run's snapshot without aborting the rest.
type StageService interface {
	Run(ctx context.Context) error
}

type stageService struct {
	repo   repositories.StageRepository
	logger *zap.Logger
}

// NewStageService creates a StageService.
func NewStageService(repo repositories.StageRepository, logger *zap.Logger) StageService {
	return &stageService{
		repo:   repo,
		logger: logger.Named("stage-service"),
	}
}

var _ StageService = (*stageService)(nil)

func (s *stageService) Run(ctx context.Context) error {
	for _, table := range repositories.PipelineTables {
		rows, err := s.repo.CopyTable(ctx, table)
		if err != nil {
			s.logger.Error("Failed to copy table into staging",
				zap.String("table", table),
				zap.Error(err))
			continue
		}
		s.logger.Info("Copied table into staging",
			zap.String("table", table),
			zap.Int64("rows", rows))
	}
	return nil
}
