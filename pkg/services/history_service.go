package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skyatlas/solarwarehouse/pkg/repositories"
)

// HistoryService applies the SCD Type 2 merge from staging into history.
// The merge is all-or-nothing: a mid-batch failure rolls the whole
// transaction back.
type HistoryService interface {
	Run(ctx context.Context) error
}

type historyService struct {
	repo          repositories.HistoryRepository
	detectChanges bool
	logger        *zap.Logger
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(repo repositories.HistoryRepository, detectChanges bool, logger *zap.Logger) HistoryService {
	return &historyService{
		repo:          repo,
		detectChanges: detectChanges,
		logger:        logger.Named("history-service"),
	}
}

var _ HistoryService = (*historyService)(nil)

func (s *historyService) Run(ctx context.Context) error {
	stats, err := s.repo.MergeAll(ctx, s.detectChanges)
	if err != nil {
		return fmt.Errorf("history merge failed: %w", err)
	}

	for table, t := range map[string]repositories.TableMergeStats{
		"images":                stats.Images,
		"coordinates":           stats.Coordinates,
		"predictions_roof_type": stats.Predictions,
		"detection_solar_panel": stats.Detections,
	} {
		s.logger.Info("Merged table into history",
			zap.String("table", table),
			zap.Int("versions_opened", t.Opened),
			zap.Int("versions_closed", t.Closed),
			zap.Int("unchanged", t.Unchanged))
	}
	return nil
}
