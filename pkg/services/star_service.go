package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/skyatlas/solarwarehouse/pkg/apperrors"
	"github.com/skyatlas/solarwarehouse/pkg/config"
	"github.com/skyatlas/solarwarehouse/pkg/models"
	"github.com/skyatlas/solarwarehouse/pkg/repositories"
)

// StarService rebuilds the star schema from currently-valid history rows:
// truncate, repopulate the date dimension, transform dimensions, then
// assemble the fact table. Running it twice against unchanged history
// produces an identical star schema.
type StarService interface {
	Run(ctx context.Context) error
}

type starService struct {
	repo    repositories.StarRepository
	dateDim config.DateDimConfig
	logger  *zap.Logger
}

// NewStarService creates a StarService.
func NewStarService(repo repositories.StarRepository, dateDim config.DateDimConfig, logger *zap.Logger) StarService {
	return &starService{
		repo:    repo,
		dateDim: dateDim,
		logger:  logger.Named("star-service"),
	}
}

var _ StarService = (*starService)(nil)

func (s *starService) Run(ctx context.Context) error {
	if err := s.repo.TruncateStar(ctx); err != nil {
		return fmt.Errorf("failed to truncate star schema: %w", err)
	}

	dims := models.DateRange(s.dateDim.StartYear, s.dateDim.EndYear)
	inserted, err := s.repo.PopulateDimDate(ctx, dims)
	if err != nil {
		return fmt.Errorf("failed to populate date dimension: %w", err)
	}
	s.logger.Info("Populated date dimension",
		zap.Int("start_year", s.dateDim.StartYear),
		zap.Int("end_year", s.dateDim.EndYear),
		zap.Int64("rows_inserted", inserted))

	if err := s.transferDimensions(ctx); err != nil {
		return err
	}

	return s.populateFacts(ctx)
}

func (s *starService) transferDimensions(ctx context.Context) error {
	images, err := s.repo.TransferImageDimensions(ctx)
	if err != nil {
		return fmt.Errorf("failed to build dim_images: %w", err)
	}
	predictions, err := s.repo.TransferRoofTypeDimensions(ctx)
	if err != nil {
		return fmt.Errorf("failed to build dim_predictions_roof_type: %w", err)
	}
	detections, err := s.repo.TransferSolarPanelDimensions(ctx)
	if err != nil {
		return fmt.Errorf("failed to build dim_detections_solar_panel: %w", err)
	}

	s.logger.Info("Transferred dimensions",
		zap.Int64("dim_images", images),
		zap.Int64("dim_predictions_roof_type", predictions),
		zap.Int64("dim_detections_solar_panel", detections))
	return nil
}

func (s *starService) populateFacts(ctx context.Context) error {
	sources, err := s.repo.ListCurrentFactSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list fact sources: %w", err)
	}

	inserted, failed := 0, 0
	for _, src := range sources {
		if err := s.insertFact(ctx, src); err != nil {
			// Contained to this image's fact row.
			failed++
			s.logger.Error("Failed to build fact row",
				zap.Int64("image_id", src.ImageID),
				zap.Error(err))
			continue
		}
		inserted++
	}

	s.logger.Info("Populated fact table",
		zap.Int("facts_inserted", inserted),
		zap.Int("facts_failed", failed))
	return nil
}

func (s *starService) insertFact(ctx context.Context, src models.FactSource) error {
	dimImageID, err := s.repo.LookupDimImageID(ctx, src.ImageID)
	if err != nil {
		return fmt.Errorf("failed to resolve dim_image_id: %w", err)
	}

	fact := &models.FactImage{
		DimImageID:        dimImageID,
		DateID:            0,
		ImageDateUploaded: src.DateUploaded,
	}

	if src.PredictionID != nil {
		id, err := s.repo.LookupDimRoofTypeID(ctx, *src.PredictionID)
		switch {
		case err == nil:
			fact.DimRoofTypeID = &id
		case errors.Is(err, apperrors.ErrNotFound):
			// Absent dimension stays a NULL foreign key.
		default:
			return fmt.Errorf("failed to resolve dim_roof_type_id: %w", err)
		}
	}

	if src.DetectionID != nil {
		id, err := s.repo.LookupDimSolarPanelID(ctx, *src.DetectionID)
		switch {
		case err == nil:
			fact.DimSolarPanelID = &id
		case errors.Is(err, apperrors.ErrNotFound):
		default:
			return fmt.Errorf("failed to resolve dim_solar_panel_id: %w", err)
		}
	}

	// The date dimension is populated earlier in the same run; a missing
	// date is a referential gap, fatal for this fact row.
	dateID, err := s.repo.LookupDateID(ctx, src.DateUploaded)
	if err != nil {
		return fmt.Errorf("failed to resolve date_id for %s: %w",
			src.DateUploaded.Format("2006-01-02"), err)
	}
	fact.DateID = dateID

	return s.repo.InsertFact(ctx, fact)
}
