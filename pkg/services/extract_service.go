package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/skyatlas/solarwarehouse/pkg/apperrors"
	"github.com/skyatlas/solarwarehouse/pkg/config"
	"github.com/skyatlas/solarwarehouse/pkg/documents"
	"github.com/skyatlas/solarwarehouse/pkg/models"
	"github.com/skyatlas/solarwarehouse/pkg/repositories"
)

// ExtractService reconciles paired vision-model documents and projects
// them into the operational schema. Re-runs are safe: image creation is
// idempotent, prediction/detection writes are first-write-wins, and the
// processed flag on source documents prevents reprocessing across runs.
type ExtractService interface {
	Run(ctx context.Context) error
}

type extractService struct {
	docs       documents.Repository
	op         repositories.OperationalRepository
	region     config.RegionConfig
	debugReset bool
	logger     *zap.Logger
}

// NewExtractService creates an ExtractService. With debugReset set the
// run first clears processed flags and truncates the operational schema.
func NewExtractService(
	docs documents.Repository,
	op repositories.OperationalRepository,
	region config.RegionConfig,
	debugReset bool,
	logger *zap.Logger,
) ExtractService {
	return &extractService{
		docs:       docs,
		op:         op,
		region:     region,
		debugReset: debugReset,
		logger:     logger.Named("extract-service"),
	}
}

var _ ExtractService = (*extractService)(nil)

func (s *extractService) Run(ctx context.Context) error {
	if s.debugReset {
		removed, err := s.docs.RemoveProcessedFlags(ctx)
		if err != nil {
			return fmt.Errorf("failed to reset document store: %w", err)
		}
		if err := s.op.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset operational schema: %w", err)
		}
		s.logger.Info("Debug reset complete", zap.Int64("flags_removed", removed))
	}

	all, err := s.docs.ListAll(ctx)
	if err != nil {
		// Connectivity failure: fatal to the run.
		return fmt.Errorf("failed to scan document store: %w", err)
	}
	s.logger.Info("Scanned document store", zap.Int("documents", len(all)))

	for i := range all {
		doc := &all[i]
		if err := s.processDocument(ctx, all, doc); err != nil {
			// Contained to this document; it stays unmarked and is
			// retried on the next run.
			s.logger.Error("Failed to process document",
				zap.String("filename", doc.Filename),
				zap.Error(err))
		}
	}
	return nil
}

func (s *extractService) processDocument(ctx context.Context, all []models.ResultDocument, doc *models.ResultDocument) error {
	canonical := doc.CanonicalFilename()
	if canonical == "" {
		return apperrors.ErrMissingDocumentFields
	}

	pair := documents.FindPair(all, doc)
	solar, roof := documents.Classify(doc, pair)
	if solar == nil && roof == nil {
		// Source behavior: unclassifiable documents are skipped with a
		// warning, not treated as errors.
		s.logger.Warn("No recognized prediction type, skipping document",
			zap.String("filename", doc.Filename),
			zap.String("prediction_type", doc.PredictionType))
		return nil
	}

	width, height := imageDimensions(solar, roof)
	imageID, err := s.loadImage(ctx, canonical, width, height)
	if err != nil {
		return err
	}

	if err := s.ensureCoordinate(ctx, imageID); err != nil {
		return err
	}

	if solar != nil && !solar.Processed {
		if err := s.recordSolarDetection(ctx, imageID, solar); err != nil {
			return err
		}
		if err := s.docs.MarkProcessed(ctx, solar.ID); err != nil {
			return err
		}
		solar.Processed = true
	}

	if roof != nil && !roof.Processed {
		if err := s.recordRoofType(ctx, imageID, roof); err != nil {
			return err
		}
		if err := s.docs.MarkProcessed(ctx, roof.ID); err != nil {
			return err
		}
		roof.Processed = true
	}

	return nil
}

// loadImage returns the image row for the canonical filename, creating
// it on first sight. Exactly one operational row exists per filename.
func (s *extractService) loadImage(ctx context.Context, filename string, width, height int) (int64, error) {
	imageID, err := s.op.GetImageIDByFilename(ctx, filename)
	if err == nil {
		return imageID, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return 0, err
	}

	imageID, err = s.op.InsertImage(ctx, width, height, filename, nil)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Inserted image",
		zap.String("filename", filename),
		zap.Int64("image_id", imageID))
	return imageID, nil
}

// ensureCoordinate inserts one random-within-region coordinate iff the
// image has none yet.
func (s *extractService) ensureCoordinate(ctx context.Context, imageID int64) error {
	has, err := s.op.HasCoordinate(ctx, imageID)
	if err != nil || has {
		return err
	}

	latitude := s.region.LatMin + rand.Float64()*(s.region.LatMax-s.region.LatMin)
	longitude := s.region.LonMin + rand.Float64()*(s.region.LonMax-s.region.LonMin)
	if _, err := s.op.InsertCoordinate(ctx, imageID, latitude, longitude); err != nil {
		return err
	}
	return nil
}

func (s *extractService) recordSolarDetection(ctx context.Context, imageID int64, doc *models.ResultDocument) error {
	has, err := s.op.HasDetections(ctx, imageID)
	if err != nil {
		return err
	}
	if has {
		// Rows already landed on an earlier attempt whose processed mark
		// failed; marking proceeds, inserts do not.
		return nil
	}

	inserted := 0
	for i := range doc.Predictions {
		p := &doc.Predictions[i]
		if p.Class == "" {
			continue
		}
		detection := &models.SolarPanelDetection{
			ImageID:    imageID,
			ClassName:  p.Class,
			Confidence: p.Confidence,
			X:          p.X,
			Y:          p.Y,
			Width:      p.Width,
			Height:     p.Height,
		}
		if _, err := s.op.InsertSolarPanelDetection(ctx, detection); err != nil {
			return err
		}
		inserted++
		s.logger.Debug("Recorded detection",
			zap.Int64("image_id", imageID),
			zap.String("annotated_image", p.AnnotatedImageName()),
			zap.Float64("confidence", p.Confidence))
	}

	if inserted == 0 {
		// Sentinel row: the model ran and found nothing, which must stay
		// distinguishable from "never processed".
		if err := s.op.InsertNoDetections(ctx, imageID); err != nil {
			return err
		}
		s.logger.Info("No detections found, recorded sentinel",
			zap.Int64("image_id", imageID))
		return nil
	}

	s.logger.Info("Recorded solar panel detections",
		zap.Int64("image_id", imageID),
		zap.Int("detections", inserted))
	return nil
}

func (s *extractService) recordRoofType(ctx context.Context, imageID int64, doc *models.ResultDocument) error {
	has, err := s.op.HasPredictions(ctx, imageID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	if len(doc.Predictions) == 0 {
		s.logger.Warn("Roof type document carries no predictions",
			zap.Int64("image_id", imageID),
			zap.String("filename", doc.Filename))
		return nil
	}

	// The classifier emits one entry whose nested map holds a confidence
	// per roof class; each class becomes one prediction row.
	first := doc.Predictions[0]
	predictionType := first.PredictionType
	if predictionType == "" {
		predictionType = doc.PredictionType
	}

	inserted := 0
	for className, cc := range first.Predictions {
		prediction := &models.RoofTypePrediction{
			ImageID:        imageID,
			ClassName:      className,
			TimeTaken:      first.Time,
			Confidence:     cc.Confidence,
			PredictionType: predictionType,
		}
		if _, err := s.op.InsertRoofTypePrediction(ctx, prediction); err != nil {
			return err
		}
		inserted++
	}

	s.logger.Info("Recorded roof type predictions",
		zap.Int64("image_id", imageID),
		zap.Int("classes", inserted))
	return nil
}

// imageDimensions takes the source dimensions from whichever pair member
// is present, preferring the detection document.
func imageDimensions(solar, roof *models.ResultDocument) (int, int) {
	if solar != nil {
		return solar.Image.Width, solar.Image.Height
	}
	if roof != nil {
		return roof.Image.Width, roof.Image.Height
	}
	return 0, 0
}
