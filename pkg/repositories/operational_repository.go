package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/skyatlas/solarwarehouse/pkg/apperrors"
	"github.com/skyatlas/solarwarehouse/pkg/database"
	"github.com/skyatlas/solarwarehouse/pkg/models"
)

// OperationalRepository provides data access for the operational schema.
// Writes are primitive; idempotency guards (lookup before insert,
// existence checks) are composed by the extract service.
type OperationalRepository interface {
	GetImageIDByFilename(ctx context.Context, filename string) (int64, error)
	InsertImage(ctx context.Context, width, height int, filename string, imageData []byte) (int64, error)
	HasCoordinate(ctx context.Context, imageID int64) (bool, error)
	InsertCoordinate(ctx context.Context, imageID int64, latitude, longitude float64) (int64, error)
	HasPredictions(ctx context.Context, imageID int64) (bool, error)
	HasDetections(ctx context.Context, imageID int64) (bool, error)
	InsertRoofTypePrediction(ctx context.Context, p *models.RoofTypePrediction) (int64, error)
	InsertSolarPanelDetection(ctx context.Context, d *models.SolarPanelDetection) (int64, error)
	InsertNoDetections(ctx context.Context, imageID int64) error
	// Reset truncates all operational tables and restarts their
	// identities. Debug use only.
	Reset(ctx context.Context) error
}

type operationalRepository struct {
	db *database.DB
}

// NewOperationalRepository creates an OperationalRepository over the
// warehouse pool.
func NewOperationalRepository(db *database.DB) OperationalRepository {
	return &operationalRepository{db: db}
}

var _ OperationalRepository = (*operationalRepository)(nil)

func (r *operationalRepository) GetImageIDByFilename(ctx context.Context, filename string) (int64, error) {
	query := `SELECT image_id FROM satellite_image_processing.images WHERE filename = $1`

	var imageID int64
	err := r.db.QueryRow(ctx, query, filename).Scan(&imageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to look up image by filename: %w", err)
	}
	return imageID, nil
}

func (r *operationalRepository) InsertImage(ctx context.Context, width, height int, filename string, imageData []byte) (int64, error) {
	query := `
		INSERT INTO satellite_image_processing.images (width, height, filename, image_data)
		VALUES ($1, $2, $3, $4)
		RETURNING image_id`

	var imageID int64
	err := r.db.QueryRow(ctx, query, width, height, filename, imageData).Scan(&imageID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert image: %w", err)
	}
	return imageID, nil
}

func (r *operationalRepository) HasCoordinate(ctx context.Context, imageID int64) (bool, error) {
	return r.exists(ctx,
		`SELECT COUNT(*) FROM satellite_image_processing.coordinates WHERE image_id = $1`,
		imageID)
}

func (r *operationalRepository) InsertCoordinate(ctx context.Context, imageID int64, latitude, longitude float64) (int64, error) {
	query := `
		INSERT INTO satellite_image_processing.coordinates (image_id, latitude, longitude)
		VALUES ($1, $2, $3)
		RETURNING coordinates_id`

	var coordinatesID int64
	err := r.db.QueryRow(ctx, query, imageID, latitude, longitude).Scan(&coordinatesID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert coordinate: %w", err)
	}
	return coordinatesID, nil
}

func (r *operationalRepository) HasPredictions(ctx context.Context, imageID int64) (bool, error) {
	return r.exists(ctx,
		`SELECT COUNT(*) FROM satellite_image_processing.predictions_roof_type WHERE image_id = $1`,
		imageID)
}

func (r *operationalRepository) HasDetections(ctx context.Context, imageID int64) (bool, error) {
	return r.exists(ctx,
		`SELECT COUNT(*) FROM satellite_image_processing.detection_solar_panel WHERE image_id = $1`,
		imageID)
}

func (r *operationalRepository) InsertRoofTypePrediction(ctx context.Context, p *models.RoofTypePrediction) (int64, error) {
	query := `
		INSERT INTO satellite_image_processing.predictions_roof_type
			(image_id, class_name, time_taken, confidence, prediction_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING prediction_id`

	var predictionID int64
	err := r.db.QueryRow(ctx, query,
		p.ImageID, p.ClassName, p.TimeTaken, p.Confidence, p.PredictionType,
	).Scan(&predictionID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert roof type prediction: %w", err)
	}
	return predictionID, nil
}

func (r *operationalRepository) InsertSolarPanelDetection(ctx context.Context, d *models.SolarPanelDetection) (int64, error) {
	query := `
		INSERT INTO satellite_image_processing.detection_solar_panel
			(image_id, class_name, confidence, x, y, width, height, image_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING detection_id`

	var detectionID int64
	err := r.db.QueryRow(ctx, query,
		d.ImageID, d.ClassName, d.Confidence, d.X, d.Y, d.Width, d.Height, d.ImageData,
	).Scan(&detectionID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert solar panel detection: %w", err)
	}
	return detectionID, nil
}

func (r *operationalRepository) InsertNoDetections(ctx context.Context, imageID int64) error {
	query := `
		INSERT INTO satellite_image_processing.detection_solar_panel
			(image_id, class_name, confidence, x, y, width, height, image_data)
		VALUES ($1, $2, 0, 0, 0, 0, 0, NULL)`

	if _, err := r.db.Exec(ctx, query, imageID, models.NoDetectionsClass); err != nil {
		return fmt.Errorf("failed to insert no-detections sentinel: %w", err)
	}
	return nil
}

func (r *operationalRepository) Reset(ctx context.Context) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	statements := []string{
		`TRUNCATE TABLE satellite_image_processing.images CASCADE`,
		`TRUNCATE TABLE satellite_image_processing.predictions_roof_type CASCADE`,
		`TRUNCATE TABLE satellite_image_processing.detection_solar_panel CASCADE`,
		`ALTER SEQUENCE satellite_image_processing.images_image_id_seq RESTART WITH 1`,
		`ALTER SEQUENCE satellite_image_processing.coordinates_coordinates_id_seq RESTART WITH 1`,
		`ALTER SEQUENCE satellite_image_processing.predictions_roof_type_prediction_id_seq RESTART WITH 1`,
		`ALTER SEQUENCE satellite_image_processing.detection_solar_panel_detection_id_seq RESTART WITH 1`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset operational schema: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

func (r *operationalRepository) exists(ctx context.Context, query string, imageID int64) (bool, error) {
	var count int
	if err := r.db.QueryRow(ctx, query, imageID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to run existence check: %w", err)
	}
	return count > 0, nil
}
