package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skyatlas/solarwarehouse/pkg/apperrors"
	"github.com/skyatlas/solarwarehouse/pkg/database"
	"github.com/skyatlas/solarwarehouse/pkg/models"
)

// StarRepository populates the star schema from currently-valid history
// rows. Dimension transforms are set-based statements; fact assembly is
// driven row-by-row by the star service so a single unresolvable image
// does not sink the run.
type StarRepository interface {
	// TruncateStar empties all dimension and fact tables with cascade.
	// The star schema is always rebuilt from history, never patched.
	TruncateStar(ctx context.Context) error
	// PopulateDimDate inserts the given calendar rows, skipping dates
	// already present.
	PopulateDimDate(ctx context.Context, dims []models.DimDate) (int64, error)
	// TransferImageDimensions builds dim_images from currently-valid
	// history images joined with their coordinates.
	TransferImageDimensions(ctx context.Context) (int64, error)
	TransferRoofTypeDimensions(ctx context.Context) (int64, error)
	TransferSolarPanelDimensions(ctx context.Context) (int64, error)
	// ListCurrentFactSources left-joins every currently-valid history
	// image with its open prediction and detection versions.
	ListCurrentFactSources(ctx context.Context) ([]models.FactSource, error)
	LookupDimImageID(ctx context.Context, imageID int64) (int64, error)
	LookupDimRoofTypeID(ctx context.Context, predictionID int64) (int64, error)
	LookupDimSolarPanelID(ctx context.Context, detectionID int64) (int64, error)
	// LookupDateID resolves a timestamp to its dim_date entry by exact
	// calendar date. Returns ErrDateNotDimensioned when the date
	// dimension has no row for it.
	LookupDateID(ctx context.Context, ts time.Time) (int, error)
	InsertFact(ctx context.Context, fact *models.FactImage) error
}

type starRepository struct {
	db *database.DB
}

// NewStarRepository creates a StarRepository over the warehouse pool.
func NewStarRepository(db *database.DB) StarRepository {
	return &starRepository{db: db}
}

var _ StarRepository = (*starRepository)(nil)

func (r *starRepository) TruncateStar(ctx context.Context) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin star truncation: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tables := []string{"fact_images", "dim_images", "dim_predictions_roof_type", "dim_detections_solar_panel"}
	for _, table := range tables {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE star.%s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate star.%s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit star truncation: %w", err)
	}
	return nil
}

func (r *starRepository) PopulateDimDate(ctx context.Context, dims []models.DimDate) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin dim_date population: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, d := range dims {
		batch.Queue(`
			INSERT INTO star.dim_date (date_id, date, year, month, day, week, quarter)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (date) DO NOTHING`,
			d.DateID, d.Date, d.Year, d.Month, d.Day, d.Week, d.Quarter)
	}

	results := tx.SendBatch(ctx, batch)
	var inserted int64
	for range dims {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("failed to insert dim_date row: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close dim_date batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit dim_date population: %w", err)
	}
	return inserted, nil
}

func (r *starRepository) TransferImageDimensions(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO star.dim_images (image_id, width, height, filename, latitude, longitude)
		SELECT i.image_id, i.width, i.height, i.filename, c.latitude, c.longitude
		FROM history.images AS i
		JOIN history.coordinates AS c ON i.image_id = c.image_id
		WHERE i.valid_to IS NULL AND c.valid_to IS NULL
		ON CONFLICT (image_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to transfer image dimensions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *starRepository) TransferRoofTypeDimensions(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO star.dim_predictions_roof_type
			(prediction_id, class_name, time_taken, confidence, prediction_type, date_processed)
		SELECT prediction_id, class_name, time_taken, confidence, prediction_type, date_processed
		FROM history.predictions_roof_type
		WHERE valid_to IS NULL
		ON CONFLICT (prediction_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to transfer roof type dimensions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *starRepository) TransferSolarPanelDimensions(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO star.dim_detections_solar_panel
			(detection_id, class_name, confidence, x, y, width, height, image_data, date_processed)
		SELECT detection_id, class_name, confidence, x, y, width, height, image_data, date_processed
		FROM history.detection_solar_panel
		WHERE valid_to IS NULL
		ON CONFLICT (detection_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to transfer solar panel dimensions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *starRepository) ListCurrentFactSources(ctx context.Context) ([]models.FactSource, error) {
	rows, err := r.db.Query(ctx, `
		SELECT i.image_id, i.date_uploaded, pr.prediction_id, dsp.detection_id
		FROM history.images AS i
		LEFT JOIN history.predictions_roof_type AS pr
			ON i.image_id = pr.image_id AND pr.valid_to IS NULL
		LEFT JOIN history.detection_solar_panel AS dsp
			ON i.image_id = dsp.image_id AND dsp.valid_to IS NULL
		WHERE i.valid_to IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fact sources: %w", err)
	}

	sources, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.FactSource, error) {
		var s models.FactSource
		err := row.Scan(&s.ImageID, &s.DateUploaded, &s.PredictionID, &s.DetectionID)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan fact sources: %w", err)
	}
	return sources, nil
}

func (r *starRepository) LookupDimImageID(ctx context.Context, imageID int64) (int64, error) {
	return r.lookupSurrogate(ctx,
		`SELECT dim_image_id FROM star.dim_images WHERE image_id = $1`, imageID)
}

func (r *starRepository) LookupDimRoofTypeID(ctx context.Context, predictionID int64) (int64, error) {
	return r.lookupSurrogate(ctx,
		`SELECT dim_roof_type_id FROM star.dim_predictions_roof_type WHERE prediction_id = $1`, predictionID)
}

func (r *starRepository) LookupDimSolarPanelID(ctx context.Context, detectionID int64) (int64, error) {
	return r.lookupSurrogate(ctx,
		`SELECT dim_solar_panel_id FROM star.dim_detections_solar_panel WHERE detection_id = $1`, detectionID)
}

func (r *starRepository) LookupDateID(ctx context.Context, ts time.Time) (int, error) {
	var dateID int
	err := r.db.QueryRow(ctx,
		`SELECT date_id FROM star.dim_date WHERE date = $1::date`, ts,
	).Scan(&dateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrDateNotDimensioned
		}
		return 0, fmt.Errorf("failed to look up date_id: %w", err)
	}
	return dateID, nil
}

func (r *starRepository) InsertFact(ctx context.Context, fact *models.FactImage) error {
	query := `
		INSERT INTO star.fact_images
			(dim_image_id, dim_roof_type_id, dim_solar_panel_id, date_id, image_date_uploaded)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query,
		fact.DimImageID, fact.DimRoofTypeID, fact.DimSolarPanelID, fact.DateID, fact.ImageDateUploaded)
	if err != nil {
		return fmt.Errorf("failed to insert fact row: %w", err)
	}
	return nil
}

func (r *starRepository) lookupSurrogate(ctx context.Context, query string, naturalKey int64) (int64, error) {
	var surrogate int64
	err := r.db.QueryRow(ctx, query, naturalKey).Scan(&surrogate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to look up surrogate key: %w", err)
	}
	return surrogate, nil
}
