package repositories

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skyatlas/solarwarehouse/pkg/database"
	"github.com/skyatlas/solarwarehouse/pkg/models"
)

// TableMergeStats counts what one table's merge did.
type TableMergeStats struct {
	Closed    int // open versions closed
	Opened    int // new versions opened
	Unchanged int // staged rows skipped by change detection
}

// MergeStats aggregates merge results per pipeline table.
type MergeStats struct {
	Images      TableMergeStats
	Coordinates TableMergeStats
	Predictions TableMergeStats
	Detections  TableMergeStats
}

// HistoryRepository applies SCD Type 2 semantics: per natural key the
// current open version (valid_to IS NULL) is closed and a new version
// opened from the staged row. The whole merge is one transaction.
type HistoryRepository interface {
	// MergeAll merges every staged table parent-first. With detectChanges
	// false a new version is opened for every staged row, changed or not,
	// matching the source system. With detectChanges true an
	// attribute-identical staged row leaves the open version untouched.
	MergeAll(ctx context.Context, detectChanges bool) (*MergeStats, error)
}

type historyRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a HistoryRepository over the warehouse pool.
func NewHistoryRepository(db *database.DB) HistoryRepository {
	return &historyRepository{db: db}
}

var _ HistoryRepository = (*historyRepository)(nil)

func (r *historyRepository) MergeAll(ctx context.Context, detectChanges bool) (*MergeStats, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// One timestamp for the whole batch: each closed version's valid_to
	// equals its successor's valid_from.
	now := time.Now()

	stats := &MergeStats{}
	if stats.Images, err = r.mergeImages(ctx, tx, now, detectChanges); err != nil {
		return nil, err
	}
	if stats.Coordinates, err = r.mergeCoordinates(ctx, tx, now, detectChanges); err != nil {
		return nil, err
	}
	if stats.Predictions, err = r.mergePredictions(ctx, tx, now, detectChanges); err != nil {
		return nil, err
	}
	if stats.Detections, err = r.mergeDetections(ctx, tx, now, detectChanges); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit history merge: %w", err)
	}
	return stats, nil
}

func (r *historyRepository) mergeImages(ctx context.Context, tx pgx.Tx, now time.Time, detectChanges bool) (TableMergeStats, error) {
	var stats TableMergeStats

	rows, err := tx.Query(ctx, `
		SELECT image_id, width, height, filename, image_data, date_uploaded
		FROM stage.images`)
	if err != nil {
		return stats, fmt.Errorf("failed to read staged images: %w", err)
	}
	staged, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Image, error) {
		var img models.Image
		err := row.Scan(&img.ImageID, &img.Width, &img.Height, &img.Filename, &img.ImageData, &img.DateUploaded)
		return img, err
	})
	if err != nil {
		return stats, fmt.Errorf("failed to scan staged images: %w", err)
	}

	for _, img := range staged {
		var current models.Image
		err := tx.QueryRow(ctx, `
			SELECT width, height, filename, image_data, date_uploaded
			FROM history.images
			WHERE image_id = $1 AND valid_to IS NULL`, img.ImageID,
		).Scan(&current.Width, &current.Height, &current.Filename, &current.ImageData, &current.DateUploaded)

		hasOpen := true
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return stats, fmt.Errorf("failed to look up open image version %d: %w", img.ImageID, err)
			}
			hasOpen = false
		}

		if hasOpen {
			if detectChanges && imagesEqual(img, current) {
				stats.Unchanged++
				continue
			}
			if _, err := tx.Exec(ctx, `
				UPDATE history.images SET valid_to = $1
				WHERE image_id = $2 AND valid_to IS NULL`, now, img.ImageID); err != nil {
				return stats, fmt.Errorf("failed to close image version %d: %w", img.ImageID, err)
			}
			stats.Closed++
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO history.images
				(image_id, width, height, filename, image_data, date_uploaded, valid_from, valid_to)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)`,
			img.ImageID, img.Width, img.Height, img.Filename, img.ImageData, img.DateUploaded, now); err != nil {
			return stats, fmt.Errorf("failed to open image version %d: %w", img.ImageID, err)
		}
		stats.Opened++
	}
	return stats, nil
}

func (r *historyRepository) mergeCoordinates(ctx context.Context, tx pgx.Tx, now time.Time, detectChanges bool) (TableMergeStats, error) {
	var stats TableMergeStats

	rows, err := tx.Query(ctx, `
		SELECT coordinates_id, image_id, latitude, longitude
		FROM stage.coordinates`)
	if err != nil {
		return stats, fmt.Errorf("failed to read staged coordinates: %w", err)
	}
	staged, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Coordinate, error) {
		var c models.Coordinate
		err := row.Scan(&c.CoordinatesID, &c.ImageID, &c.Latitude, &c.Longitude)
		return c, err
	})
	if err != nil {
		return stats, fmt.Errorf("failed to scan staged coordinates: %w", err)
	}

	for _, c := range staged {
		var current models.Coordinate
		err := tx.QueryRow(ctx, `
			SELECT coordinates_id, latitude, longitude
			FROM history.coordinates
			WHERE image_id = $1 AND valid_to IS NULL`, c.ImageID,
		).Scan(&current.CoordinatesID, &current.Latitude, &current.Longitude)

		hasOpen := true
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return stats, fmt.Errorf("failed to look up open coordinate for image %d: %w", c.ImageID, err)
			}
			hasOpen = false
		}

		if hasOpen {
			if detectChanges && coordinatesEqual(c, current) {
				stats.Unchanged++
				continue
			}
			if _, err := tx.Exec(ctx, `
				UPDATE history.coordinates SET valid_to = $1
				WHERE image_id = $2 AND valid_to IS NULL`, now, c.ImageID); err != nil {
				return stats, fmt.Errorf("failed to close coordinate for image %d: %w", c.ImageID, err)
			}
			stats.Closed++
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO history.coordinates
				(coordinates_id, image_id, latitude, longitude, valid_from, valid_to)
			VALUES ($1, $2, $3, $4, $5, NULL)`,
			c.CoordinatesID, c.ImageID, c.Latitude, c.Longitude, now); err != nil {
			return stats, fmt.Errorf("failed to open coordinate version for image %d: %w", c.ImageID, err)
		}
		stats.Opened++
	}
	return stats, nil
}

func (r *historyRepository) mergePredictions(ctx context.Context, tx pgx.Tx, now time.Time, detectChanges bool) (TableMergeStats, error) {
	var stats TableMergeStats

	rows, err := tx.Query(ctx, `
		SELECT prediction_id, image_id, class_name, time_taken, confidence, prediction_type, date_processed
		FROM stage.predictions_roof_type`)
	if err != nil {
		return stats, fmt.Errorf("failed to read staged predictions: %w", err)
	}
	staged, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RoofTypePrediction, error) {
		var p models.RoofTypePrediction
		err := row.Scan(&p.PredictionID, &p.ImageID, &p.ClassName, &p.TimeTaken, &p.Confidence, &p.PredictionType, &p.DateProcessed)
		return p, err
	})
	if err != nil {
		return stats, fmt.Errorf("failed to scan staged predictions: %w", err)
	}

	for _, p := range staged {
		var current models.RoofTypePrediction
		err := tx.QueryRow(ctx, `
			SELECT image_id, class_name, time_taken, confidence, prediction_type, date_processed
			FROM history.predictions_roof_type
			WHERE prediction_id = $1 AND valid_to IS NULL`, p.PredictionID,
		).Scan(&current.ImageID, &current.ClassName, &current.TimeTaken, &current.Confidence, &current.PredictionType, &current.DateProcessed)

		hasOpen := true
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return stats, fmt.Errorf("failed to look up open prediction %d: %w", p.PredictionID, err)
			}
			hasOpen = false
		}

		if hasOpen {
			if detectChanges && predictionsEqual(p, current) {
				stats.Unchanged++
				continue
			}
			if _, err := tx.Exec(ctx, `
				UPDATE history.predictions_roof_type SET valid_to = $1
				WHERE prediction_id = $2 AND valid_to IS NULL`, now, p.PredictionID); err != nil {
				return stats, fmt.Errorf("failed to close prediction %d: %w", p.PredictionID, err)
			}
			stats.Closed++
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO history.predictions_roof_type
				(prediction_id, image_id, class_name, time_taken, confidence, prediction_type, date_processed, valid_from, valid_to)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)`,
			p.PredictionID, p.ImageID, p.ClassName, p.TimeTaken, p.Confidence, p.PredictionType, p.DateProcessed, now); err != nil {
			return stats, fmt.Errorf("failed to open prediction version %d: %w", p.PredictionID, err)
		}
		stats.Opened++
	}
	return stats, nil
}

func (r *historyRepository) mergeDetections(ctx context.Context, tx pgx.Tx, now time.Time, detectChanges bool) (TableMergeStats, error) {
	var stats TableMergeStats

	rows, err := tx.Query(ctx, `
		SELECT detection_id, image_id, class_name, confidence, x, y, width, height, image_data, date_processed
		FROM stage.detection_solar_panel`)
	if err != nil {
		return stats, fmt.Errorf("failed to read staged detections: %w", err)
	}
	staged, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.SolarPanelDetection, error) {
		var d models.SolarPanelDetection
		err := row.Scan(&d.DetectionID, &d.ImageID, &d.ClassName, &d.Confidence, &d.X, &d.Y, &d.Width, &d.Height, &d.ImageData, &d.DateProcessed)
		return d, err
	})
	if err != nil {
		return stats, fmt.Errorf("failed to scan staged detections: %w", err)
	}

	for _, d := range staged {
		var current models.SolarPanelDetection
		err := tx.QueryRow(ctx, `
			SELECT image_id, class_name, confidence, x, y, width, height, image_data, date_processed
			FROM history.detection_solar_panel
			WHERE detection_id = $1 AND valid_to IS NULL`, d.DetectionID,
		).Scan(&current.ImageID, &current.ClassName, &current.Confidence, &current.X, &current.Y, &current.Width, &current.Height, &current.ImageData, &current.DateProcessed)

		hasOpen := true
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return stats, fmt.Errorf("failed to look up open detection %d: %w", d.DetectionID, err)
			}
			hasOpen = false
		}

		if hasOpen {
			if detectChanges && detectionsEqual(d, current) {
				stats.Unchanged++
				continue
			}
			if _, err := tx.Exec(ctx, `
				UPDATE history.detection_solar_panel SET valid_to = $1
				WHERE detection_id = $2 AND valid_to IS NULL`, now, d.DetectionID); err != nil {
				return stats, fmt.Errorf("failed to close detection %d: %w", d.DetectionID, err)
			}
			stats.Closed++
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO history.detection_solar_panel
				(detection_id, image_id, class_name, confidence, x, y, width, height, image_data, date_processed, valid_from, valid_to)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULL)`,
			d.DetectionID, d.ImageID, d.ClassName, d.Confidence, d.X, d.Y, d.Width, d.Height, d.ImageData, d.DateProcessed, now); err != nil {
			return stats, fmt.Errorf("failed to open detection version %d: %w", d.DetectionID, err)
		}
		stats.Opened++
	}
	return stats, nil
}

// Attribute equality for change detection. Values pass through the
// pipeline verbatim, so exact comparison is correct; no float tolerance.

func imagesEqual(a, b models.Image) bool {
	return a.Width == b.Width &&
		a.Height == b.Height &&
		a.Filename == b.Filename &&
		bytes.Equal(a.ImageData, b.ImageData) &&
		a.DateUploaded.Equal(b.DateUploaded)
}

func coordinatesEqual(a, b models.Coordinate) bool {
	return a.Latitude == b.Latitude && a.Longitude == b.Longitude
}

func predictionsEqual(a, b models.RoofTypePrediction) bool {
	return a.ImageID == b.ImageID &&
		a.ClassName == b.ClassName &&
		a.TimeTaken == b.TimeTaken &&
		a.Confidence == b.Confidence &&
		a.PredictionType == b.PredictionType &&
		a.DateProcessed.Equal(b.DateProcessed)
}

func detectionsEqual(a, b models.SolarPanelDetection) bool {
	return a.ImageID == b.ImageID &&
		a.ClassName == b.ClassName &&
		a.Confidence == b.Confidence &&
		a.X == b.X && a.Y == b.Y &&
		a.Width == b.Width && a.Height == b.Height &&
		bytes.Equal(a.ImageData, b.ImageData) &&
		a.DateProcessed.Equal(b.DateProcessed)
}
