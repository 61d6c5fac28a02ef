//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyatlas/solarwarehouse/pkg/apperrors"
	"github.com/skyatlas/solarwarehouse/pkg/models"
	"github.com/skyatlas/solarwarehouse/pkg/testhelpers"
)

func TestOperationalRepository_ImageRoundTrip(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateAll(t)
	ctx := context.Background()
	repo := NewOperationalRepository(tdb.DB)

	_, err := repo.GetImageIDByFilename(ctx, "img1.jpg")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	imageID, err := repo.InsertImage(ctx, 640, 640, "img1.jpg", nil)
	require.NoError(t, err)
	require.Positive(t, imageID)

	found, err := repo.GetImageIDByFilename(ctx, "img1.jpg")
	require.NoError(t, err)
	assert.Equal(t, imageID, found)
}

func TestOperationalRepository_ExistenceChecks(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateAll(t)
	ctx := context.Background()
	repo := NewOperationalRepository(tdb.DB)

	imageID, err := repo.InsertImage(ctx, 640, 640, "img2.jpg", nil)
	require.NoError(t, err)

	for name, check := range map[string]func(context.Context, int64) (bool, error){
		"coordinate": repo.HasCoordinate,
		"prediction": repo.HasPredictions,
		"detection":  repo.HasDetections,
	} {
		has, err := check(ctx, imageID)
		require.NoError(t, err, name)
		assert.False(t, has, name)
	}

	_, err = repo.InsertCoordinate(ctx, imageID, 47.2, 19.1)
	require.NoError(t, err)
	_, err = repo.InsertRoofTypePrediction(ctx, &models.RoofTypePrediction{
		ImageID: imageID, ClassName: "flat", Confidence: 0.83,
		PredictionType: models.PredictionTypeRoofType,
	})
	require.NoError(t, err)
	_, err = repo.InsertSolarPanelDetection(ctx, &models.SolarPanelDetection{
		ImageID: imageID, ClassName: "solar-panel", Confidence: 0.91,
		X: 120, Y: 80, Width: 42, Height: 36,
	})
	require.NoError(t, err)

	for name, check := range map[string]func(context.Context, int64) (bool, error){
		"coordinate": repo.HasCoordinate,
		"prediction": repo.HasPredictions,
		"detection":  repo.HasDetections,
	} {
		has, err := check(ctx, imageID)
		require.NoError(t, err, name)
		assert.True(t, has, name)
	}
}

func TestOperationalRepository_SentinelRow(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateAll(t)
	ctx := context.Background()
	repo := NewOperationalRepository(tdb.DB)

	imageID, err := repo.InsertImage(ctx, 640, 640, "img3.jpg", nil)
	require.NoError(t, err)

	require.NoError(t, repo.InsertNoDetections(ctx, imageID))

	has, err := repo.HasDetections(ctx, imageID)
	require.NoError(t, err)
	assert.True(t, has, "sentinel must count as processed")

	var className string
	var confidence float64
	err = tdb.Pool.QueryRow(ctx, `
		SELECT class_name, confidence
		FROM satellite_image_processing.detection_solar_panel
		WHERE image_id = $1`, imageID,
	).Scan(&className, &confidence)
	require.NoError(t, err)
	assert.Equal(t, models.NoDetectionsClass, className)
	assert.Zero(t, confidence)
}

func TestOperationalRepository_ResetRestartsIdentity(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateAll(t)
	ctx := context.Background()
	repo := NewOperationalRepository(tdb.DB)

	_, err := repo.InsertImage(ctx, 640, 640, "img4.jpg", nil)
	require.NoError(t, err)

	require.NoError(t, repo.Reset(ctx))

	_, err = repo.GetImageIDByFilename(ctx, "img4.jpg")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	again, err := repo.InsertImage(ctx, 640, 640, "img4.jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again, "identity restarts from 1 after reset")
}
