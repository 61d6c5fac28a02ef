//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyatlas/solarwarehouse/pkg/testhelpers"
)

func TestHistoryRepository_FirstMergeOpensVersions(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateAll(t)
	ctx := context.Background()

	seedOperational(t, tdb, "img1.jpg")
	copyAllTables(t, tdb)

	stats, err := NewHistoryRepository(tdb.DB).MergeAll(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Images.Opened)
	assert.Equal(t, 0, stats.Images.Closed)
	assert.Equal(t, 1, stats.Coordinates.Opened)
	assert.Equal(t, 1, stats.Predictions.Opened)
	assert.Equal(t, 1, stats.Detections.Opened)

	var open int
	require.NoError(t, tdb.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM history.images WHERE valid_to IS NULL`).Scan(&open))
	assert.Equal(t, 1, open)
}

func TestHistoryRepository_RemergeClosesAndChains(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateAll(t)
	ctx := context.Background()
	repo := NewHistoryRepository(tdb.DB)

	imageID := seedOperational(t, tdb, "img1.jpg")
	copyAllTables(t, tdb)

	_, err := repo.MergeAll(ctx, false)
	require.NoError(t, err)
	stats, err := repo.MergeAll(ctx, false)
	require.NoError(t, err)

	// Without change detection every staged row churns a new version.
	assert.Equal(t, 1, stats.Images.Closed)
	assert.Equal(t, 1, stats.Images.Opened)

	var total, open int
	require.NoError(t, tdb.Pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE valid_to IS NULL)
		 FROM history.images WHERE image_id = $1`, imageID).Scan(&total, &open))
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, open, "exactly one open version per natural key")

	// The closed version's valid_to is the open version's valid_from.
	var closedTo, openFrom time.Time
	require.NoError(t, tdb.Pool.QueryRow(ctx,
		`SELECT valid_to FROM history.images
		 WHERE image_id = $1 AND valid_to IS NOT NULL`, imageID).Scan(&closedTo))
	require.NoError(t, tdb.Pool.QueryRow(ctx,
		`SELECT valid_from FROM history.images
		 WHERE image_id = $1 AND valid_to IS NULL`, imageID).Scan(&openFrom))
	assert.True(t, closedTo.Equal(openFrom), "version chain must have no gap")
}

func TestHistoryRepository_ChangeDetectionSkipsIdenticalRows(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateAll(t)
	ctx := context.Background()
	repo := NewHistoryRepository(tdb.DB)

	imageID := seedOperational(t, tdb, "img1.jpg")
	copyAllTables(t, tdb)

	_, err := repo.MergeAll(ctx, true)
	require.NoError(t, err)
	stats, err := repo.MergeAll(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Images.Unchanged)
	assert.Equal(t, 0, stats.Images.Opened)
	assert.Equal(t, 0, stats.Images.Closed)

	// A real attribute change still versions.
	_, err = tdb.Pool.Exec(ctx, `
		UPDATE satellite_image_processing.images
		SET width = 1024 WHERE image_id = $1`, imageID)
	require.NoError(t, err)
	copyAllTables(t, tdb)

	stats, err = repo.MergeAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Images.Closed)
	assert.Equal(t, 1, stats.Images.Opened)
	assert.Equal(t, 1, stats.Coordinates.Unchanged)

	var width int
	require.NoError(t, tdb.Pool.QueryRow(ctx,
		`SELECT width FROM history.images
		 WHERE image_id = $1 AND valid_to IS NULL`, imageID).Scan(&width))
	assert.Equal(t, 1024, width)
}
