package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "satellite_warehouse", cfg.Database.Database)
	assert.Equal(t, int32(5), cfg.Database.MaxConnections)
	assert.Equal(t, 2020, cfg.DateDim.StartYear)
	assert.Equal(t, 2025, cfg.DateDim.EndYear)
	assert.False(t, cfg.History.DetectChanges)

	// Hungary bounding box.
	assert.Less(t, cfg.Region.LatMin, cfg.Region.LatMax)
	assert.Less(t, cfg.Region.LonMin, cfg.Region.LonMax)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPASSWORD", "s3cret")
	t.Setenv("HISTORY_DETECT_CHANGES", "true")
	t.Setenv("DATE_DIM_END_YEAR", "2030")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.History.DetectChanges)
	assert.Equal(t, 2030, cfg.DateDim.EndYear)
	assert.Contains(t, cfg.Database.ConnectionString(), "password=s3cret")
}

func TestLoadFromEnv_InvalidRegionRejected(t *testing.T) {
	t.Setenv("REGION_LAT_MIN", "50")
	t.Setenv("REGION_LAT_MAX", "45")

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromEnv_InvalidDateRangeRejected(t *testing.T) {
	t.Setenv("DATE_DIM_START_YEAR", "2026")
	t.Setenv("DATE_DIM_END_YEAR", "2020")

	_, err := LoadFromEnv()
	assert.Error(t, err)
}
