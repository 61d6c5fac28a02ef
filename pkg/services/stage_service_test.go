package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skyatlas/solarwarehouse/pkg/repositories"
)

type mockStageRepo struct {
	copied  []string
	rows    map[string]int64
	failOn  string
	failErr error
}

func (m *mockStageRepo) CopyTable(_ context.Context, table string) (int64, error) {
	if table == m.failOn {
		return 0, m.failErr
	}
	m.copied = append(m.copied, table)
	return m.rows[table], nil
}

func TestStage_CopiesTablesParentFirst(t *testing.T) {
	repo := &mockStageRepo{rows: map[string]int64{"images": 3, "coordinates": 3}}

	svc := NewStageService(repo, zap.NewNop())
	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, repositories.PipelineTables, repo.copied)
}

func TestStage_FailedTableDoesNotAbortRun(t *testing.T) {
	repo := &mockStageRepo{
		failOn:  "coordinates",
		failErr: errors.New("deadlock detected"),
	}

	svc := NewStageService(repo, zap.NewNop())
	require.NoError(t, svc.Run(context.Background()))

	// Every other table was still copied in order.
	assert.Equal(t,
		[]string{"images", "predictions_roof_type", "detection_solar_panel"},
		repo.copied)
}
