package repositories

import (
	"context"
	"fmt"

	"github.com/skyatlas/solarwarehouse/pkg/database"
)

// StageRepository bulk-copies operational tables into the staging schema,
// giving the history merge a snapshot that does not move underneath it.
type StageRepository interface {
	// CopyTable truncates the staging table and copies every operational
	// row verbatim, in one transaction. Returns the rows copied.
	CopyTable(ctx context.Context, table string) (int64, error)
}

type stageRepository struct {
	db *database.DB
}

// NewStageRepository creates a StageRepository over the warehouse pool.
func NewStageRepository(db *database.DB) StageRepository {
	return &stageRepository{db: db}
}

var _ StageRepository = (*stageRepository)(nil)

func (r *stageRepository) CopyTable(ctx context.Context, table string) (int64, error) {
	if !validPipelineTable(table) {
		return 0, fmt.Errorf("unknown pipeline table %q", table)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin copy transaction for %s: %w", table, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		fmt.Sprintf("TRUNCATE TABLE %s.%s CASCADE", StageSchema, table)); err != nil {
		return 0, fmt.Errorf("failed to truncate %s.%s: %w", StageSchema, table, err)
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s.%s SELECT * FROM %s.%s",
		StageSchema, table, OperationalSchema, table))
	if err != nil {
		return 0, fmt.Errorf("failed to copy %s into staging: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit copy of %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func validPipelineTable(table string) bool {
	for _, t := range PipelineTables {
		if t == table {
			return true
		}
	}
	return false
}
