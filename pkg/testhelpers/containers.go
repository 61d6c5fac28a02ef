package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/skyatlas/solarwarehouse/pkg/database"
)

// postgresImage is the container used for repository integration tests.
const postgresImage = "postgres:16-alpine"

// TestDB holds a shared test database container and connection pool with
// all four warehouse schemas migrated.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	DB        *database.DB
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "satellite_warehouse",
			"POSTGRES_USER":     "warehouse",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=warehouse password=test_password dbname=satellite_warehouse sslmode=disable",
		host, port.Port())

	if err := runMigrations(connStr); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create test pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping test database: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		DB:        &database.DB{Pool: pool},
		ConnStr:   connStr,
	}, nil
}

func runMigrations(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	return database.RunMigrations(db, migrationsDir(), zap.NewNop())
}

// migrationsDir resolves the repo's migrations directory relative to this
// source file, so tests work from any package directory.
func migrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")
}

// TruncateAll empties every pipeline table in every schema, giving each
// integration test a clean slate.
func (tdb *TestDB) TruncateAll(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	statements := []string{
		`TRUNCATE TABLE satellite_image_processing.images CASCADE`,
		`TRUNCATE TABLE stage.images, stage.coordinates, stage.predictions_roof_type, stage.detection_solar_panel`,
		`TRUNCATE TABLE history.images, history.coordinates, history.predictions_roof_type, history.detection_solar_panel`,
		`TRUNCATE TABLE star.fact_images, star.dim_images, star.dim_predictions_roof_type, star.dim_detections_solar_panel, star.dim_date`,
	}
	for _, stmt := range statements {
		if _, err := tdb.Pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("failed to truncate test tables: %v", err)
		}
	}
}
