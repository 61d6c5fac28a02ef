package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skyatlas/solarwarehouse/pkg/config"
	"github.com/skyatlas/solarwarehouse/pkg/database"
	"github.com/skyatlas/solarwarehouse/pkg/documents"
	"github.com/skyatlas/solarwarehouse/pkg/logging"
	"github.com/skyatlas/solarwarehouse/pkg/repositories"
	"github.com/skyatlas/solarwarehouse/pkg/services"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Missing .env is fine; containers inject the environment directly.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "solarwarehouse",
		Short:        "Batch pipeline moving vision-model results into the star-schema warehouse",
		Version:      Version,
		SilenceUsage: true,
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	var migrationsPath string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply warehouse schema migrations (all four schemas)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(configPath, func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
				db, err := sql.Open("pgx", cfg.Database.ConnectionString())
				if err != nil {
					return fmt.Errorf("failed to open database: %w", err)
				}
				defer db.Close()
				return database.RunMigrations(db, migrationsPath, logger)
			})
		},
	}
	migrateCmd.Flags().StringVar(&migrationsPath, "migrations", "migrations", "path to migration files")

	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Reconcile paired result documents and load the operational schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(configPath, func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
				store, err := database.NewMongoStore(ctx, &cfg.Mongo)
				if err != nil {
					return err
				}
				defer store.Close(context.Background()) //nolint:errcheck

				db, err := database.NewConnection(ctx, &cfg.Database)
				if err != nil {
					return err
				}
				defer db.Close()

				svc := services.NewExtractService(
					documents.NewRepository(store.Collection),
					repositories.NewOperationalRepository(db),
					cfg.Region,
					cfg.Env == "DEBUG",
					logger)
				return svc.Run(ctx)
			})
		},
	}

	stageCmd := &cobra.Command{
		Use:   "stage",
		Short: "Snapshot the operational schema into staging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(configPath, func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
				db, err := database.NewConnection(ctx, &cfg.Database)
				if err != nil {
					return err
				}
				defer db.Close()

				svc := services.NewStageService(repositories.NewStageRepository(db), logger)
				return svc.Run(ctx)
			})
		},
	}

	historizeCmd := &cobra.Command{
		Use:   "historize",
		Short: "Merge the staged snapshot into history (SCD Type 2)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(configPath, func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
				db, err := database.NewConnection(ctx, &cfg.Database)
				if err != nil {
					return err
				}
				defer db.Close()

				svc := services.NewHistoryService(
					repositories.NewHistoryRepository(db),
					cfg.History.DetectChanges,
					logger)
				return svc.Run(ctx)
			})
		},
	}

	starCmd := &cobra.Command{
		Use:   "star",
		Short: "Rebuild the star schema (dimensions and facts) from history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(configPath, func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
				db, err := database.NewConnection(ctx, &cfg.Database)
				if err != nil {
					return err
				}
				defer db.Close()

				svc := services.NewStarService(
					repositories.NewStarRepository(db),
					cfg.DateDim,
					logger)
				return svc.Run(ctx)
			})
		},
	}

	root.AddCommand(migrateCmd, extractCmd, stageCmd, historizeCmd, starCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withRuntime loads configuration, builds the run-scoped logger, and
// hands both to the stage body. Each invocation gets its own run ID.
func withRuntime(configPath string, run func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error) error {
	var (
		cfg *config.Config
		err error
	)
	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("Stage failed", zap.Error(err))
		return err
	}
	return nil
}
