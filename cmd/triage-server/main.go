package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/triage/triage/internal/config"
	"github.com/triage/triage/internal/domain/assessment"
	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/domain/imaging"
	"github.com/triage/triage/internal/domain/record"
	"github.com/triage/triage/internal/domain/triage"
	"github.com/triage/triage/internal/pipeline"
	"github.com/triage/triage/internal/platform/db"
	"github.com/triage/triage/internal/platform/inference"
	"github.com/triage/triage/internal/platform/middleware"
	"github.com/triage/triage/pkg/inferencefake"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "triage-server",
		Short: "Clinical intake triage decision-support server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(assessCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the triage API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	return cmd
}

// assessCmd runs the pipeline once against an encounter read from a JSON
// file (or stdin) and prints the resulting assessment. Useful for smoke
// testing inference endpoints and for scripting.
func assessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess [file]",
		Short: "Run a single encounter through the triage pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var data []byte
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("read encounter: %w", err)
			}

			var in encounter.Input
			if err := json.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("parse encounter: %w", err)
			}
			if in.RecordedAt.IsZero() {
				in.RecordedAt = time.Now().UTC()
			}

			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			runner := newRunner(cfg, logger)

			res, err := runner.Run(cmd.Context(), &in)
			if err != nil {
				return err
			}
			runID, err := record.RunID(&in)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(map[string]interface{}{
				"run_id":     runID,
				"phase":      res.State.Phase,
				"stages":     res.State.Stages,
				"assessment": res.State.Assessment,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	// Repository: Postgres when configured, in-memory otherwise.
	var repo assessment.Repository
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
		repo = assessment.NewRepoPG(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, assessments held in memory only")
		repo = assessment.NewRepoMemory()
	}

	runner := newRunner(cfg, logger)
	svc := assessment.NewService(repo, runner, logger)
	handler := assessment.NewHandler(svc)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit("1M", "20M"))
	// Leave room for the full classification ladder plus documentation.
	e.Use(middleware.RequestTimeout(cfg.InferenceTimeout + cfg.InferenceRetryTimeout + 30*time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	apiV1 := e.Group("/api/v1")
	handler.RegisterRoutes(apiV1)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newRunner wires the pipeline from configuration: gateway, image analyzer,
// classifier, record builder.
func newRunner(cfg *config.Config, logger zerolog.Logger) *pipeline.Runner {
	var gw inference.Gateway
	if cfg.InferenceFake {
		logger.Warn().Msg("using deterministic fake inference gateway")
		gw = inferencefake.New()
	} else {
		gw = inference.NewClient(inference.ClientConfig{
			TextURL:    cfg.InferenceTextURL,
			ImageURL:   cfg.InferenceImageURL,
			APIKey:     cfg.InferenceAPIKey,
			TextModel:  cfg.InferenceTextModel,
			ImageModel: cfg.InferenceImageModel,
			Timeout:    cfg.InferenceTimeout,
		})
	}

	policy := pipeline.DefaultPolicy()
	policy.InferenceTimeout = cfg.InferenceTimeout
	policy.RetryTimeout = cfg.InferenceRetryTimeout
	policy.ImageTimeout = cfg.InferenceTimeout

	analyzer := imaging.NewAnalyzer(gw)
	classifier := triage.NewClassifier(gw, triage.NewEngine())
	builder := record.NewBuilder()

	return pipeline.NewRunner(analyzer, classifier, builder, policy, logger)
}
