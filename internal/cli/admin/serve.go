package admin

import (
	"fmt"
	"time"

	"github.com/cloo-solutions/storyrag/internal/cli"
	"github.com/cloo-solutions/storyrag/internal/database"
	"github.com/cloo-solutions/storyrag/internal/jobs"
	"github.com/cloo-solutions/storyrag/internal/repository"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing worker",
		Long:  "Apply migrations, then drain the index job queue into the vector store until interrupted",
		RunE:  runServe,
	}

	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Duration("stale-after", 15*time.Minute, "Requeue jobs left processing for longer than this on startup")
	cli.Requires(cmd, cli.RequiresDatabase)

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	log := app.Log

	pool, err := app.RequirePool("serve")
	if err != nil {
		return err
	}
	log.Info("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if _, err := database.Migrate(app.Config.DatabaseURL, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if app.Storage != nil {
		if err := app.Storage.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Info("S3 bucket ready", "bucket", app.Config.S3Bucket)
	}

	jobRepo := repository.NewIndexJobRepository(pool)
	staleAfter, _ := cmd.Flags().GetDuration("stale-after")
	requeued, err := jobRepo.RequeueStale(ctx, staleAfter)
	if err != nil {
		return fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	if requeued > 0 {
		log.Warn("requeued stale index jobs", "count", requeued)
	}

	// Warm the model in the background.
	go func() {
		if err := app.Embedder.Init(ctx); err != nil {
			log.Warn("embedding model not ready, jobs will retry", "error", err)
		}
	}()

	processor := jobs.NewIndexWorker(jobRepo, app.Retrieval, app.Embedder, log)
	worker := jobs.NewWorker(processor, app.Config.WorkerPollInterval, log)
	go worker.Start(ctx)
	log.Info("index worker started")

	<-ctx.Done()
	log.Info("shutting down...")
	worker.Stop()

	log.Info("worker exited")
	return nil
}
