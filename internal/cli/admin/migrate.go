package admin

import (
	"fmt"

	"github.com/cloo-solutions/storyrag/internal/cli"
	"github.com/cloo-solutions/storyrag/internal/config"
	"github.com/cloo-solutions/storyrag/internal/database"
	"github.com/cloo-solutions/storyrag/internal/logger"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply the embedded schema migrations, or roll back with --down",
		RunE:  runMigrate,
	}

	cmd.Flags().Int("down", 0, "Roll back this many migrations instead of applying")
	cli.Requires(cmd, cli.RequiresDatabase)

	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("migrate requires STORYRAG_DATABASE_URL")
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	down, _ := cmd.Flags().GetInt("down")
	var version uint
	if down > 0 {
		version, err = database.MigrateDown(cfg.DatabaseURL, down, log)
	} else {
		version, err = database.Migrate(cfg.DatabaseURL, log)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d\n", version)
	return nil
}
