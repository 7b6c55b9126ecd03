package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaizen2025/bulkops/internal/core/config"
	"github.com/kaizen2025/bulkops/internal/infra/storage/postgres"
)

var purgeCmd = &cobra.Command{
	Use:   "purge-audit [max_age]",
	Short: "Delete audit entries older than the given duration (e.g. 720h)",
	Args:  cobra.ExactArgs(1),
	Run:   runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) {
	maxAge, err := time.ParseDuration(args[0])
	if err != nil {
		fmt.Printf("Invalid duration: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	repo := postgres.NewAuditRepo(db, cfg.Audit.MaxEntries)
	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-maxAge))
	if err != nil {
		slog.Error("Failed to purge audit log", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Deleted %d audit entries older than %s\n", deleted, maxAge)
}
