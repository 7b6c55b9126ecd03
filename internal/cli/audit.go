package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kaizen2025/bulkops/internal/core/config"
	"github.com/kaizen2025/bulkops/internal/core/domain"
	"github.com/kaizen2025/bulkops/internal/infra/storage/postgres"
)

var (
	auditActor string
	auditKind  string
	auditLimit int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recorded bulk operations",
	Run:   runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditActor, "actor", "", "filter by actor id")
	auditCmd.Flags().StringVar(&auditKind, "action", "", "filter by action kind")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries to show")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) {
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
	entries, err := repo.List(ctx, domain.AuditFilter{
		ActorID: auditActor,
		Kind:    domain.ActionKind(auditKind),
		Limit:   auditLimit,
	})
	if err != nil {
		slog.Error("Failed to query audit log", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIME\tACTION\tACTOR\tOK\tFAILED\tDURATION")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Kind, e.ActorID,
			e.Successful, e.Failed, e.Duration)
	}
	_ = w.Flush()
}
