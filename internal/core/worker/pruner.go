package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/kaizen2025/bulkops/internal/infra/storage"
)

// Pruner deletes old audit entries based on the retention policy.
type Pruner struct {
	retention time.Duration
	auditRepo storage.AuditRepository
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, auditRepo storage.AuditRepository) *Pruner {
	return &Pruner{
		retention: retention,
		auditRepo: auditRepo,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Calculate check interval (e.g., 10% of retention period, but max 1 hour)
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	deleted, err := p.auditRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("[Pruner] failed to prune audit entries", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("[Pruner] pruned audit entries", "deleted", deleted, "cutoff", cutoff)
	}
}
