package health

import (
	"context"
	"sync"
	"time"

	"github.com/kaizen2025/bulkops/internal/infra/storage"
)

// Checker reports the liveness of one external dependency.
type Checker interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from the engine's dependencies.
type Monitor struct {
	checkers   map[string]Checker
	auditRepo  storage.AuditRepository
	auditCap   int
	lastCheck  time.Time
	lastReport *Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. Checkers map dependency
// names (database, redis) to their liveness probes; optional
// dependencies are simply absent from the map.
func NewMonitor(checkers map[string]Checker, auditRepo storage.AuditRepository, auditCap int) *Monitor {
	return &Monitor{
		checkers:  checkers,
		auditRepo: auditRepo,
		auditCap:  auditCap,
	}
}

// CheckHealth probes every dependency and derives the system status.
func (m *Monitor) CheckHealth(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (max once per 10s) to avoid hammering dependencies
	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport != nil {
		return m.lastReport
	}

	report := &Report{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
		AuditCap:     m.auditCap,
	}

	for name, checker := range m.checkers {
		component := ComponentHealth{Name: name, Status: StatusHealthy}
		if err := checker.Health(ctx); err != nil {
			component.Status = StatusCritical
			component.Detail = err.Error()
		}
		report.Components[name] = component
	}

	if m.auditRepo != nil {
		if count, err := m.auditRepo.Count(ctx); err == nil {
			report.AuditEntries = count
			// A log near capacity still works but signals rotation churn.
			status := StatusHealthy
			if m.auditCap > 0 && count >= m.auditCap {
				status = StatusDegraded
			}
			report.Components["audit"] = ComponentHealth{Name: "audit", Status: status}
		} else {
			report.Components["audit"] = ComponentHealth{
				Name:   "audit",
				Status: StatusCritical,
				Detail: err.Error(),
			}
		}
	}

	// Aggregate status (worst case wins)
	for _, component := range report.Components {
		if component.Status == StatusCritical {
			report.SystemStatus = StatusCritical
			break
		}
		if component.Status == StatusDegraded {
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
