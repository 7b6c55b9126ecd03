package health

import (
	"encoding/json"
	"net/http"
)

// HandleHealth serves the aggregate health verdict.
func (m *Monitor) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := m.CheckHealth(r.Context())

	response := map[string]string{"status": string(report.SystemStatus)}
	w.Header().Set("Content-Type", "application/json")

	if report.SystemStatus == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// HandleDetailed serves the full per-component report.
func (m *Monitor) HandleDetailed(w http.ResponseWriter, r *http.Request) {
	report := m.CheckHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
