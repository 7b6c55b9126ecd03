package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kaizen2025/bulkops/internal/audit"
	"github.com/kaizen2025/bulkops/internal/bulk/executor"
	"github.com/kaizen2025/bulkops/internal/bulk/recovery"
	"github.com/kaizen2025/bulkops/internal/bulk/validate"
	"github.com/kaizen2025/bulkops/internal/core/domain"
	"github.com/kaizen2025/bulkops/internal/health"
	"github.com/kaizen2025/bulkops/internal/infra/storage/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.RecordRepo) {
	t.Helper()

	store := memory.NewMemoryStorage()
	records := memory.NewRecordRepo(store)
	auditRepo := memory.NewAuditRepo(store, 100)
	audits := audit.NewService(auditRepo)
	prefs := memory.NewPreferenceRepo(store)
	exec := executor.New(records, validate.New(nil), audits, nil, nil, nil)
	coordinator := recovery.NewCoordinator(exec, records, 0)
	monitor := health.NewMonitor(nil, auditRepo, 100)

	srv := NewServer(exec, coordinator, audits, prefs, monitor, 0, 0, 0)
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts, records
}

func seed(records *memory.RecordRepo, n int, status domain.LoanStatus) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("l%d", i)
		records.Seed(&domain.LoanRecord{
			ID:         id,
			BorrowerID: fmt.Sprintf("u%d", i),
			Status:     status,
			ReturnDate: time.Now().AddDate(0, 0, 7),
		})
		ids = append(ids, id)
	}
	return ids
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return resp, decoded
}

func TestHandleExecute_Success(t *testing.T) {
	ts, records := newTestServer(t)
	seed(records, 3, domain.LoanStatusActive)

	resp, body := post(t, ts.URL+"/api/bulk-actions", `{
		"action": "extend",
		"record_ids": ["l0", "l1", "l2"],
		"params": {"days": 14},
		"actor": {"id": "admin-1", "role": "admin"}
	}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}

	result := body["result"].(map[string]any)
	if result["successful"].(float64) != 3 {
		t.Errorf("expected 3 successes, got %v", result["successful"])
	}
	if result["operation_id"] == "" {
		t.Error("expected an operation id")
	}
}

func TestHandleExecute_PermissionDenied(t *testing.T) {
	ts, records := newTestServer(t)
	seed(records, 1, domain.LoanStatusReturned)

	resp, _ := post(t, ts.URL+"/api/bulk-actions", `{
		"action": "delete",
		"record_ids": ["l0"],
		"params": {"confirmation": "DELETE"},
		"actor": {"id": "u1", "role": "user"}
	}`)

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestHandleExecute_FailureIncludesRecoveryOffers(t *testing.T) {
	ts, records := newTestServer(t)

	// Mixed delete selection: the active record fails, the returned
	// ones are swept.
	records.Seed(
		&domain.LoanRecord{ID: "d1", Status: domain.LoanStatusReturned, ReturnDate: time.Now()},
		&domain.LoanRecord{ID: "a1", Status: domain.LoanStatusActive, ReturnDate: time.Now()},
	)

	resp, body := post(t, ts.URL+"/api/bulk-actions", `{
		"action": "delete",
		"record_ids": ["d1", "a1"],
		"params": {"confirmation": "DELETE"},
		"actor": {"id": "admin-1", "role": "admin"}
	}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["classification"] == nil {
		t.Error("partial failure must include a classification")
	}
	offers, ok := body["recovery_offers"].([]any)
	if !ok || len(offers) == 0 {
		t.Fatalf("expected recovery offers, got %v", body["recovery_offers"])
	}
}

func TestHandleValidate(t *testing.T) {
	ts, records := newTestServer(t)
	seed(records, 1, domain.LoanStatusReturned)

	resp, body := post(t, ts.URL+"/api/bulk-actions/validate", `{
		"action": "extend",
		"record_ids": ["l0"],
		"params": {"days": 7},
		"actor": {"id": "admin-1", "role": "admin"}
	}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["valid"].(bool) {
		t.Error("returned loan must fail extend validation")
	}

	// Validation is a dry run: nothing is executed or audited.
	auditResp, auditBody := get(t, ts.URL+"/api/bulk-actions/audit")
	if auditResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", auditResp.StatusCode)
	}
	if entries, ok := auditBody["entries"].([]any); ok && len(entries) != 0 {
		t.Errorf("dry run must not write audit entries, got %d", len(entries))
	}
}

func get(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return resp, decoded
}

func TestHandleAuditList(t *testing.T) {
	ts, records := newTestServer(t)
	seed(records, 2, domain.LoanStatusActive)

	post(t, ts.URL+"/api/bulk-actions", `{
		"action": "extend",
		"record_ids": ["l0", "l1"],
		"params": {"days": 7},
		"actor": {"id": "admin-1", "role": "admin"}
	}`)

	resp, body := get(t, ts.URL+"/api/bulk-actions/audit?actor=admin-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	entries, ok := body["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %v", body["entries"])
	}
}

func TestHandleRecoveryFlow(t *testing.T) {
	ts, records := newTestServer(t)
	records.Seed(
		&domain.LoanRecord{ID: "d1", Status: domain.LoanStatusReturned, ReturnDate: time.Now()},
		&domain.LoanRecord{ID: "a1", Status: domain.LoanStatusActive, ReturnDate: time.Now()},
	)

	_, body := post(t, ts.URL+"/api/bulk-actions", `{
		"action": "delete",
		"record_ids": ["d1", "a1"],
		"params": {"confirmation": "DELETE"},
		"actor": {"id": "admin-1", "role": "admin"}
	}`)
	opID := body["result"].(map[string]any)["operation_id"].(string)

	resp, offers := get(t, ts.URL+"/api/bulk-actions/"+opID+"/recovery")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if offers["offers"] == nil {
		t.Fatal("expected offers in recovery session")
	}

	applyResp, applied := post(t, ts.URL+"/api/bulk-actions/"+opID+"/recovery", `{"action": "accept_partial_success"}`)
	if applyResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", applyResp.StatusCode, applied)
	}

	// The session is consumed.
	gone, _ := get(t, ts.URL+"/api/bulk-actions/"+opID+"/recovery")
	if gone.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after applying recovery, got %d", gone.StatusCode)
	}
}

func put(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("building PUT %s failed: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return resp, decoded
}

func TestHandlePreferences_RoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := put(t, ts.URL+"/api/preferences/u1/export_format", `{"value": "json"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	getResp, body := get(t, ts.URL+"/api/preferences/u1/export_format")
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}
	if body["value"] != "json" {
		t.Errorf("expected stored value json, got %v", body["value"])
	}

	// A preference never set reads back empty rather than failing.
	_, unset := get(t, ts.URL+"/api/preferences/u2/export_format")
	if unset["value"] != "" {
		t.Errorf("expected empty value for unset preference, got %v", unset["value"])
	}
}

func TestHandlePreferences_RejectsBadInput(t *testing.T) {
	ts, _ := newTestServer(t)

	if resp, _ := put(t, ts.URL+"/api/preferences/u1/favourite_colour", `{"value": "red"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown key, got %d", resp.StatusCode)
	}
	if resp, _ := get(t, ts.URL+"/api/preferences/u1/favourite_colour"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown key, got %d", resp.StatusCode)
	}
	if resp, _ := put(t, ts.URL+"/api/preferences/u1/export_format", `{"value": "parquet"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported format, got %d", resp.StatusCode)
	}
}

func TestHandleExecute_ExportUsesPreferredFormat(t *testing.T) {
	ts, records := newTestServer(t)
	seed(records, 2, domain.LoanStatusActive)

	put(t, ts.URL+"/api/preferences/u1/export_format", `{"value": "json"}`)

	resp, body := post(t, ts.URL+"/api/bulk-actions", `{
		"action": "export",
		"record_ids": ["l0", "l1"],
		"params": {},
		"actor": {"id": "u1", "role": "user"}
	}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}

	result := body["result"].(map[string]any)
	artifact, ok := result["export"].(map[string]any)
	if !ok {
		t.Fatalf("expected an export artifact, got %v", result)
	}
	filename := artifact["filename"].(string)
	if !strings.HasSuffix(filename, ".json") {
		t.Errorf("expected the stored format to drive the export, got %s", filename)
	}
}

func TestHandleExecute_ExportWithoutFormatOrPreference(t *testing.T) {
	ts, records := newTestServer(t)
	seed(records, 1, domain.LoanStatusActive)

	resp, _ := post(t, ts.URL+"/api/bulk-actions", `{
		"action": "export",
		"record_ids": ["l0"],
		"params": {},
		"actor": {"id": "u9", "role": "user"}
	}`)
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected a rejection when no format is given or stored, got %d", resp.StatusCode)
	}
}

func TestHandleExecute_BadBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := post(t, ts.URL+"/api/bulk-actions", `{"action": `)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
}
