package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kaizen2025/bulkops/internal/audit"
	"github.com/kaizen2025/bulkops/internal/bulk/executor"
	"github.com/kaizen2025/bulkops/internal/bulk/recovery"
	"github.com/kaizen2025/bulkops/internal/core/domain"
	"github.com/kaizen2025/bulkops/internal/infra/storage"
)

// Handler implements the bulk action endpoints.
type Handler struct {
	exec        *executor.Executor
	coordinator *recovery.Coordinator
	audits      *audit.Service
	prefs       storage.PreferenceStore
}

// NewHandler creates the API handler.
func NewHandler(exec *executor.Executor, coordinator *recovery.Coordinator, audits *audit.Service, prefs storage.PreferenceStore) *Handler {
	return &Handler{exec: exec, coordinator: coordinator, audits: audits, prefs: prefs}
}

// bulkActionPayload is the wire form of a bulk action request.
type bulkActionPayload struct {
	Action    string          `json:"action"`
	RecordIDs []string        `json:"record_ids"`
	Params    json.RawMessage `json:"params"`
	Actor     struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"actor"`
}

func (p *bulkActionPayload) toRequest() (*domain.BulkActionRequest, error) {
	kind := domain.ActionKind(p.Action)
	params, err := domain.DecodeParameters(kind, p.Params)
	if err != nil {
		return nil, err
	}
	return &domain.BulkActionRequest{
		Kind:      kind,
		RecordIDs: p.RecordIDs,
		Params:    params,
		Actor: domain.Actor{
			ID:   p.Actor.ID,
			Role: domain.Role(p.Actor.Role),
		},
	}, nil
}

// executeResponse pairs the result with recovery guidance when the
// operation did not fully succeed.
type executeResponse struct {
	Result         *domain.BulkActionResult    `json:"result"`
	Classification *domain.ErrorClassification `json:"classification,omitempty"`
	RecoveryOffers []domain.RecoveryAction     `json:"recovery_offers,omitempty"`
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var payload bulkActionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.applyPreferredFormat(r.Context(), req)

	result, execErr := h.exec.Execute(r.Context(), req, executor.Options{})

	response := executeResponse{Result: result}
	if result != nil && result.Failed > 0 {
		if session := h.coordinator.Register(req, result); session != nil {
			response.Classification = session.Classification
			response.RecoveryOffers = session.Offers
		}
	}

	status := http.StatusOK
	if execErr != nil {
		switch {
		case strings.Contains(execErr.Error(), "permission"):
			status = http.StatusForbidden
		default:
			status = http.StatusUnprocessableEntity
		}
	}
	writeJSON(w, status, response)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var payload bulkActionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.applyPreferredFormat(r.Context(), req)

	outcome, err := h.exec.Validate(r.Context(), req)
	if err != nil {
		slog.Error("Validation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "validation failed")
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// applyPreferredFormat fills an export request's format from the actor's
// stored preference when the request leaves it empty.
func (h *Handler) applyPreferredFormat(ctx context.Context, req *domain.BulkActionRequest) {
	if h.prefs == nil || req.Kind != domain.ActionExport {
		return
	}
	params, ok := req.Params.(domain.ExportParams)
	if !ok || params.Format != "" {
		return
	}
	format, err := h.prefs.Get(ctx, req.Actor.ID, storage.PrefExportFormat)
	if err != nil {
		slog.Warn("Preference lookup failed", "actor", req.Actor.ID, "error", err)
		return
	}
	if format != "" {
		params.Format = format
		req.Params = params
	}
}

var knownPreferenceKeys = map[string]bool{
	storage.PrefExportFormat:    true,
	storage.PrefConfirmBehavior: true,
}

func (h *Handler) handlePreferenceGet(w http.ResponseWriter, r *http.Request) {
	actorID, key := r.PathValue("actor"), r.PathValue("key")
	if !knownPreferenceKeys[key] {
		writeError(w, http.StatusBadRequest, "unknown preference "+key)
		return
	}
	value, err := h.prefs.Get(r.Context(), actorID, key)
	if err != nil {
		slog.Error("Preference lookup failed", "actor", actorID, "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "preference lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"actor": actorID, "key": key, "value": value})
}

func (h *Handler) handlePreferenceSet(w http.ResponseWriter, r *http.Request) {
	actorID, key := r.PathValue("actor"), r.PathValue("key")
	if !knownPreferenceKeys[key] {
		writeError(w, http.StatusBadRequest, "unknown preference "+key)
		return
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if key == storage.PrefExportFormat {
		if err := (domain.ExportParams{Format: body.Value}).Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.prefs.Set(r.Context(), actorID, key, body.Value); err != nil {
		slog.Error("Preference update failed", "actor", actorID, "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "preference update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"actor": actorID, "key": key, "value": body.Value})
}

func (h *Handler) handleAuditList(w http.ResponseWriter, r *http.Request) {
	filter := domain.AuditFilter{
		ActorID: r.URL.Query().Get("actor"),
		Kind:    domain.ActionKind(r.URL.Query().Get("action")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	entries, err := h.audits.History(r.Context(), filter)
	if err != nil {
		slog.Error("Audit listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.audits.Statistics(r.Context())
	if err != nil {
		slog.Error("Audit stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleRecoveryOffers(w http.ResponseWriter, r *http.Request) {
	opID := r.PathValue("id")
	session, ok := h.coordinator.Session(opID)
	if !ok {
		writeError(w, http.StatusNotFound, "no recovery session for operation "+opID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"operation_id":   opID,
		"classification": session.Classification,
		"offers":         session.Offers,
	})
}

func (h *Handler) handleRecoveryApply(w http.ResponseWriter, r *http.Request) {
	opID := r.PathValue("id")

	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.coordinator.Apply(r.Context(), opID, domain.RecoveryAction(body.Action))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Result: result})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
