package rest

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kubilitics/policy-engine/internal/store"
)

const defaultScanListLimit = 50

// ScanHandler exposes read-only access to scan history and violations for
// the dashboard (spec §6's GET /api/v1/scans, GET /api/v1/repositories/{id}/violations).
type ScanHandler struct {
	store *store.Store
}

// NewScanHandler creates a new scan/violations read handler.
func NewScanHandler(st *store.Store) *ScanHandler {
	return &ScanHandler{store: st}
}

// ListScans handles GET /api/v1/scans?limit=N.
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	limit := defaultScanListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	scans, err := h.store.ListScans(r.Context(), limit)
	if err != nil {
		respondErrorWithCode(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list scans", "")
		return
	}
	respondJSON(w, http.StatusOK, scans)
}

// GetScan handles GET /api/v1/scans/{id}.
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	scanID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid scan id", "")
		return
	}

	scan, err := h.store.GetScan(r.Context(), scanID)
	if err != nil {
		respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, "scan not found", "")
		return
	}
	respondJSON(w, http.StatusOK, scan)
}

// ListRepositoryViolations handles GET /api/v1/repositories/{id}/violations.
func (h *ScanHandler) ListRepositoryViolations(w http.ResponseWriter, r *http.Request) {
	repositoryID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid repository id", "")
		return
	}

	violations, err := h.store.ListViolationDetails(r.Context(), store.ViolationFilter{RepositoryID: repositoryID})
	if err != nil {
		respondErrorWithCode(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list violations", "")
		return
	}
	respondJSON(w, http.StatusOK, violations)
}
