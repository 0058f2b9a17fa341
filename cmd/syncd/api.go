package main

import (
	"encoding/json"
	"net/http"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/consistency"
	apperrors "github.com/MainListActivity/cuckoox-google-sub012/internal/errors"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
)

// api is the localhost JSON surface foreground contexts use to drive schema
// declaration, integrity validation, and conflict handling.
type api struct {
	registry *consistency.SchemaRegistry
	checker  *consistency.Manager
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("/schemas", a.handleSchemas)
	mux.HandleFunc("/validate", a.handleValidate)
	mux.HandleFunc("/conflicts", a.handleConflicts)
	mux.HandleFunc("/conflicts/detect", a.handleDetect)
	mux.HandleFunc("/conflicts/resolve", a.handleResolve)
}

func (a *api) handleSchemas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var schema models.TableSchema
	if err := json.NewDecoder(r.Body).Decode(&schema); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.registry.Register(&schema); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"table": schema.Table})
}

func (a *api) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request struct {
		Table   string          `json:"table"`
		Records []models.Record `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := a.checker.ValidateDataIntegrity(request.Table, request.Records)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) handleConflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.checker.UnresolvedConflicts())
}

func (a *api) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request struct {
		Table    string        `json:"table"`
		RecordID string        `json:"record_id"`
		Local    models.Record `json:"local"`
		Remote   models.Record `json:"remote"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conflict := a.checker.DetectConflict(request.Table, request.RecordID, request.Local, request.Remote)
	writeJSON(w, http.StatusOK, conflict)
}

func (a *api) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request struct {
		ConflictID string                    `json:"conflict_id"`
		Strategy   models.ResolutionStrategy `json:"strategy"`
		ManualData models.Record             `json:"manual_data,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resolved, err := a.checker.ResolveConflict(request.ConflictID, request.Strategy, request.ManualData)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.ErrInvalid, apperrors.ErrIntegrityValidation:
		status = http.StatusBadRequest
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{
		"code":  string(apperrors.CodeOf(err)),
		"error": err.Error(),
	})
}
