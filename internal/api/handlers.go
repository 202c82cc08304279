package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"vecsearch/internal/domain"
)

type upsertRequest struct {
	TableID string           `json:"table_id"`
	Rows    []domain.TextRow `json:"rows"`
}

type resetInfo struct {
	OldDimension int `json:"old_dimension"`
	NewDimension int `json:"new_dimension"`
	DroppedRows  int `json:"dropped_rows"`
}

type upsertResponse struct {
	Success  bool       `json:"success"`
	Inserted int        `json:"inserted"`
	Skipped  int        `json:"skipped"`
	Reset    *resetInfo `json:"reset,omitempty"`
}

type searchRequest struct {
	TableID string `json:"table_id"`
	Query   string `json:"query"`
	TopK    *int   `json:"top_k"`
}

type searchResponse struct {
	Results []domain.SearchResult `json:"results"`
}

type deleteRequest struct {
	TableID string   `json:"table_id"`
	RowIDs  []string `json:"row_ids"`
}

type deleteResponse struct {
	Success bool `json:"success"`
	domain.DeleteReport
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.validRows(w, r, req.Rows) {
		return
	}

	report, err := s.tables.Upsert(r.Context(), req.TableID, req.Rows)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := upsertResponse{Success: true, Inserted: report.Inserted, Skipped: report.Skipped}
	if report.Reset != nil {
		resp.Reset = &resetInfo{
			OldDimension: report.Reset.OldDimension,
			NewDimension: report.Reset.NewDimension,
			DroppedRows:  report.Reset.DroppedRows,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	topK := 0
	if req.TopK != nil {
		if *req.TopK < 0 {
			s.writeError(w, r, fmt.Errorf("%w: top_k must not be negative", domain.ErrInvalidInput))
			return
		}
		topK = *req.TopK
	}

	results, err := s.tables.Search(r.Context(), req.TableID, req.Query, topK)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for i := range results {
		if results[i].Metadata == nil {
			results[i].Metadata = map[string]any{}
		}
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	s.writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if !s.decode(w, r, &req) {
		return
	}

	report, err := s.tables.Delete(r.Context(), req.TableID, req.RowIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, deleteResponse{Success: true, DeleteReport: report})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.validRows(w, r, req.Rows) {
		return
	}

	if err := s.tables.Rebuild(r.Context(), req.TableID, req.Rows); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.tables.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) validRows(w http.ResponseWriter, r *http.Request, rows []domain.TextRow) bool {
	for i, row := range rows {
		if row.ID == "" {
			s.writeError(w, r, fmt.Errorf("%w: rows[%d].row_id is required", domain.ErrInvalidInput, i))
			return false
		}
	}
	return true
}

// decode reads a JSON body into v, answering 400 on malformed input.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Detail: "request body too large", RequestID: RequestIDFrom(r.Context())})
			return false
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		s.writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes. Embedding failures are
// reported as 422 Unprocessable Entity.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, domain.ErrProviderResponseInvalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "request_id", RequestIDFrom(r.Context()), "error", err)
	} else {
		s.log.Warn("request rejected", "path", r.URL.Path, "request_id", RequestIDFrom(r.Context()), "status", code, "error", err)
	}
	s.writeJSON(w, code, errorResponse{Detail: err.Error(), RequestID: RequestIDFrom(r.Context())})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("failed to write response", "error", err)
	}
}
