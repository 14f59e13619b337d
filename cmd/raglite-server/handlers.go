package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Autopsias/raglite"
	"github.com/Autopsias/raglite/internal/classifier"
	"github.com/Autopsias/raglite/internal/store"
)

type handler struct {
	engine raglite.Engine
}

func newHandler(e raglite.Engine) *handler {
	return &handler{engine: e}
}

// POST /tools/ingest_financial_document
// Accepts a multipart file upload or a JSON body naming an existing path.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			// Sanitise filename to prevent path traversal.
			safeName := filepath.Base(header.Filename)

			tmpPath := filepath.Join(os.TempDir(), safeName)
			dst, err := os.Create(tmpPath)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp file", "error", err)
				return
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", err)
				return
			}
			dst.Close()
			defer os.Remove(tmpPath)

			h.runIngest(w, ctx, tmpPath)
			return
		}
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	h.runIngest(w, ctx, absPath)
}

func (h *handler) runIngest(w http.ResponseWriter, ctx context.Context, path string) {
	outcome, err := h.engine.Ingest(ctx, path)
	if err != nil {
		writeToolError(w, err)
		slog.Error("ingest error", "path", path, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// POST /tools/query_financial_documents
func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req struct {
		Question       string `json:"question"`
		TopK           int    `json:"top_k,omitempty"`
		CompanyName    string `json:"company_name,omitempty"`
		MetricCategory string `json:"metric_category,omitempty"`
		TimePeriod     string `json:"time_period,omitempty"`
		RouteOverride  string `json:"route_override,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	var opts []raglite.QueryOption
	if req.TopK > 0 {
		opts = append(opts, raglite.WithTopK(req.TopK))
	}
	if req.CompanyName != "" || req.MetricCategory != "" || req.TimePeriod != "" {
		opts = append(opts, raglite.WithFilter(store.ChunkFilter{
			CompanyName:    req.CompanyName,
			MetricCategory: req.MetricCategory,
			TimePeriod:     req.TimePeriod,
		}))
	}
	if req.RouteOverride != "" {
		opts = append(opts, raglite.WithRoute(classifier.Route(req.RouteOverride)))
	}

	result, err := h.engine.Query(ctx, req.Question, opts...)
	if err != nil {
		writeToolError(w, err)
		slog.Error("query error", "question", req.Question, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeToolError maps a raglite.RAGLiteError's Kind to an HTTP status,
// falling back to 500 for unwrapped errors.
func writeToolError(w http.ResponseWriter, err error) {
	var toolErr *raglite.RAGLiteError
	if errors.As(err, &toolErr) {
		status := http.StatusInternalServerError
		if toolErr.Kind == raglite.KindQueryError {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{
			"error_kind": string(toolErr.Kind),
			"error":      fmt.Sprintf("%s", toolErr.Message),
		})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
