package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/constructiq/plan-analysis/internal/core/domain"
	"github.com/constructiq/plan-analysis/internal/core/ports"
	"github.com/constructiq/plan-analysis/internal/core/usecase"
	"github.com/constructiq/plan-analysis/internal/observability/metrics"
)

const maxUploadBytes = 128 << 20

type Router struct {
	ingestUC   ports.PlanIngestor
	searchUC   ports.PlanSearcher
	analyzeUC  ports.PlanAnalyzer
	describeUC *usecase.DescribePagesUseCase
	repo       ports.DocumentRepository
	metrics    *metrics.HTTPServerMetrics
	service    string
}

func NewRouter(
	ingestUC ports.PlanIngestor,
	searchUC ports.PlanSearcher,
	analyzeUC ports.PlanAnalyzer,
	describeUC *usecase.DescribePagesUseCase,
	repo ports.DocumentRepository,
	m *metrics.HTTPServerMetrics,
	service string,
) *Router {
	return &Router{
		ingestUC:   ingestUC,
		searchUC:   searchUC,
		analyzeUC:  analyzeUC,
		describeUC: describeUC,
		repo:       repo,
		metrics:    m,
		service:    service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/plans", rt.uploadPlan)
	mux.HandleFunc("GET /v1/plans/{id}", rt.getPlanByID)
	mux.HandleFunc("POST /v1/plans/{id}/search", rt.searchPlan)
	mux.HandleFunc("GET /v1/plans/{id}/pages", rt.getPlanPages)
	mux.HandleFunc("POST /v1/plans/{id}/analyze", rt.analyzePlan)
	if rt.describeUC != nil {
		mux.HandleFunc("POST /v1/plans/{id}/describe", rt.describePlanPages)
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadPlan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	doc, err := rt.ingestUC.Upload(r.Context(), fileHeader.Filename, mimeType, file)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getPlanByID(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.repo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) searchPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	chunks, err := rt.searchUC.Search(r.Context(), r.PathValue("id"), req.Query, req.Limit)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordSearch(rt.service, "search", len(chunks))
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (rt *Router) getPlanPages(w http.ResponseWriter, r *http.Request) {
	pages, err := parsePageNumbers(r.URL.Query().Get("numbers"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chunks, err := rt.searchUC.Pages(r.Context(), r.PathValue("id"), pages)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordSearch(rt.service, "pages", len(chunks))
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (rt *Router) analyzePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskType string                `json:"task_type"`
		Images   []domain.EncodedImage `json:"images"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	start := time.Now()
	taskType := domain.TaskType(req.TaskType)
	result, err := rt.analyzeUC.Analyze(r.Context(), r.PathValue("id"), taskType, req.Images)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordAnalysis(rt.service, req.TaskType, "error", 0, 0)
		}
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAnalysis(rt.service, req.TaskType, "success",
			len(result.ModelAgreements), result.ConsensusCount)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":      result,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (rt *Router) describePlanPages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pages []struct {
			PageNumber int    `json:"page_number"`
			MediaType  string `json:"media_type"`
			Data       string `json:"data"`
		} `json:"pages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	pages := make([]usecase.PageImage, 0, len(req.Pages))
	for _, p := range req.Pages {
		pages = append(pages, usecase.PageImage{
			PageNumber: p.PageNumber,
			Image: domain.EncodedImage{
				MediaType: p.MediaType,
				Data:      p.Data,
			},
		})
	}

	count, err := rt.describeUC.Describe(r.Context(), r.PathValue("id"), pages)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks_added": count})
}

func parsePageNumbers(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("query parameter 'numbers' is required")
	}
	parts := strings.Split(raw, ",")
	pages := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid page number %q", part)
		}
		pages = append(pages, n)
	}
	return pages, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
