// Package chi exposes the search pipeline over a REST API.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helixdata/metasearch/internal/domain"
	"github.com/helixdata/metasearch/internal/metrics"
	"github.com/helixdata/metasearch/internal/domain/filter"
	"github.com/helixdata/metasearch/internal/domain/lineage"
	"github.com/helixdata/metasearch/internal/domain/search"
	"github.com/helixdata/metasearch/internal/domain/urn"
	healthuc "github.com/helixdata/metasearch/internal/usecase/health"
	lineageuc "github.com/helixdata/metasearch/internal/usecase/lineage"
	searchuc "github.com/helixdata/metasearch/internal/usecase/search"
)

// Pagination defaults applied when a request leaves them unset.
const (
	defaultPageSize          = 10
	defaultAutocompleteLimit = 10
	maxPageSize              = 1000
)

// ErrorCode identifies an error class in API responses.
type ErrorCode string

// API error codes.
const (
	CodeBadRequest          ErrorCode = "BAD_REQUEST"
	CodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	CodeEntityNotRegistered ErrorCode = "ENTITY_NOT_REGISTERED"
	CodeInvalidFilter       ErrorCode = "INVALID_FILTER"
	CodeInvalidDegree       ErrorCode = "INVALID_DEGREE_FILTER"
	CodeEngineError         ErrorCode = "ENGINE_ERROR"
	CodeInternalError       ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse is the JSON error payload.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server hosts the REST handlers over the search and lineage services.
type Server struct {
	search        *searchuc.Service
	lineage       *lineageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. health may be nil when no backend
// liveness check applies.
func NewServer(
	searchSvc *searchuc.Service,
	lineageSvc *lineageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:  searchSvc,
		lineage: lineageSvc,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEntityNotRegistered, http.StatusNotFound, CodeEntityNotRegistered),
		sentinelHandler(domain.ErrInvalidDegreeFilter, http.StatusBadRequest, CodeInvalidDegree),
		sentinelHandler(domain.ErrInvalidFilter, http.StatusBadRequest, CodeInvalidFilter),
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrEngine, http.StatusBadGateway, CodeEngineError),
	}
	return s
}

// Routes mounts every handler on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/search", instrumented("search", s.handleSearch))
	r.Post("/v1/autocomplete", instrumented("autocomplete", s.handleAutocomplete))
	r.Post("/v1/browse", instrumented("browse", s.handleBrowse))
	r.Post("/v1/lineage/search", instrumented("lineage_search", s.handleLineageSearch))
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// instrumented records per-operation request count and duration around a
// handler. Responses at 400 and above count as errors.
func instrumented(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		status := "success"
		if rec.status >= http.StatusBadRequest {
			status = "error"
		}
		metrics.SearchRequestsTotal.WithLabelValues(operation, status).Inc()
		metrics.SearchRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type searchRequest struct {
	EntityTypes []string              `json:"entityTypes,omitempty"`
	Query       string                `json:"query"`
	Filter      *filter.Filter        `json:"filter,omitempty"`
	Sort        *filter.SortCriterion `json:"sort,omitempty"`
	From        int                   `json:"from"`
	Size        int                   `json:"size"`
	Flags       search.Flags          `json:"flags"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.From < 0 || req.Size < 0 || req.Size > maxPageSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "from/size out of range")
		return
	}
	if req.Size == 0 {
		req.Size = defaultPageSize
	}

	result, err := s.search.Search(r.Context(), req.EntityTypes, req.Query,
		deref(req.Filter), deref(req.Sort), req.From, req.Size, req.Flags)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type autocompleteRequest struct {
	EntityType string       `json:"entityType"`
	Query      string       `json:"query"`
	Field      string       `json:"field,omitempty"`
	Limit      int          `json:"limit"`
	Flags      search.Flags `json:"flags"`
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	var req autocompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.EntityType == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "entityType is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultAutocompleteLimit
	}

	result, err := s.search.Autocomplete(r.Context(),
		req.EntityType, req.Query, req.Field, req.Limit, req.Flags)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type browseRequest struct {
	EntityType string         `json:"entityType"`
	Path       string         `json:"path"`
	Filter     *filter.Filter `json:"filter,omitempty"`
	From       int            `json:"from"`
	Size       int            `json:"size"`
	Flags      search.Flags   `json:"flags"`
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	var req browseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.EntityType == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "entityType is required")
		return
	}
	if req.From < 0 || req.Size < 0 || req.Size > maxPageSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "from/size out of range")
		return
	}
	if req.Size == 0 {
		req.Size = defaultPageSize
	}

	result, err := s.search.Browse(r.Context(),
		req.EntityType, req.Path, deref(req.Filter), req.From, req.Size, req.Flags)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type lineageSearchRequest struct {
	URN         string                `json:"urn"`
	Direction   string                `json:"direction"`
	EntityTypes []string              `json:"entityTypes,omitempty"`
	Query       string                `json:"query"`
	MaxHops     int                   `json:"maxHops,omitempty"`
	Filter      *filter.Filter        `json:"filter,omitempty"`
	Sort        *filter.SortCriterion `json:"sort,omitempty"`
	From        int                   `json:"from"`
	Size        int                   `json:"size"`
	Flags       search.Flags          `json:"flags"`
}

func (s *Server) handleLineageSearch(w http.ResponseWriter, r *http.Request) {
	var req lineageSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	source, err := urn.Parse(req.URN)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	direction, err := lineage.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	if req.From < 0 || req.Size < 0 || req.Size > maxPageSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "from/size out of range")
		return
	}
	if req.Size == 0 {
		req.Size = defaultPageSize
	}

	result, err := s.lineage.SearchAcrossLineage(r.Context(), source, direction,
		req.EntityTypes, req.Query, req.MaxHops,
		deref(req.Filter), deref(req.Sort), req.From, req.Size, req.Flags)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, healthuc.Report{Status: healthuc.Healthy})
		return
	}
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func deref[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	var degreeErr *domain.InvalidDegreeFilterError
	if errors.As(err, &degreeErr) {
		return degreeErr.Error()
	}
	sentinels := []error{
		domain.ErrEntityNotRegistered,
		domain.ErrInvalidFilter,
		domain.ErrInvalidDegreeFilter,
		domain.ErrInvalidInput,
		domain.ErrEngine,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
