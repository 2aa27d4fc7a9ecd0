// Package chi exposes the matching subsystem over HTTP.
package chi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/petmatch/internal/domain"
	healthuc "github.com/kailas-cloud/petmatch/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/petmatch/internal/usecase/indexing"
	matchinguc "github.com/kailas-cloud/petmatch/internal/usecase/matching"
	notifyuc "github.com/kailas-cloud/petmatch/internal/usecase/notify"
)

// maxPhotoBytes bounds the decoded photo payload.
const maxPhotoBytes = 16 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the use cases behind the HTTP API.
type Server struct {
	indexing      *indexinguc.Service
	matching      *matchinguc.Service
	notify        *notifyuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	indexing *indexinguc.Service,
	matching *matchinguc.Service,
	notify *notifyuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		indexing: indexing,
		matching: matching,
		notify:   notify,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrUnsupportedImage, http.StatusUnprocessableEntity, codeUnsupportedImage),
		sentinelHandler(domain.ErrDegenerateImage, http.StatusUnprocessableEntity, codeDegenerateImage),
		sentinelHandler(domain.ErrReportRetired, http.StatusConflict, codeReportRetired),
		sentinelHandler(domain.ErrDescriptorShapeMismatch, http.StatusConflict, codeShapeMismatch),
		sentinelHandler(domain.ErrDescriptorNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrModelUnavailable, http.StatusBadGateway, codeModelUnavailable),
		sentinelHandler(domain.ErrInference, http.StatusBadGateway, codeInferenceFailed),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, codeStoreUnavailable),
	}
	return s
}

// Mount registers the API routes on a chi router.
func (s *Server) Mount(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/photos", s.IndexPhoto)
		r.Delete("/photos/{photoID}", s.RemovePhoto)
		r.Post("/reports/{reportID}/retire", s.RetireReport)
		r.Post("/matches", s.FindMatches)
		r.Get("/descriptors/model-versions", s.ModelVersions)
		r.Get("/descriptors/count", s.Population)
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// IndexPhoto handles POST /v1/photos.
func (s *Server) IndexPhoto(w http.ResponseWriter, r *http.Request) {
	var req indexPhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	photo, ok := s.decodePhoto(w, req.Photo)
	if !ok {
		return
	}

	d, err := s.indexing.IndexPhoto(r.Context(), &indexinguc.IndexRequest{
		PhotoID:      req.PhotoID,
		ReportID:     req.ReportID,
		ReportStatus: req.ReportStatus,
		Category:     req.Category,
		Photo:        photo,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, descriptorResponse{
		PhotoID:      d.PhotoID,
		ReportID:     d.ReportID,
		Category:     d.Category,
		ModelVersion: d.ModelVersion,
		Dimensions:   len(d.Vector),
		Active:       d.Active,
		CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// RemovePhoto handles DELETE /v1/photos/{photoID}.
func (s *Server) RemovePhoto(w http.ResponseWriter, r *http.Request) {
	photoID := chi.URLParam(r, "photoID")
	if err := s.indexing.RemovePhoto(r.Context(), photoID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetireReport handles POST /v1/reports/{reportID}/retire.
func (s *Server) RetireReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportID")

	retired, err := s.indexing.RetireReport(r.Context(), reportID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, retireResponse{ReportID: reportID, Retired: retired})
}

// FindMatches handles POST /v1/matches.
func (s *Server) FindMatches(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.ReportID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "report_id is required")
		return
	}

	photo, ok := s.decodePhoto(w, req.Photo)
	if !ok {
		return
	}

	candidates, err := s.matching.FindMatches(r.Context(), &matchinguc.Query{
		Photo:           photo,
		ExcludeReportID: req.ReportID,
		Category:        req.Category,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := matchResponse{Matches: make([]matchItem, len(candidates))}
	for i, c := range candidates {
		resp.Matches[i] = matchItem{
			Rank:       c.Rank,
			ReportID:   c.ReportID,
			PhotoID:    c.PhotoID,
			Confidence: c.Confidence,
			Distance:   c.Distance,
		}
	}

	if req.Notify {
		events, err := s.notify.OnMatches(r.Context(), req.ReportID, candidates)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		resp.Events = make([]matchEventItem, len(events))
		for i, ev := range events {
			resp.Events[i] = matchEventItem{
				ID:                ev.ID,
				PairKey:           ev.PairKey,
				QueryReportID:     ev.QueryReportID,
				CandidateReportID: ev.CandidateReportID,
				Confidence:        ev.Confidence,
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ModelVersions handles GET /v1/descriptors/model-versions.
func (s *Server) ModelVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.indexing.ModelVersions(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelVersionsResponse{Versions: versions})
}

// Population handles GET /v1/descriptors/count.
func (s *Server) Population(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	n, err := s.matching.PopulationSize(r.Context(), category)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, populationResponse{Category: category, Active: n})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decodePhoto validates and decodes the base64 photo field. Writes the error
// response itself and returns false on failure.
func (s *Server) decodePhoto(w http.ResponseWriter, encoded string) ([]byte, bool) {
	if encoded == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "photo is required")
		return nil, false
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > maxPhotoBytes {
		writeError(w, http.StatusRequestEntityTooLarge, codeValidationFailed, "photo exceeds size limit")
		return nil, false
	}
	photo, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "photo must be base64-encoded")
		return nil, false
	}
	return photo, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidRequest,
		domain.ErrUnsupportedImage,
		domain.ErrDegenerateImage,
		domain.ErrReportRetired,
		domain.ErrDescriptorShapeMismatch,
		domain.ErrDescriptorNotFound,
		domain.ErrModelUnavailable,
		domain.ErrInference,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
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
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
