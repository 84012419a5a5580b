package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/metrics"
)

// Response bodies returned to callers. Automation errors never leak past these.
const (
	msgMissingReference = "Please provide a valid CNR number."
	msgInvalidReference = "Invalid CNR number. It must be 16 alphanumeric characters long."
	msgInvalidCutoff    = "Please provide a valid Next Hearing Date."
	msgNotFound         = "invalid_cnr"
	msgUnexpected       = "An unexpected error occurred. Please try again later."
)

// Options configures the HTTP surface.
type Options struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	// ReadyChecks are consulted by /readyz; any error reports not ready.
	ReadyChecks map[string]func(context.Context) error
}

// Server wires HTTP handlers to the acquisition service.
type Server struct {
	router   chi.Router
	acquirer cnr.Acquirer
	opts     Options
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(acquirer cnr.Acquirer, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Minute
	}
	s := &Server{
		acquirer: acquirer,
		opts:     opts,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/health", s.health)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		if opts.AuthEnabled {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/get_case_details_status", s.caseDetails(false))
		r.Post("/api/update-cnr-details", s.caseDetails(true))
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Api running."})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, check := range s.opts.ReadyChecks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "checks": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// caseDetailsRequest keeps fields untyped so a non-string cnr_number is
// reported as missing instead of a decode error.
type caseDetailsRequest struct {
	CNR    any `json:"cnr_number"`
	Cutoff any `json:"next_hearing_date"`
}

func (s *Server) caseDetails(cutoffRequired bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, status, msg := parseCaseDetails(r, cutoffRequired)
		if msg != "" {
			writeError(w, status, msg)
			return
		}

		logger := s.logger.With(
			zap.String("cnr", req.Reference.String()),
			zap.String("cutoff", req.Cutoff.String()),
			zap.String("request_id", requestID(r.Context())),
		)
		rec, err := s.acquirer.Acquire(r.Context(), req)
		if err != nil {
			status, msg := errorResponse(err)
			logger.Warn("acquisition failed", zap.Error(err), zap.Int("status", status))
			writeError(w, status, msg)
			return
		}
		logger.Info("acquisition served", zap.Int("documents", len(rec.Documents)))
		writeJSON(w, http.StatusOK, rec)
	}
}

func parseCaseDetails(r *http.Request, cutoffRequired bool) (cnr.Request, int, string) {
	var body caseDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return cnr.Request{}, http.StatusBadRequest, msgMissingReference
	}
	raw, ok := body.CNR.(string)
	if !ok || raw == "" {
		return cnr.Request{}, http.StatusBadRequest, msgMissingReference
	}

	var rawCutoff string
	switch v := body.Cutoff.(type) {
	case nil:
	case string:
		rawCutoff = v
	default:
		return cnr.Request{}, http.StatusBadRequest, msgInvalidCutoff
	}
	if cutoffRequired && rawCutoff == "" {
		return cnr.Request{}, http.StatusBadRequest, msgInvalidCutoff
	}

	ref, err := cnr.ParseReference(raw)
	if err != nil {
		return cnr.Request{}, http.StatusOK, msgInvalidReference
	}
	cutoff, err := cnr.ParseCutoff(rawCutoff)
	if err != nil {
		return cnr.Request{}, http.StatusBadRequest, msgInvalidCutoff
	}
	return cnr.Request{Reference: ref, Cutoff: cutoff}, 0, ""
}

func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, cnr.ErrRecordNotFound):
		return http.StatusOK, msgNotFound
	case errors.Is(err, cnr.ErrInvalidReference):
		return http.StatusOK, msgInvalidReference
	case errors.Is(err, cnr.ErrInvalidCutoff):
		return http.StatusBadRequest, msgInvalidCutoff
	default:
		return http.StatusInternalServerError, msgUnexpected
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
