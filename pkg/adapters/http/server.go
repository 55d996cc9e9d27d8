package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aretw0/preflight"
	"github.com/aretw0/preflight/internal/logging"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/packs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Engine defines what the HTTP surface needs from the preflight facade.
type Engine interface {
	Evaluate(ctx context.Context, payload domain.Payload) (*domain.RunResult, error)
	Audit(ctx context.Context) (*domain.AuditReport, error)
	PackStatus(ctx context.Context) (*domain.PackStatus, error)
	Activate(ctx context.Context, id string, smoke bool) (*domain.HistoryEntry, error)
	Rollback(ctx context.Context, to string, smoke bool) (*packs.RollbackResult, error)
	Eval(ctx context.Context, candidate string, keep bool) (*domain.EvalReport, error)
	Packs() *packs.Manager
	MetricsHandler() http.Handler
}

var _ Engine = (*preflight.Engine)(nil)

// Server serves the audit, pack administration and evaluation routes.
type Server struct {
	Engine Engine
	logger *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{Engine: engine, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.GetHealth)
	r.Handle("/metrics", engine.MetricsHandler())

	r.Post("/evaluate", s.Evaluate)

	r.Get("/audit", s.GetAudit)
	r.Get("/audit/pack", s.GetPackStatus)

	r.Route("/packs", func(r chi.Router) {
		r.Get("/", s.ListPacks)
		r.Post("/", s.CreatePack)
		r.Get("/status", s.GetPackAdminStatus)
		r.Post("/rollback", s.Rollback)
		r.Get("/{id}/validate", s.ValidatePack)
		r.Post("/{id}/activate", s.ActivatePack)
		r.Post("/{id}/eval", s.EvalPack)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidPackID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPackNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPackExists), errors.Is(err, domain.ErrNoRollbackTarget):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPackInvalid), errors.Is(err, domain.ErrSmokeFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	var ierr *domain.IntegrityError
	if errors.As(err, &ierr) {
		resp.Problems = ierr.Problems
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.badRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// boolParam reads an optional boolean query parameter.
func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("query parameter %s: %q is not a boolean", name, v)
	}
	return b, nil
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": preflight.Version})
}

// Evaluate handles POST /evaluate. A blocked request is a 200 with state "blocked".
func (s *Server) Evaluate(w http.ResponseWriter, r *http.Request) {
	var payload domain.Payload
	if !s.decode(w, r, &payload) {
		return
	}
	res, err := s.Engine.Evaluate(r.Context(), payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// GetAudit handles GET /audit.
func (s *Server) GetAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.Engine.Audit(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// GetPackStatus handles GET /audit/pack.
func (s *Server) GetPackStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Engine.PackStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// ListPacks handles GET /packs.
func (s *Server) ListPacks(w http.ResponseWriter, r *http.Request) {
	list, err := s.Engine.Packs().List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// GetPackAdminStatus handles GET /packs/status.
func (s *Server) GetPackAdminStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Engine.Packs().Status()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// CreatePackRequest is the body of POST /packs.
type CreatePackRequest struct {
	ID          string `json:"id"`
	From        string `json:"from,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

// CreatePack handles POST /packs.
func (s *Server) CreatePack(w http.ResponseWriter, r *http.Request) {
	var body CreatePackRequest
	if !s.decode(w, r, &body) {
		return
	}
	man, err := s.Engine.Packs().Create(r.Context(), packs.CreateOptions{
		ID:          body.ID,
		From:        body.From,
		Version:     body.Version,
		Description: body.Description,
		Force:       body.Force,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, man)
}

// ValidatePack handles GET /packs/{id}/validate. A failing pack is a 422 carrying the report.
func (s *Server) ValidatePack(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Engine.Packs().Validate(chi.URLParam(r, "id"))
	var ierr *domain.IntegrityError
	switch {
	case errors.As(err, &ierr) && rep != nil:
		s.writeJSON(w, http.StatusUnprocessableEntity, rep)
	case err != nil:
		s.writeError(w, r, err)
	default:
		s.writeJSON(w, http.StatusOK, rep)
	}
}

// ActivatePack handles POST /packs/{id}/activate?smoke=.
func (s *Server) ActivatePack(w http.ResponseWriter, r *http.Request) {
	smoke, err := boolParam(r, "smoke")
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	entry, err := s.Engine.Activate(r.Context(), chi.URLParam(r, "id"), smoke)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

// EvalPack handles POST /packs/{id}/eval?keep=.
func (s *Server) EvalPack(w http.ResponseWriter, r *http.Request) {
	keep, err := boolParam(r, "keep")
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	rep, err := s.Engine.Eval(r.Context(), chi.URLParam(r, "id"), keep)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

// Rollback handles POST /packs/rollback?to=&smoke=.
func (s *Server) Rollback(w http.ResponseWriter, r *http.Request) {
	smoke, err := boolParam(r, "smoke")
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	res, err := s.Engine.Rollback(r.Context(), r.URL.Query().Get("to"), smoke)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
