// Package httpserver exposes the Clinical Insight REST API.
package httpserver

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/and161185/clinical-insight/internal/service"
)

const rootMessage = "Clinical Insight Assistant API"

// Pinger reports backend readiness for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the application services behind the API.
type Services struct {
	Auth     service.AuthService
	Profile  service.ProfileService
	Cases    service.CaseService
	Queries  service.QueryService
	Feedback service.FeedbackService
	Audit    service.AuditService
}

// Options tune the transport.
type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64 // whole multipart body; 0 = 100 MiB
	Health         Pinger
}

// Server wires services into HTTP handlers.
type Server struct {
	auth     service.AuthService
	profile  service.ProfileService
	cases    service.CaseService
	queries  service.QueryService
	feedback service.FeedbackService
	audit    service.AuditService

	opts Options
	log  *zap.Logger
}

// New constructs a Server with injected services.
func New(svc Services, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	return &Server{
		auth:     svc.Auth,
		profile:  svc.Profile,
		cases:    svc.Cases,
		queries:  svc.Queries,
		feedback: svc.Feedback,
		audit:    svc.Audit,
		opts:     opts,
		log:      log,
	}
}

// Router builds the route table with middleware but without CORS.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(Recover(s.log), Logging(s.log), Metrics, ClientIP)

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/", s.root).Methods(http.MethodGet)

	api.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/verify", s.verify).Methods(http.MethodGet)
	api.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost)
	api.HandleFunc("/files/{file_id}", s.downloadFile).Methods(http.MethodGet)

	p := api.NewRoute().Subrouter()
	p.Use(s.RequireSession)

	p.HandleFunc("/profile", s.getProfile).Methods(http.MethodGet)
	p.HandleFunc("/profile", s.updateProfile).Methods(http.MethodPut)

	p.HandleFunc("/cases", s.createCase).Methods(http.MethodPost)
	p.HandleFunc("/cases", s.listCases).Methods(http.MethodGet)
	p.HandleFunc("/cases/search", s.searchCases).Methods(http.MethodPost)
	p.HandleFunc("/cases/export.xlsx", s.exportXLSX).Methods(http.MethodGet)
	p.HandleFunc("/cases/{id}", s.getCase).Methods(http.MethodGet)
	p.HandleFunc("/cases/{id}/upload", s.uploadFiles).Methods(http.MethodPost)
	p.HandleFunc("/cases/{id}/analyze", s.analyzeCase).Methods(http.MethodPost)
	p.HandleFunc("/cases/{id}/export-pdf", s.exportPDF).Methods(http.MethodGet)
	p.HandleFunc("/cases/{id}/feedback", s.submitFeedback).Methods(http.MethodPost)
	p.HandleFunc("/cases/{id}/files/{file_id}/link", s.fileLink).Methods(http.MethodGet)

	p.HandleFunc("/query", s.query).Methods(http.MethodPost)
	p.HandleFunc("/feedback/stats", s.feedbackStats).Methods(http.MethodGet)
	p.HandleFunc("/audit-logs", s.auditLogs).Methods(http.MethodGet)

	return r
}

// Handler returns the router wrapped in CORS handling. Credentialed requests
// are only allowed for an explicit origin list, never for the wildcard.
func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: !slices.Contains(origins, "*"),
	})
	return c.Handler(s.Router())
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": rootMessage})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Health.Ping(ctx); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
