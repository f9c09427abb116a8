package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidqueue/internal/api"
	"vidqueue/internal/config"
	"vidqueue/internal/jobs"
	"vidqueue/internal/logging"
	"vidqueue/internal/services"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	svc    *api.Service

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		svc:    d.comp.Service,
	}
	srv.server = &http.Server{
		Handler:           authMiddleware(cfg.Paths.APIToken, srv.routes(d.comp.Gatherer)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s.withRequestID(mux)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// withRequestID tags each request context with a correlation id.
func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(r, w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := jobs.ListOptions{Limit: defaultPageSize}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, ok := jobs.ParseStatus(raw)
		if !ok {
			s.writeError(r, w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		opts.Status = status
	}
	var err error
	if opts.Limit, err = intParam(query.Get("limit"), defaultPageSize); err != nil || opts.Limit <= 0 {
		s.writeError(r, w, http.StatusBadRequest, "invalid limit")
		return
	}
	opts.Limit = min(opts.Limit, maxPageSize)
	if opts.Offset, err = intParam(query.Get("offset"), 0); err != nil || opts.Offset < 0 {
		s.writeError(r, w, http.StatusBadRequest, "invalid offset")
		return
	}

	list, err := s.svc.List(r.Context(), opts)
	if err != nil {
		s.writeServiceError(r, w, err)
		return
	}
	s.writeJSON(r, w, http.StatusOK, api.JobListResponse{Jobs: list, Limit: opts.Limit, Offset: opts.Offset})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	job, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(r, w, err)
		return
	}
	resp := api.JobResponse{Job: job}
	links, err := s.svc.Links(r.Context(), id)
	if err != nil {
		logging.WithContext(r.Context(), s.logger).Warn("failed to sign job links",
			logging.String(logging.FieldJobID, id), logging.Error(err))
	} else {
		resp.Links = &links
	}
	s.writeJSON(r, w, http.StatusOK, resp)
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (s *apiServer) writeServiceError(r *http.Request, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrRecordNotFound):
		s.writeError(r, w, http.StatusNotFound, "job not found")
	case errors.Is(err, services.ErrValidation):
		s.writeError(r, w, http.StatusBadRequest, err.Error())
	default:
		logging.WithContext(r.Context(), s.logger).Error("api request failed",
			logging.String("path", r.URL.Path), logging.Error(err))
		s.writeError(r, w, http.StatusInternalServerError, "internal error")
	}
}

func (s *apiServer) writeJSON(r *http.Request, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.WithContext(r.Context(), s.logger).Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(r *http.Request, w http.ResponseWriter, status int, message string) {
	s.writeJSON(r, w, status, map[string]string{"error": message})
}
