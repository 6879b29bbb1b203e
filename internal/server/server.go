// Package server exposes a read-only JSON API over the VTApi entities.
//
// One VTApi backs the whole server. Its connection has a single owner, so
// every handler takes the server lock for as long as it touches the
// database.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/vtapi/internal/logger"
	"github.com/koustreak/vtapi/internal/vtapi"
)

const shutdownTimeout = 10 * time.Second

// Server routes HTTP requests to the entities of one VTApi.
type Server struct {
	mu     sync.Mutex
	api    *vtapi.VTApi
	log    *logger.Logger
	router chi.Router
}

// New builds the router. The server does not own api; closing it is up
// to the caller.
func New(api *vtapi.VTApi, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{api: api, log: log.With().Str("component", "server").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", s.health)
	r.Get("/methods", s.listMethods)
	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", s.listDatasets)
		r.Route("/{dataset}", func(r chi.Router) {
			r.Get("/", s.getDataset)
			r.Get("/sequences", s.listSequences)
			r.Get("/sequences/{sequence}/data", s.sequenceData)
			r.Get("/tasks", s.listTasks)
			r.Get("/tasks/{task}/intervals", s.listIntervals)
			r.Get("/processes", s.listProcesses)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such route")
	})
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.With().Str("addr", addr).Logger().Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// requestLogger logs one line per request after it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.HTTPEvent().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
