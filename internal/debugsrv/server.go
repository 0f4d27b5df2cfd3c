// Package debugsrv serves a read-only JSON view of the scheduler queues.
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/l1jgo/coreloop/internal/core/tick"
	"go.uber.org/zap"
)

// View is what the frame loop publishes.
type View struct {
	Frame    uint64        `json:"frame"`
	Session  string        `json:"session"`
	Taken    time.Time     `json:"taken"`
	Snapshot tick.Snapshot `json:"snapshot"`
}

// Server never touches the scheduler. The frame goroutine publishes a View
// and handlers read the latest one.
type Server struct {
	router  chi.Router
	log     *zap.Logger
	addr    string
	started time.Time
	view    atomic.Pointer[View]
}

func New(addr string, log *zap.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     log.With(zap.String("component", "debugsrv")),
		addr:    addr,
		started: time.Now(),
	}
	s.routes()
	return s
}

// Publish replaces the view served to clients.
func (s *Server) Publish(v *View) { s.view.Store(v) }

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/queues", s.handleQueues)
	r.Get("/queues/{phase}", s.handleQueue)
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("debug server listening", zap.String("addr", s.addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if v := s.view.Load(); v != nil {
		resp["frame"] = v.Frame
		resp["session"] = v.Session
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	v := s.view.Load()
	if v == nil {
		writeError(w, http.StatusServiceUnavailable, "no frame published yet")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	phase, err := tick.ParsePhase(chi.URLParam(r, "phase"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	v := s.view.Load()
	if v == nil {
		writeError(w, http.StatusServiceUnavailable, "no frame published yet")
		return
	}
	for _, q := range v.Snapshot.Queues {
		if q.Phase == phase.String() {
			writeJSON(w, http.StatusOK, q)
			return
		}
	}
	writeError(w, http.StatusNotFound, "phase missing from snapshot")
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
