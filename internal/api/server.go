// Package api exposes the admin control surface over HTTP: health and
// status introspection, manual task triggers, notification intake, and the
// analytics read endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"focusd/internal/analytics"
	"focusd/internal/cache"
	"focusd/internal/config"
	"focusd/internal/eventbus"
	"focusd/internal/jobs"
	"focusd/internal/notify"
	"focusd/internal/notify/channel"
	"focusd/internal/scheduler"
)

type Server struct {
	cfg config.AdminConfig
	log *slog.Logger

	manager  *jobs.Manager
	pipeline *notify.Service
	engine   *analytics.Service
	hub      *channel.Hub
	cache    *cache.Cache
	recorder *eventbus.Recorder

	srv *http.Server
}

func New(cfg config.AdminConfig, log *slog.Logger, manager *jobs.Manager, pipeline *notify.Service, engine *analytics.Service, hub *channel.Hub, c *cache.Cache, recorder *eventbus.Recorder) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8780"
	}
	s := &Server{
		cfg:      cfg,
		log:      log,
		manager:  manager,
		pipeline: pipeline,
		engine:   engine,
		hub:      hub,
		cache:    c,
		recorder: recorder,
	}
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/statistics", s.handleStatistics)

	r.Route("/jobs/{family}", func(r chi.Router) {
		r.Post("/restart", s.handleRestart)
		r.Route("/tasks/{task}", func(r chi.Router) {
			r.Post("/run", s.handleRunTask)
			r.Post("/schedule-once", s.handleScheduleOnce)
		})
	})

	r.Post("/notifications", s.handleEnqueue)

	r.Route("/analytics/{userID}", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/timer", s.handleTimer)
		r.Get("/goals", s.handleGoals)
		r.Get("/report", s.handleReport)
	})
	return r
}

// Start begins serving on the configured address. Returns once the
// listener is bound so a bad address fails fast.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("admin server failed", slog.Any("err", err))
		}
	}()
	s.log.Info("admin server listening", slog.String("addr", s.cfg.Addr))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.manager.HealthCheck()
	code := http.StatusOK
	if h.Status == jobs.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":           s.manager.Status(),
		"queue":          s.pipeline.Statistics(),
		"connectedUsers": s.hub.ConnectedCount(),
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"families": s.manager.Statistics(),
		"delivery": s.pipeline.Statistics(),
	}
	if s.cache != nil {
		out["cacheEntries"] = s.cache.Len()
	}
	if s.recorder != nil {
		out["recentEvents"] = s.recorder.Recent()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")
	if err := s.manager.RestartFamily(r.Context(), family); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"restarted": family})
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")
	task := chi.URLParam(r, "task")
	run, err := s.manager.RunTask(r.Context(), family, task)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, scheduler.ErrUnknownTask) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleScheduleOnce(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")
	task := chi.URLParam(r, "task")

	var body struct {
		Delay string `json:"delay"` // Go duration string, e.g. "30s"
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	delay, err := time.ParseDuration(body.Delay)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.manager.ScheduleOnce(family, task, delay); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, scheduler.ErrUnknownTask) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"family": family, "task": task, "delay": delay.String(),
	})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	env, err := decodeEnvelope(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.pipeline.Enqueue(env); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.Dashboard(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, err := s.engine.TimerStats(r.Context(), chi.URLParam(r, "userID"), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, err := s.engine.GoalStats(r.Context(), chi.URLParam(r, "userID"), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rep, err := s.engine.UserReport(r.Context(), chi.URLParam(r, "userID"), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func queryPeriod(r *http.Request) (analytics.Period, error) {
	p := r.URL.Query().Get("period")
	if p == "" {
		return analytics.PeriodWeekly, nil
	}
	return analytics.ParsePeriod(p)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
