// Package analytics builds the "analytics" job family: the background
// rollups that keep the aggregation cache warm, the behavior and telemetry
// samplers, and the data retention sweep.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"focusd/internal/analytics"
	"focusd/internal/cache"
	"focusd/internal/clock"
	"focusd/internal/eventbus"
	"focusd/internal/scheduler"
	"focusd/internal/storage"
)

const Family = "analytics"

// Engine is the analytics query surface the rollup handlers drive.
type Engine interface {
	Dashboard(ctx context.Context, userID string) (analytics.Dashboard, error)
	UserReport(ctx context.Context, userID string, period analytics.Period) (analytics.Report, error)
}

type Config struct {
	// Retention windows for the dataCleanup sweep.
	ArchiveAfter time.Duration
	PurgeAfter   time.Duration
}

func (c Config) withDefaults() Config {
	if c.ArchiveAfter <= 0 {
		c.ArchiveAfter = 90 * 24 * time.Hour
	}
	if c.PurgeAfter <= 0 {
		c.PurgeAfter = 365 * 24 * time.Hour
	}
	return c
}

type handlers struct {
	cfg     Config
	store   storage.Store
	engine  Engine
	cache   *cache.Cache
	metrics MetricsSource
	clk     clock.Clock
	log     *slog.Logger
}

// NewRegistry builds the analytics family with its full schedule table.
func NewRegistry(cfg Config, tz string, store storage.Store, engine Engine, c *cache.Cache, metrics MetricsSource, clk clock.Clock, log *slog.Logger, bus eventbus.Bus) (*scheduler.Registry, error) {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = RuntimeMetrics()
	}
	h := &handlers{cfg: cfg, store: store, engine: engine, cache: c, metrics: metrics, clk: clk, log: log}

	r := scheduler.New(scheduler.Config{Family: Family, Timezone: tz}, log, clk, bus)
	tasks := []scheduler.Task{
		{Name: "dailyAnalytics", Spec: "0 1 * * *", Handler: h.dailyAnalytics, Enabled: true},
		{Name: "weeklyAggregation", Spec: "0 2 * * 0", Handler: h.weeklyAggregation, Enabled: true},
		{Name: "monthlyInsights", Spec: "0 3 1 * *", Handler: h.monthlyInsights, Enabled: true},
		{Name: "userBehavior", Spec: "0 */6 * * *", Handler: h.userBehavior, Enabled: true},
		{Name: "performanceMetrics", Spec: "0 * * * *", Handler: h.performanceMetrics, Enabled: true},
		{Name: "dataCleanup", Spec: "0 4 * * *", Handler: h.dataCleanup, Enabled: true},
	}
	for _, t := range tasks {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// activeUsers returns users seen within the lookback window.
func (h *handlers) activeUsers(ctx context.Context, lookback time.Duration) ([]storage.User, error) {
	now := h.clk.Now()
	return h.store.UsersActiveBetween(ctx, now.Add(-lookback), now)
}

// dailyAnalytics warms the dashboard aggregates for users active in the
// last day so the morning's first page loads hit the cache.
func (h *handlers) dailyAnalytics(ctx context.Context) error {
	users, err := h.activeUsers(ctx, 24*time.Hour)
	if err != nil {
		return err
	}
	warmed := 0
	for _, u := range users {
		if _, err := h.engine.Dashboard(ctx, u.ID); err != nil {
			h.log.Warn("dashboard rollup failed", slog.String("user", u.ID), slog.Any("err", err))
			continue
		}
		warmed++
	}
	h.log.Info("daily rollup complete", slog.Int("users", warmed))
	return nil
}

func (h *handlers) weeklyAggregation(ctx context.Context) error {
	users, err := h.activeUsers(ctx, 7*24*time.Hour)
	if err != nil {
		return err
	}
	for _, u := range users {
		if _, err := h.engine.UserReport(ctx, u.ID, analytics.PeriodWeekly); err != nil {
			h.log.Warn("weekly aggregation failed", slog.String("user", u.ID), slog.Any("err", err))
		}
	}
	h.log.Info("weekly aggregation complete", slog.Int("users", len(users)))
	return nil
}

// monthlyInsights builds monthly reports and logs the significant trends
// they surface.
func (h *handlers) monthlyInsights(ctx context.Context) error {
	users, err := h.activeUsers(ctx, 30*24*time.Hour)
	if err != nil {
		return err
	}
	for _, u := range users {
		rep, err := h.engine.UserReport(ctx, u.ID, analytics.PeriodMonthly)
		if err != nil {
			h.log.Warn("monthly insight failed", slog.String("user", u.ID), slog.Any("err", err))
			continue
		}
		for _, t := range rep.Trends {
			if !t.Significant {
				continue
			}
			h.log.Info("significant monthly trend",
				slog.String("user", u.ID),
				slog.String("field", t.Field),
				slog.String("direction", string(t.Direction)),
				slog.Float64("change", t.ChangePct))
		}
	}
	return nil
}

// userBehavior runs the anomaly heuristics over recently active users.
func (h *handlers) userBehavior(ctx context.Context) error {
	users, err := h.activeUsers(ctx, 6*time.Hour)
	if err != nil {
		return err
	}
	flagged := 0
	for _, u := range users {
		rep, err := h.engine.UserReport(ctx, u.ID, analytics.PeriodDaily)
		if err != nil {
			h.log.Warn("behavior check failed", slog.String("user", u.ID), slog.Any("err", err))
			continue
		}
		for _, a := range rep.Anomalies {
			flagged++
			h.log.Info("behavior anomaly",
				slog.String("user", u.ID),
				slog.String("kind", a.Kind),
				slog.Float64("value", a.Value))
		}
	}
	h.log.Debug("behavior sweep complete", slog.Int("users", len(users)), slog.Int("anomalies", flagged))
	return nil
}

// performanceMetrics logs a sample of process telemetry.
func (h *handlers) performanceMetrics(ctx context.Context) error {
	s := h.metrics.Sample()
	h.log.Info("performance sample",
		slog.Int("goroutines", s.Goroutines),
		slog.Uint64("heap_bytes", s.HeapBytes),
		slog.Uint64("total_alloc", s.TotalAllocBytes),
		slog.Uint64("gc_cycles", uint64(s.GCCycles)),
		slog.Duration("uptime", s.Uptime))
	return nil
}

// dataCleanup is the retention sweep: archive old sessions, purge archived
// ones past the purge window, and drop expired cache entries.
func (h *handlers) dataCleanup(ctx context.Context) error {
	now := h.clk.Now()

	archived, err := h.store.ArchiveSessionsBefore(ctx, now.Add(-h.cfg.ArchiveAfter))
	if err != nil {
		return err
	}
	purged, err := h.store.PurgeArchivedSessionsBefore(ctx, now.Add(-h.cfg.PurgeAfter))
	if err != nil {
		return err
	}
	swept := h.cache.Sweep()

	h.log.Info("retention sweep complete",
		slog.Int64("archived", archived),
		slog.Int64("purged", purged),
		slog.Int("cache_removed", swept))
	return nil
}
