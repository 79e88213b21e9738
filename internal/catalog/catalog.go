// Package catalog caches the analytics API's metric and industry lists and
// refreshes them on a cron schedule.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"findash/internal/backend"
	"findash/internal/chart"
	"findash/internal/util"
)

// Source is the backend subset the catalog reads.
type Source interface {
	AvailableMetrics(ctx context.Context) ([]string, error)
	Industries(ctx context.Context) ([]backend.Industry, error)
}

// Metric is one selectable metric with its display label and color. Colors
// follow the metric's position in the backend's list.
type Metric struct {
	Name  string `json:"value"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// Snapshot is one loaded catalog.
type Snapshot struct {
	Metrics    []Metric           `json:"metrics"`
	Industries []backend.Industry `json:"industries"`
	LoadedAt   time.Time          `json:"loadedAt"`
}

// Catalog holds the latest successfully loaded snapshot.
type Catalog struct {
	src Source
	log *slog.Logger

	mu      sync.RWMutex
	snap    Snapshot
	byName  map[string]Metric
	lastErr error

	cron *cron.Cron
}

// New creates an empty catalog.
func New(src Source, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{src: src, log: log, byName: map[string]Metric{}}
}

// Refresh reloads both lists. On failure the previous snapshot is kept and
// the error returned.
func (c *Catalog) Refresh(ctx context.Context) error {
	var (
		names      []string
		industries []backend.Industry
	)
	err := util.Retry(ctx, 3, time.Second, nil, func() error {
		var err error
		if names, err = c.src.AvailableMetrics(ctx); err != nil {
			return err
		}
		industries, err = c.src.Industries(ctx)
		return err
	})
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.log.Error("catalog refresh failed", "error", err)
		return fmt.Errorf("refreshing catalog: %w", err)
	}

	colors := chart.Palette(len(names))
	metrics := make([]Metric, len(names))
	byName := make(map[string]Metric, len(names))
	for i, n := range names {
		m := Metric{Name: n, Label: chart.MetricLabel(n), Color: colors[i]}
		metrics[i] = m
		byName[n] = m
	}
	sort.SliceStable(industries, func(i, j int) bool { return industries[i].Name < industries[j].Name })

	c.mu.Lock()
	c.snap = Snapshot{Metrics: metrics, Industries: industries, LoadedAt: time.Now()}
	c.byName = byName
	c.lastErr = nil
	c.mu.Unlock()

	c.log.Info("catalog refreshed", "metrics", len(metrics), "industries", len(industries))
	return nil
}

// Snapshot returns the current catalog.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// LastError returns the error of the latest refresh, or nil.
func (c *Catalog) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// MetricStyle returns the label and color for a known metric.
func (c *Catalog) MetricStyle(name string) (label, color string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byName[name]
	return m.Label, m.Color, ok
}

// Industry returns the named industry.
func (c *Catalog) Industry(name string) (backend.Industry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ind := range c.snap.Industries {
		if ind.Name == name {
			return ind, true
		}
	}
	return backend.Industry{}, false
}

// Start schedules Refresh on spec (six-field cron with seconds) and starts
// the scheduler.
func (c *Catalog) Start(ctx context.Context, spec string) error {
	c.cron = cron.New(cron.WithSeconds())
	if _, err := c.cron.AddFunc(spec, func() {
		c.Refresh(ctx)
	}); err != nil {
		return fmt.Errorf("register catalog refresh: %w", err)
	}
	c.cron.Start()
	c.log.Info("catalog scheduler started", "cron", spec)
	return nil
}

// Stop stops the scheduler and waits for a running refresh.
func (c *Catalog) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	c.log.Info("catalog scheduler stopped")
}
