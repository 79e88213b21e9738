// Package dashboard orchestrates one browser session: it owns the filter
// state, fetches the active tab's data from the analytics API, normalizes
// it and caches one panel per tab.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"findash/internal/backend"
	"findash/internal/chart"
	"findash/internal/domain"
	"findash/internal/filter"
	"findash/internal/normalize"
)

// ErrStale is returned when a newer filter change superseded a fetch.
var ErrStale = errors.New("superseded by a newer filter change")

// ErrInvalidFilter wraps errors from applying a filter patch.
var ErrInvalidFilter = errors.New("invalid filters")

// Fetcher is the subset of the analytics API a session needs.
type Fetcher interface {
	CheckCompany(ctx context.Context, ticker string) (*backend.CompanyInfo, error)
	AggregatedData(ctx context.Context, tickers []string, metric string, period domain.Period) ([]backend.AggregatedPoint, error)
	BoxplotData(ctx context.Context, metrics []string, period domain.Period, industry string) (*backend.BoxplotResponse, error)
}

// MetricStyler supplies catalog labels and colors for metric series.
type MetricStyler interface {
	MetricStyle(name string) (label, color string, ok bool)
}

// maxParallelFetches bounds concurrent per-metric requests of one refresh.
const maxParallelFetches = 8

// Panel is the rendered state of one tab.
type Panel struct {
	Tab       domain.Tab                     `json:"tab"`
	Seq       uint64                         `json:"seq"`
	Title     string                         `json:"title"`
	Company   string                         `json:"company,omitempty"`
	Rows      []domain.ChartRow              `json:"rows,omitempty"`
	Series    []chart.Series                 `json:"series,omitempty"`
	Industry  []domain.IndustryBoxplotSeries `json:"industry,omitempty"`
	Boxplot   *chart.BoxplotSpec             `json:"boxplot,omitempty"`
	Message   string                         `json:"message,omitempty"`
	Error     string                         `json:"error,omitempty"`
	Warnings  []string                       `json:"warnings,omitempty"`
	UpdatedAt time.Time                      `json:"updatedAt"`
}

// HasChart reports whether the panel has anything to draw.
func (p *Panel) HasChart() bool {
	if p.Error != "" {
		return false
	}
	if p.Tab == domain.TabIndustry {
		for _, s := range p.Industry {
			if len(s.Values) > 0 {
				return true
			}
		}
		return false
	}
	return len(p.Rows) > 0
}

// Session is one user's dashboard.
type Session struct {
	ID      string
	Filters *filter.Holder
	// Styles, when set, colors metric lines by catalog position instead of
	// selection position.
	Styles MetricStyler

	fetcher Fetcher
	units   *normalize.Registry
	log     *slog.Logger

	mu     sync.Mutex
	panels map[domain.Tab]*Panel
}

// NewSession creates an empty session. resolver may be nil.
func NewSession(id string, fetcher Fetcher, units *normalize.Registry, resolver filter.NameResolver, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		ID:      id,
		Filters: filter.New(resolver),
		fetcher: fetcher,
		units:   units,
		log:     log.With("session", id),
		panels:  make(map[domain.Tab]*Panel),
	}
}

// Update applies a filter patch and returns the active tab's panel,
// refetching it when the patch made it stale.
func (s *Session) Update(ctx context.Context, p filter.Patch) (*Panel, error) {
	ch, err := s.Filters.Apply(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	tab := s.Filters.Snapshot().Tab
	s.log.Debug("filters applied", "tab", tab, "refetch", ch.Affects(tab), "stale", ch.Stale, "restyle", ch.Restyle, "tabChanged", ch.TabChanged)
	return s.Active(ctx)
}

// Active returns the active tab's panel, fetching it if the cached copy is
// missing or stale. Switching tabs never clears other tabs' caches. Failed
// loads are never cached, so calling Active again retries them.
func (s *Session) Active(ctx context.Context) (*Panel, error) {
	state := s.Filters.Snapshot()
	tab := state.Tab

	s.mu.Lock()
	cached := s.panels[tab]
	s.mu.Unlock()

	if cached != nil && cached.Seq == s.Filters.Seq(tab) {
		return s.view(cached, state), nil
	}
	return s.Refresh(ctx, tab)
}

// Cached returns the last panel stored for tab without fetching.
func (s *Session) Cached(tab domain.Tab) *Panel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.panels[tab]; p != nil {
		return s.view(p, s.Filters.Snapshot())
	}
	return nil
}

// Refresh fetches tab for the current filters. If the filters change while
// the fetch is in flight, the result is discarded and ErrStale returned. A
// cancelled ctx returns its error rather than an error panel.
func (s *Session) Refresh(ctx context.Context, tab domain.Tab) (*Panel, error) {
	tok := s.Filters.Begin(tab)
	start := time.Now()

	var p *Panel
	if ok, msg := filter.Ready(tok.State, tab); !ok {
		p = &Panel{Message: msg}
	} else {
		switch tab {
		case domain.TabMetrics:
			p = s.fetchMetrics(ctx, tok.State)
		case domain.TabPeers:
			p = s.fetchPeers(ctx, tok.State)
		case domain.TabIndustry:
			p = s.fetchIndustry(ctx, tok.State)
		default:
			return nil, fmt.Errorf("unknown tab %q", tab)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.Tab = tab
	p.Seq = tok.Seq
	p.UpdatedAt = time.Now()
	if p.Title == "" {
		p.Title = title(tok.State, tab)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Filters.Current(tok) {
		s.log.Debug("discarding stale result", "tab", tab, "seq", tok.Seq)
		return nil, ErrStale
	}
	if p.Error != "" {
		delete(s.panels, tab)
	} else {
		s.panels[tab] = p
	}
	s.log.Info("panel refreshed", "tab", tab, "seq", tok.Seq, "rows", len(p.Rows), "error", p.Error, "elapsed", time.Since(start))
	return s.view(p, s.Filters.Snapshot()), nil
}

// view returns a copy of p with presentation derived from state.
func (s *Session) view(p *Panel, state domain.FilterState) *Panel {
	out := *p
	if out.Tab == domain.TabIndustry && len(out.Industry) > 0 {
		spec := chart.BuildBoxplot(out.Title, out.Industry, state.SelectedTicker)
		out.Boxplot = &spec
	}
	return &out
}

func (s *Session) fetchMetrics(ctx context.Context, st domain.FilterState) *Panel {
	info, err := s.fetcher.CheckCompany(ctx, st.Ticker)
	if err != nil {
		s.log.Warn("company check failed", "ticker", st.Ticker, "error", err)
		var se *backend.StatusError
		switch {
		case errors.As(err, &se) && se.Message != "":
			return &Panel{Error: se.Message}
		case errors.Is(err, backend.ErrNotFound):
			return &Panel{Error: fmt.Sprintf("Company %s not found", st.Ticker)}
		default:
			return &Panel{Error: fmt.Sprintf("Could not verify company %s", st.Ticker)}
		}
	}

	table := normalize.NewTable(st.Metrics...)
	var (
		mu     sync.Mutex
		failed []string
	)
	sem := make(chan struct{}, maxParallelFetches)
	g, gctx := errgroup.WithContext(ctx)
	for _, metric := range st.Metrics {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			rows, err := s.fetcher.AggregatedData(gctx, []string{st.Ticker}, metric, st.Period)
			if err != nil {
				s.log.Warn("metric fetch failed", "ticker", st.Ticker, "metric", metric, "error", err)
				mu.Lock()
				failed = append(failed, metric)
				mu.Unlock()
				return nil
			}
			table.Merge(metric, backend.Points(rows))
			return nil
		})
	}
	g.Wait()

	p := &Panel{Company: info.Name, Series: s.metricSeries(st.Metrics)}
	if len(failed) == len(st.Metrics) {
		p.Error = fmt.Sprintf("Failed to load data for %s", st.Ticker)
		return p
	}
	for _, m := range st.Metrics {
		for _, f := range failed {
			if f == m {
				p.Warnings = append(p.Warnings, fmt.Sprintf("%s could not be loaded", chart.MetricLabel(m)))
			}
		}
	}
	p.Rows = table.Rows()
	if len(p.Rows) == 0 {
		p.Message = "No data available"
	}
	return p
}

func (s *Session) metricSeries(metrics []string) []chart.Series {
	series := chart.BuildSeries(metrics, chart.MetricLabel)
	if s.Styles == nil {
		return series
	}
	for i := range series {
		if label, color, ok := s.Styles.MetricStyle(series[i].Key); ok {
			series[i].Label = label
			series[i].Color = color
		}
	}
	return series
}

func (s *Session) fetchPeers(ctx context.Context, st domain.FilterState) *Panel {
	tickers := st.PeerTickers()
	names := make(map[string]string, len(st.Peers))
	for _, c := range st.Peers {
		names[c.Ticker] = c.Name
	}

	p := &Panel{Series: chart.BuildSeries(tickers, func(t string) string {
		if n := names[t]; n != "" && n != t {
			return t + ": " + n
		}
		return t
	})}

	rows, err := s.fetcher.AggregatedData(ctx, tickers, st.PeerMetric, st.Period)
	if err != nil {
		s.log.Warn("peer fetch failed", "tickers", tickers, "metric", st.PeerMetric, "error", err)
		p.Error = "Failed to load peer comparison data"
		return p
	}
	byTicker := backend.PointsByTicker(rows)
	table := normalize.NewTable(tickers...)
	for _, t := range tickers {
		if pts, ok := byTicker[t]; ok {
			table.Merge(t, pts)
		}
	}
	p.Rows = table.Rows()
	if len(p.Rows) == 0 {
		p.Message = "No data available"
	}
	return p
}

func (s *Session) fetchIndustry(ctx context.Context, st domain.FilterState) *Panel {
	resp, err := s.fetcher.BoxplotData(ctx, st.IndustryMetrics, st.Period, st.Industry)
	if err != nil {
		s.log.Warn("boxplot fetch failed", "industry", st.Industry, "error", err)
		return &Panel{Error: fmt.Sprintf("Failed to load %s industry data", st.Industry)}
	}
	p := &Panel{Industry: normalize.Boxplot(st.IndustryMetrics, resp.Values, resp.CompanyNames, s.units)}
	if !p.HasChart() {
		p.Message = "No data available"
	}
	return p
}

func title(st domain.FilterState, tab domain.Tab) string {
	switch tab {
	case domain.TabMetrics:
		if st.Ticker != "" {
			return fmt.Sprintf("%s (%s)", st.Ticker, st.Period)
		}
	case domain.TabPeers:
		if st.PeerMetric != "" {
			return fmt.Sprintf("%s: %s (%s)", chart.MetricLabel(st.PeerMetric), strings.Join(st.PeerTickers(), ", "), st.Period)
		}
	case domain.TabIndustry:
		if st.Industry != "" {
			return fmt.Sprintf("%s (%s)", st.Industry, st.Period)
		}
	}
	return "Financial Analytics"
}
