package dashboard

import (
	"context"
	"io"

	"findash/internal/chart"
	"findash/internal/chat"
	"findash/internal/domain"
)

// Render draws the active tab's panel.
func (s *Session) Render(ctx context.Context, w io.Writer, format chart.Format, width, height int) error {
	p, err := s.Active(ctx)
	if err != nil {
		return err
	}
	if !p.HasChart() {
		return chart.ErrNoData
	}
	if width <= 0 {
		width = chart.DefaultWidth
	}
	if height <= 0 {
		height = chart.DefaultHeight
	}
	if p.Tab == domain.TabIndustry {
		return chart.RenderBoxplot(w, *p.Boxplot, format, width, height)
	}
	return chart.RenderLine(w, chart.BuildLine(p.Title, p.Rows, p.Series), format, width, height)
}

// PinnedTooltip is the tooltip content plus where to draw it.
type PinnedTooltip struct {
	chart.Tooltip
	Position chart.Position `json:"position"`
}

// Tooltip returns the pinned tooltip of the active line chart for the
// hovered period label. The industry tab has no tooltip.
func (s *Session) Tooltip(ctx context.Context, hover string, width, height int) (*PinnedTooltip, error) {
	p, spec, g, err := s.lineLayout(ctx, width, height)
	if err != nil {
		return nil, err
	}
	return &PinnedTooltip{
		Tooltip:  chart.TooltipContent(p.Rows, p.Series, hover),
		Position: chart.PinPosition(g, len(spec.Categories)),
	}, nil
}

// HoverAt maps a pointer x coordinate on the rendered line chart to the
// period label under it.
func (s *Session) HoverAt(ctx context.Context, x float64, width, height int) (string, error) {
	_, spec, g, err := s.lineLayout(ctx, width, height)
	if err != nil {
		return "", err
	}
	return spec.Categories[chart.NearestCategory(g, len(spec.Categories), x)], nil
}

func (s *Session) lineLayout(ctx context.Context, width, height int) (*Panel, chart.LineSpec, chart.Geometry, error) {
	p, err := s.Active(ctx)
	if err != nil {
		return nil, chart.LineSpec{}, chart.Geometry{}, err
	}
	if p.Tab == domain.TabIndustry || !p.HasChart() {
		return nil, chart.LineSpec{}, chart.Geometry{}, chart.ErrNoData
	}
	if width <= 0 {
		width = chart.DefaultWidth
	}
	if height <= 0 {
		height = chart.DefaultHeight
	}
	spec := chart.BuildLine(p.Title, p.Rows, p.Series)
	g, err := chart.MeasureLine(spec, width, height)
	if err != nil {
		g = chart.DefaultGeometry(width, height)
	}
	return p, spec, g, nil
}

// ChatContext returns the company metrics view as chat context. Rows come
// from the cached metrics panel; nothing is fetched.
func (s *Session) ChatContext() chat.Context {
	st := s.Filters.Snapshot()
	cc := chat.Context{
		Company:   st.Ticker,
		Period:    st.Period,
		Metrics:   st.Metrics,
		ChartType: string(st.Tab),
	}
	if p := s.Cached(domain.TabMetrics); p != nil {
		cc.Rows = p.Rows
	}
	return cc
}

// TableRows returns the panel as rows. Line tabs return their chart rows;
// the industry tab returns one row per company with a column per metric.
func (p *Panel) TableRows() []domain.ChartRow {
	if p.Tab != domain.TabIndustry {
		return p.Rows
	}
	keys := make([]string, len(p.Industry))
	for i, s := range p.Industry {
		keys[i] = s.Metric
	}
	index := make(map[string]int)
	var rows []domain.ChartRow
	for _, s := range p.Industry {
		for j, company := range s.CompanyNames {
			i, ok := index[company]
			if !ok {
				i = len(rows)
				index[company] = i
				r := domain.ChartRow{Name: company, Keys: keys, Values: make(map[string]*float64, len(keys))}
				for _, k := range keys {
					r.Values[k] = nil
				}
				rows = append(rows, r)
			}
			rows[i].Values[s.Metric] = domain.Float(s.Values[j])
		}
	}
	return rows
}
