package chart

import (
	"findash/internal/domain"
	"findash/internal/normalize"
)

// Series describes one plotted line.
type Series struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// LineSpec is everything needed to draw a line chart: one category per row,
// one line per series. Values[i][j] is series i at category j, nil for a gap.
type LineSpec struct {
	Title      string       `json:"title"`
	Categories []string     `json:"categories"`
	Ticks      []string     `json:"ticks"`
	Series     []Series     `json:"series"`
	Values     [][]*float64 `json:"values"`
}

// BuildSeries assigns labels and palette colors to keys by position.
// labelFn may be nil, in which case keys are used as labels.
func BuildSeries(keys []string, labelFn func(string) string) []Series {
	out := make([]Series, len(keys))
	for i, k := range keys {
		label := k
		if labelFn != nil {
			label = labelFn(k)
		}
		out[i] = Series{Key: k, Label: label, Color: ColorAt(i)}
	}
	return out
}

// BuildLine lays rows out as a line chart.
func BuildLine(title string, rows []domain.ChartRow, series []Series) LineSpec {
	spec := LineSpec{
		Title:      title,
		Categories: make([]string, len(rows)),
		Ticks:      make([]string, len(rows)),
		Series:     series,
		Values:     make([][]*float64, len(series)),
	}
	for j, r := range rows {
		spec.Categories[j] = r.Name
		spec.Ticks[j] = normalize.TickLabel(r.Name)
	}
	for i, s := range series {
		col := make([]*float64, len(rows))
		for j, r := range rows {
			if v, ok := r.Value(s.Key); ok {
				col[j] = domain.Float(v)
			}
		}
		spec.Values[i] = col
	}
	return spec
}
