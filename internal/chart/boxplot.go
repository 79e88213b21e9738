package chart

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"findash/internal/domain"
)

// BoxStats summarises one distribution.
type BoxStats struct {
	Min          float64   `json:"min"`
	Q1           float64   `json:"q1"`
	Median       float64   `json:"median"`
	Q3           float64   `json:"q3"`
	Max          float64   `json:"max"`
	LowerWhisker float64   `json:"lowerWhisker"`
	UpperWhisker float64   `json:"upperWhisker"`
	Outliers     []float64 `json:"outliers"`
}

// ScatterPoint is one company's value drawn beside its metric's box.
type ScatterPoint struct {
	Company   string  `json:"company"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Highlight bool    `json:"highlight"`
}

// Box is one metric of a boxplot chart. Box i is centred on x = i.
type Box struct {
	Metric string         `json:"metric"`
	Label  string         `json:"label"`
	Unit   string         `json:"unit"`
	Color  string         `json:"color"`
	Stats  *BoxStats      `json:"stats,omitempty"`
	Points []ScatterPoint `json:"points"`
}

// BoxplotSpec is an industry distribution chart.
type BoxplotSpec struct {
	Title string `json:"title"`
	Boxes []Box  `json:"boxes"`
}

// JitterWidth is the total horizontal spread of scatter points.
const JitterWidth = 0.6

// Stats computes quartiles with linear interpolation and 1.5 IQR whiskers.
// It returns nil for an empty input.
func Stats(values []float64) *BoxStats {
	if len(values) == 0 {
		return nil
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	st := &BoxStats{
		Min:    sorted[0],
		Q1:     percentile(sorted, 0.25),
		Median: percentile(sorted, 0.50),
		Q3:     percentile(sorted, 0.75),
		Max:    sorted[len(sorted)-1],
	}
	iqr := st.Q3 - st.Q1
	lo, hi := st.Q1-1.5*iqr, st.Q3+1.5*iqr
	st.LowerWhisker, st.UpperWhisker = st.Max, st.Min
	for _, v := range sorted {
		if v < lo || v > hi {
			st.Outliers = append(st.Outliers, v)
			continue
		}
		st.LowerWhisker = math.Min(st.LowerWhisker, v)
		st.UpperWhisker = math.Max(st.UpperWhisker, v)
	}
	return st
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi || hi >= len(sorted) {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Jitter returns a stable horizontal offset in [-JitterWidth/2, JitterWidth/2]
// for a company, so points do not move between renders.
func Jitter(company string) float64 {
	h := fnv.New32a()
	h.Write([]byte(company))
	return (float64(h.Sum32()%1001)/1000 - 0.5) * JitterWidth
}

// BuildBoxplot lays out one box per series. Points whose company matches
// selected (case-insensitive) are flagged for highlighting.
func BuildBoxplot(title string, series []domain.IndustryBoxplotSeries, selected string) BoxplotSpec {
	spec := BoxplotSpec{Title: title, Boxes: make([]Box, len(series))}
	for i, s := range series {
		box := Box{
			Metric: s.Metric,
			Label:  MetricLabel(s.Metric),
			Unit:   s.Unit,
			Color:  ColorAt(i),
			Stats:  Stats(s.Values),
			Points: make([]ScatterPoint, len(s.Values)),
		}
		for j, v := range s.Values {
			var name string
			if j < len(s.CompanyNames) {
				name = s.CompanyNames[j]
			}
			box.Points[j] = ScatterPoint{
				Company:   name,
				X:         float64(i) + Jitter(name),
				Y:         v,
				Highlight: selected != "" && strings.EqualFold(name, selected),
			}
		}
		spec.Boxes[i] = box
	}
	return spec
}
