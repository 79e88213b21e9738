package chart

import (
	"math"

	"findash/internal/domain"
)

// Delta glyphs.
const (
	GlyphUp   = "▲"
	GlyphDown = "▼"
)

// TooltipEntry is one series line of the pinned tooltip.
type TooltipEntry struct {
	Key         string   `json:"key"`
	Label       string   `json:"label"`
	Color       string   `json:"color"`
	LatestLabel string   `json:"latestLabel"`
	Latest      *float64 `json:"latest"`
	LatestText  string   `json:"latestText"`
	Hovered     *float64 `json:"hovered"`
	DeltaPct    *float64 `json:"deltaPct"`
	DeltaText   string   `json:"deltaText"`
	Glyph       string   `json:"glyph"`
}

// Tooltip is the content of the tooltip pinned to the latest period.
type Tooltip struct {
	HoverLabel string         `json:"hoverLabel"`
	Entries    []TooltipEntry `json:"entries"`
}

// TooltipContent computes, for every series, its most recent defined value
// and the percentage change from the hovered period to it. hover may be
// empty or unknown, in which case only latest values are filled. It has no
// knowledge of layout.
func TooltipContent(rows []domain.ChartRow, series []Series, hover string) Tooltip {
	tt := Tooltip{HoverLabel: hover, Entries: make([]TooltipEntry, 0, len(series))}

	hoverIdx := -1
	for i, r := range rows {
		if r.Name == hover {
			hoverIdx = i
			break
		}
	}

	for _, s := range series {
		e := TooltipEntry{Key: s.Key, Label: s.Label, Color: s.Color, LatestText: "-"}
		for i := len(rows) - 1; i >= 0; i-- {
			if v, ok := rows[i].Value(s.Key); ok {
				e.Latest = domain.Float(v)
				e.LatestLabel = rows[i].Name
				e.LatestText = Compact(v)
				break
			}
		}
		if hoverIdx >= 0 {
			if v, ok := rows[hoverIdx].Value(s.Key); ok {
				e.Hovered = domain.Float(v)
			}
		}
		if e.Latest != nil && e.Hovered != nil && *e.Hovered != 0 {
			d := (*e.Latest - *e.Hovered) * 100 / math.Abs(*e.Hovered)
			e.DeltaPct = &d
			e.DeltaText = FormatPercent(d)
			switch {
			case d > 0:
				e.Glyph = GlyphUp
			case d < 0:
				e.Glyph = GlyphDown
			}
		}
		tt.Entries = append(tt.Entries, e)
	}
	return tt
}

// Geometry is the pixel layout of a rendered chart.
type Geometry struct {
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	PadLeft  float64 `json:"padLeft"`
	PadRight float64 `json:"padRight"`
	PadTop   float64 `json:"padTop"`
}

// DefaultGeometry is the plot box before go-chart makes room for axis
// labels. Prefer MeasureLine when the spec is at hand.
func DefaultGeometry(width, height int) Geometry {
	return Geometry{
		Width:    float64(width),
		Height:   float64(height),
		PadLeft:  padLeft,
		PadRight: padRight,
		PadTop:   padTop,
	}
}

// CategoryCenters returns the pixel x of each of n categories. Category i
// sits at (i+0.5)/n of the plot width, as laid out by categoryTicks.
func (g Geometry) CategoryCenters(n int) []float64 {
	if n <= 0 {
		return nil
	}
	plotW := g.Width - g.PadLeft - g.PadRight
	if plotW < 1 {
		plotW = g.Width
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = g.PadLeft + plotW*(float64(i)+0.5)/float64(n)
	}
	return out
}

// Position is where a tooltip is drawn, in pixels.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PinPosition anchors the tooltip over the last of n categories.
func PinPosition(g Geometry, n int) Position {
	centers := g.CategoryCenters(n)
	if len(centers) == 0 {
		return Position{X: g.PadLeft, Y: g.PadTop}
	}
	return Position{X: centers[len(centers)-1], Y: g.PadTop + 100}
}

// NearestCategory picks the category whose centre is closest to mouseX.
func NearestCategory(g Geometry, n int, mouseX float64) int {
	best := 0
	bestD := math.MaxFloat64
	for i, c := range g.CategoryCenters(n) {
		if d := math.Abs(mouseX - c); d < bestD {
			bestD = d
			best = i
		}
	}
	return best
}
