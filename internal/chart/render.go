package chart

import (
	"errors"
	"fmt"
	"io"
	"math"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Layout padding shared by rendering and tooltip positioning.
const (
	padTop    = 14
	padLeft   = 16
	padRight  = 12
	padBottom = 48
)

// Default image size.
const (
	DefaultWidth  = 1000
	DefaultHeight = 500
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to plot")

// Format selects the image encoding.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (f Format) provider() gochart.RendererProvider {
	if f == FormatSVG {
		return gochart.SVG
	}
	return gochart.PNG
}

// highlightColor marks the selected company in boxplots.
var highlightColor = ParseColor("#EC3B83")

func compactFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return Compact(f)
	}
	return fmt.Sprintf("%v", v)
}

// pointStyle renders points only, with no connecting line.
func pointStyle(col drawing.Color, dot float64) gochart.Style {
	return gochart.Style{
		StrokeWidth: 0,
		StrokeColor: drawing.ColorTransparent,
		DotWidth:    dot,
		DotColor:    col,
	}
}

func lineStyle(col drawing.Color, width float64) gochart.Style {
	return gochart.Style{StrokeColor: col, StrokeWidth: width}
}

// padSingle duplicates a lone point; go-chart needs two values per series.
func padSingle(xs, ys []float64) ([]float64, []float64) {
	if len(xs) == 1 {
		return []float64{xs[0], xs[0]}, []float64{ys[0], ys[0]}
	}
	return xs, ys
}

// RenderLine draws spec as a line chart. Gaps (nil values) are skipped and
// the line joins the neighbouring defined points.
func RenderLine(w io.Writer, spec LineSpec, format Format, width, height int) error {
	ch, err := lineChart(spec, width, height)
	if err != nil {
		return err
	}
	if err := ch.Render(format.provider(), w); err != nil {
		return fmt.Errorf("rendering line chart: %w", err)
	}
	return nil
}

// MeasureLine lays spec out without drawing it and returns the plot box
// RenderLine would use at this size.
func MeasureLine(spec LineSpec, width, height int) (Geometry, error) {
	ch, err := lineChart(spec, width, height)
	if err != nil {
		return Geometry{}, err
	}
	var box gochart.Box
	ch.Elements = append(ch.Elements, func(_ gochart.Renderer, canvas gochart.Box, _ gochart.Style) {
		box = canvas
	})
	if err := ch.Render(gochart.SVG, io.Discard); err != nil {
		return Geometry{}, fmt.Errorf("measuring line chart: %w", err)
	}
	return Geometry{
		Width:    float64(width),
		Height:   float64(height),
		PadLeft:  float64(box.Left),
		PadRight: float64(width - box.Right),
		PadTop:   float64(box.Top),
	}, nil
}

func lineChart(spec LineSpec, width, height int) (gochart.Chart, error) {
	n := len(spec.Categories)
	var series []gochart.Series
	var all []float64
	for i, s := range spec.Series {
		var xs, ys []float64
		for j, v := range spec.Values[i] {
			if v == nil {
				continue
			}
			xs = append(xs, float64(j))
			ys = append(ys, *v)
		}
		if len(xs) == 0 {
			continue
		}
		all = append(all, ys...)
		xs, ys = padSingle(xs, ys)
		col := ParseColor(s.Color)
		series = append(series, gochart.ContinuousSeries{
			Name:    s.Label,
			XValues: xs,
			YValues: ys,
			Style: gochart.Style{
				StrokeColor: col,
				StrokeWidth: 2,
				DotWidth:    4,
				DotColor:    col,
			},
		})
	}
	if len(series) == 0 {
		return gochart.Chart{}, ErrNoData
	}

	labels := make([]string, n)
	copy(labels, spec.Ticks)

	ch := gochart.Chart{
		Title:      spec.Title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: padTop, Left: padLeft, Right: padRight, Bottom: padBottom}},
		XAxis:      gochart.XAxis{Ticks: categoryTicks(labels)},
		YAxis:      gochart.YAxis{ValueFormatter: compactFormatter, Range: flatRange(all)},
		Series:     series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}
	return ch, nil
}

// categoryTicks places label i at x=i and adds unlabelled ticks at -0.5
// and n-0.5. go-chart derives the x-range from explicit ticks, so the
// outer pair keeps every category half a slot away from the plot edges.
func categoryTicks(labels []string) []gochart.Tick {
	n := len(labels)
	ticks := make([]gochart.Tick, 0, n+2)
	ticks = append(ticks, gochart.Tick{Value: -0.5})
	for i, l := range labels {
		ticks = append(ticks, gochart.Tick{Value: float64(i), Label: l})
	}
	return append(ticks, gochart.Tick{Value: float64(n) - 0.5})
}

// flatRange returns a y-range around ys when they are all equal, and nil
// otherwise so go-chart picks its own.
func flatRange(ys []float64) gochart.Range {
	if len(ys) == 0 {
		return nil
	}
	lo, hi := ys[0], ys[0]
	for _, y := range ys[1:] {
		lo, hi = math.Min(lo, y), math.Max(hi, y)
	}
	if hi > lo {
		return nil
	}
	pad := math.Abs(lo) / 10
	if pad == 0 {
		pad = 1
	}
	return &gochart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

// RenderBoxplot draws one box with whiskers per metric and the companies
// as jittered points. The selected company is drawn larger in a highlight
// color.
func RenderBoxplot(w io.Writer, spec BoxplotSpec, format Format, width, height int) error {
	var series []gochart.Series
	var all []float64
	labels := make([]string, len(spec.Boxes))
	for i, b := range spec.Boxes {
		x := float64(i)
		labels[i] = b.Label
		if b.Unit != "" {
			labels[i] = fmt.Sprintf("%s (%s)", b.Label, b.Unit)
		}
		if b.Stats == nil {
			continue
		}
		col := ParseColor(b.Color)
		st := b.Stats
		series = append(series,
			gochart.ContinuousSeries{
				XValues: []float64{x - 0.25, x + 0.25, x + 0.25, x - 0.25, x - 0.25},
				YValues: []float64{st.Q1, st.Q1, st.Q3, st.Q3, st.Q1},
				Style:   lineStyle(col, 2),
			},
			gochart.ContinuousSeries{
				XValues: []float64{x - 0.25, x + 0.25},
				YValues: []float64{st.Median, st.Median},
				Style:   lineStyle(col, 3),
			},
			gochart.ContinuousSeries{
				XValues: []float64{x, x},
				YValues: []float64{st.LowerWhisker, st.Q1},
				Style:   lineStyle(col, 1),
			},
			gochart.ContinuousSeries{
				XValues: []float64{x, x},
				YValues: []float64{st.Q3, st.UpperWhisker},
				Style:   lineStyle(col, 1),
			},
		)

		all = append(all, st.LowerWhisker, st.UpperWhisker)
		var xs, ys, hx, hy []float64
		for _, p := range b.Points {
			all = append(all, p.Y)
			if p.Highlight {
				hx, hy = append(hx, p.X), append(hy, p.Y)
				continue
			}
			xs, ys = append(xs, p.X), append(ys, p.Y)
		}
		if len(xs) > 0 {
			xs, ys = padSingle(xs, ys)
			series = append(series, gochart.ContinuousSeries{XValues: xs, YValues: ys, Style: pointStyle(col, 3)})
		}
		if len(hx) > 0 {
			hx, hy = padSingle(hx, hy)
			series = append(series, gochart.ContinuousSeries{XValues: hx, YValues: hy, Style: pointStyle(highlightColor, 6)})
		}
	}
	if len(series) == 0 {
		return ErrNoData
	}

	ch := gochart.Chart{
		Title:      spec.Title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: padTop, Left: padLeft, Right: padRight, Bottom: padBottom}},
		XAxis:      gochart.XAxis{Ticks: categoryTicks(labels)},
		YAxis:      gochart.YAxis{ValueFormatter: compactFormatter, Range: flatRange(all)},
		Series:     series,
	}
	if err := ch.Render(format.provider(), w); err != nil {
		return fmt.Errorf("rendering boxplot: %w", err)
	}
	return nil
}
