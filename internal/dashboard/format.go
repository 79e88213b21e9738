package dashboard

import (
	"strings"

	"findash/internal/chart"
	"findash/internal/domain"
)

// FormatValue formats a cell value compactly, or "-" for a gap.
func FormatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return chart.Compact(*v)
}

// TextTable lays the panel out as fixed-width text lines: a header row, then
// one line per table row. Line tabs get a column per series; the industry
// tab gets a row per company with a column per metric.
func TextTable(p *Panel, colWidth int) []string {
	if p == nil || !p.HasChart() {
		return nil
	}
	if colWidth < 6 {
		colWidth = 6
	}
	rows := p.TableRows()

	type column struct{ key, label string }
	var cols []column
	if p.Tab == domain.TabIndustry {
		for _, s := range p.Industry {
			label := chart.MetricLabel(s.Metric)
			if s.Unit != "" {
				label += " (" + s.Unit + ")"
			}
			cols = append(cols, column{s.Metric, label})
		}
	} else {
		for _, s := range p.Series {
			cols = append(cols, column{s.Key, s.Label})
		}
	}

	first := colWidth
	for _, r := range rows {
		if n := len(r.Name) + 1; n > first {
			first = n
		}
	}

	var b strings.Builder
	b.WriteString(PadOrTrunc("", first))
	for _, c := range cols {
		b.WriteString(PadLeft(c.label, colWidth))
	}
	lines := []string{b.String()}
	for _, r := range rows {
		b.Reset()
		b.WriteString(PadOrTrunc(r.Name, first))
		for _, c := range cols {
			b.WriteString(PadLeft(FormatValue(r.Values[c.key]), colWidth))
		}
		lines = append(lines, b.String())
	}
	return lines
}

// PadOrTrunc pads s with spaces on the right, or truncates it, to width.
func PadOrTrunc(s string, width int) string {
	n := len(s)
	if n >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-n)
}

// PadLeft right-aligns s in width columns, truncating labels that do not fit.
func PadLeft(s string, width int) string {
	if len(s) >= width {
		return " " + s[:width-1]
	}
	return strings.Repeat(" ", width-len(s)) + s
}
