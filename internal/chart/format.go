package chart

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var compactUnits = []struct {
	div    float64
	suffix string
}{
	{1e12, "T"},
	{1e9, "B"},
	{1e6, "M"},
	{1e3, "K"},
}

// Compact formats v with K/M/B/T suffixes and at most one fraction digit,
// e.g. 394328000000 -> "394.3B", 1000 -> "1K", 12.34 -> "12.3".
func Compact(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	for i, u := range compactUnits {
		if v < u.div {
			continue
		}
		d := decimal.NewFromFloat(v / u.div).Round(1)
		// Rounding can carry into the next unit: 999.96K -> 1M.
		if i > 0 && d.GreaterThanOrEqual(decimal.NewFromInt(1000)) {
			up := compactUnits[i-1]
			return sign + decimal.NewFromFloat(v/up.div).Round(1).String() + up.suffix
		}
		return sign + d.String() + u.suffix
	}
	d := decimal.NewFromFloat(v).Round(1)
	if d.GreaterThanOrEqual(decimal.NewFromInt(1000)) {
		return sign + "1K"
	}
	if d.IsZero() {
		return "0"
	}
	return sign + d.String()
}

// FormatPercent formats a percentage delta with an explicit sign, e.g.
// "+12.5%" or "-3%".
func FormatPercent(p float64) string {
	d := decimal.NewFromFloat(p).Round(1)
	if d.IsPositive() {
		return "+" + d.String() + "%"
	}
	return d.String() + "%"
}

// MetricLabel turns a camelCase metric name into a display label:
// "netIncome" -> "Net Income", "TotalRevenue" -> "Total Revenue".
func MetricLabel(metric string) string {
	var b strings.Builder
	for i, r := range metric {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		if i == 0 {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
