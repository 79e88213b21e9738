package normalize

import "strings"

// Unit is how a metric is shown: raw values are divided by Scale and
// suffixed with Suffix.
type Unit struct {
	Scale  float64
	Suffix string
}

// Unscaled leaves values untouched.
var Unscaled = Unit{Scale: 1}

// Billions divides by 1e9 and labels the axis "B".
var Billions = Unit{Scale: 1e9, Suffix: "B"}

// Apply scales v for display.
func (u Unit) Apply(v float64) float64 {
	if u.Scale == 0 {
		return v
	}
	return v / u.Scale
}

// ratioTerms mark per-share, percentage and ratio metrics. They win over
// scaleTerms, so "ReturnOnAssets" and "DebtToEquity" stay unscaled.
var ratioTerms = []string{
	"ratio", "margin", "return", "turnover", "yield", "toequity", "pershare", "percent", "growth",
}

// scaleTerms mark absolute currency amounts reported in raw dollars.
var scaleTerms = []string{
	"revenue", "asset", "liabilit", "income", "cash", "debt", "equity",
	"sales", "profit", "expense", "cost", "ebitda", "capital",
}

// GuessUnit classifies a metric by substrings of its name.
func GuessUnit(metric string) Unit {
	m := strings.ToLower(metric)
	for _, t := range ratioTerms {
		if strings.Contains(m, t) {
			return Unscaled
		}
	}
	for _, t := range scaleTerms {
		if strings.Contains(m, t) {
			return Billions
		}
	}
	return Unscaled
}

// Registry maps metric names to units. Explicit entries take precedence;
// unknown metrics fall back to GuessUnit.
type Registry struct {
	units map[string]Unit
}

// NewRegistry builds a registry from an explicit table, which may be nil.
func NewRegistry(units map[string]Unit) *Registry {
	r := &Registry{units: make(map[string]Unit, len(units))}
	for name, u := range units {
		r.units[name] = u
	}
	return r
}

// Lookup returns the unit for metric.
func (r *Registry) Lookup(metric string) Unit {
	if r != nil {
		if u, ok := r.units[metric]; ok {
			if u.Scale == 0 {
				u.Scale = 1
			}
			return u
		}
	}
	return GuessUnit(metric)
}
