package normalize

import "findash/internal/domain"

// Boxplot builds one series per requested metric, in request order, from
// the backend's per-metric value and company lists. Values are scaled
// through reg. A metric the backend did not return yields an empty series.
// The returned slice is freshly allocated on every call.
func Boxplot(metrics []string, values map[string][]float64, companies map[string][]string, reg *Registry) []domain.IndustryBoxplotSeries {
	out := make([]domain.IndustryBoxplotSeries, 0, len(metrics))
	for _, m := range metrics {
		unit := reg.Lookup(m)
		vals := values[m]
		names := companies[m]
		n := len(vals)
		if len(names) < n {
			n = len(names)
		}

		s := domain.IndustryBoxplotSeries{
			Metric:       m,
			Values:       make([]float64, n),
			CompanyNames: make([]string, n),
			Unit:         unit.Suffix,
			Scale:        unit.Scale,
		}
		for i := 0; i < n; i++ {
			s.Values[i] = unit.Apply(vals[i])
			s.CompanyNames[i] = names[i]
		}
		out = append(out, s)
	}
	return out
}
