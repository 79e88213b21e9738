// Package normalize turns per-series backend responses into chart-ready rows
// and industry boxplot series.
package normalize

import (
	"sort"
	"sync"

	"findash/internal/domain"
)

// Table accumulates series into rows keyed by period label. Merges commute:
// each Merge writes only its own key, so results may arrive in any order.
// A Table is safe for concurrent use.
type Table struct {
	mu     sync.Mutex
	keys   []string
	known  map[string]bool
	labels map[string]map[string]*float64 // label -> key -> value
}

// NewTable creates a table whose columns start with keys, in that order.
func NewTable(keys ...string) *Table {
	t := &Table{
		known:  make(map[string]bool),
		labels: make(map[string]map[string]*float64),
	}
	for _, k := range keys {
		t.addKey(k)
	}
	return t
}

func (t *Table) addKey(k string) {
	if !t.known[k] {
		t.known[k] = true
		t.keys = append(t.keys, k)
	}
}

// Merge folds one series into the table under key. Later data for the same
// label overwrites only that key's cell.
func (t *Table) Merge(key string, points []domain.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.addKey(key)
	for _, p := range points {
		cells := t.labels[p.Label]
		if cells == nil {
			cells = make(map[string]*float64)
			t.labels[p.Label] = cells
		}
		if p.Value == nil {
			cells[key] = nil
			continue
		}
		v := *p.Value
		cells[key] = &v
	}
}

// Rows returns one row per distinct label, sorted by leading year. Every
// column key is present in each row; unreported cells are nil.
func (t *Table) Rows() []domain.ChartRow {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := make([]domain.ChartRow, 0, len(t.labels))
	for label, cells := range t.labels {
		keys := make([]string, len(t.keys))
		copy(keys, t.keys)
		values := make(map[string]*float64, len(keys))
		for _, k := range keys {
			if v := cells[k]; v != nil {
				c := *v
				values[k] = &c
			} else {
				values[k] = nil
			}
		}
		rows = append(rows, domain.ChartRow{Name: label, Keys: keys, Values: values})
	}
	SortRows(rows)
	return rows
}

// MergeSeries merges a complete set of series in one call. keys fixes the
// column order; series for keys outside it are appended after.
func MergeSeries(keys []string, series map[string][]domain.Point) []domain.ChartRow {
	t := NewTable(keys...)
	var extra []string
	for k := range series {
		if !t.known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range append(append([]string(nil), keys...), extra...) {
		if pts, ok := series[k]; ok {
			t.Merge(k, pts)
		}
	}
	return t.Rows()
}
