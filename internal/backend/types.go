package backend

import (
	"errors"
	"fmt"

	"findash/internal/domain"
)

// ErrNotFound matches a 404 from the analytics API.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx response. Message is the body's "error" field
// when present.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("status %d", e.Code)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == 404
}

// Industry is one industry with the tickers that belong to it.
type Industry struct {
	Name      string   `json:"name"`
	Companies []string `json:"companies"`
}

// AggregatedPoint is one row of /aggregated-data/.
type AggregatedPoint struct {
	Name   string   `json:"name"`
	Ticker string   `json:"ticker"`
	Value  *float64 `json:"value"`
}

// BoxplotResponse is the body of /boxplot-data/: per-metric values with the
// company each value belongs to, index-aligned.
type BoxplotResponse struct {
	Values       map[string][]float64 `json:"values"`
	CompanyNames map[string][]string  `json:"companyNames"`
}

// CompanyInfo is the body of a successful /companies/<ticker>/ check.
type CompanyInfo struct {
	Ticker       string `json:"ticker"`
	Name         string `json:"name"`
	MetricsCount int    `json:"metrics_count"`
}

// ChatRequest is posted to /chat/.
type ChatRequest struct {
	Question  string            `json:"question"`
	Company   string            `json:"company"`
	Period    domain.Period     `json:"period"`
	Metrics   []string          `json:"metrics"`
	ChartType string            `json:"chartType"`
	ChartData []domain.ChartRow `json:"chartData"`
}

// ChatResponse carries either an answer or an error description.
type ChatResponse struct {
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Points converts aggregated rows into series points, keeping order.
func Points(rows []AggregatedPoint) []domain.Point {
	out := make([]domain.Point, len(rows))
	for i, r := range rows {
		out[i] = domain.Point{Label: r.Name, Value: r.Value}
	}
	return out
}

// PointsByTicker groups aggregated rows by ticker.
func PointsByTicker(rows []AggregatedPoint) map[string][]domain.Point {
	out := make(map[string][]domain.Point)
	for _, r := range rows {
		out[r.Ticker] = append(out[r.Ticker], domain.Point{Label: r.Name, Value: r.Value})
	}
	return out
}
