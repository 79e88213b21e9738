// Package domain defines the core value types shared across findash: filter
// state, chart rows, boxplot series, chat messages and live feed points.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Period is the lookback window requested from the analytics backend.
type Period string

const (
	Period1Y  Period = "1Y"
	Period2Y  Period = "2Y"
	Period3Y  Period = "3Y"
	Period4Y  Period = "4Y"
	Period5Y  Period = "5Y"
	Period10Y Period = "10Y"
	Period15Y Period = "15Y"
	Period20Y Period = "20Y"
)

// DefaultPeriod is the period a fresh session starts with.
const DefaultPeriod = Period1Y

// Periods lists every supported period in ascending order.
var Periods = []Period{Period1Y, Period2Y, Period3Y, Period4Y, Period5Y, Period10Y, Period15Y, Period20Y}

// Valid reports whether p is one of the supported periods.
func (p Period) Valid() bool {
	for _, v := range Periods {
		if v == p {
			return true
		}
	}
	return false
}

// ParsePeriod parses a period string such as "5Y" (case-insensitive).
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown period %q", s)
	}
	return p, nil
}

// Tab selects which chart panel is active. Tabs are mutually exclusive.
type Tab string

const (
	TabMetrics  Tab = "metrics"
	TabPeers    Tab = "peers"
	TabIndustry Tab = "industry"
)

// Tabs lists every tab.
var Tabs = []Tab{TabMetrics, TabPeers, TabIndustry}

// Valid reports whether t names a known tab.
func (t Tab) Valid() bool {
	return t == TabMetrics || t == TabPeers || t == TabIndustry
}

// Company is a ticker with its display name.
type Company struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// ParseCompany parses peer input of the form "TICKER" or "TICKER: Name".
// The ticker is upper-cased; a missing name is left empty.
func ParseCompany(s string) (Company, error) {
	ticker, name, _ := strings.Cut(s, ":")
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return Company{}, fmt.Errorf("empty ticker in %q", s)
	}
	return Company{Ticker: ticker, Name: strings.TrimSpace(name)}, nil
}

// MaxIndustryMetrics caps how many metrics the industry chart compares.
const MaxIndustryMetrics = 3

// FilterState is a snapshot of every user-selected filter.
type FilterState struct {
	Ticker          string    `json:"ticker"`
	Metrics         []string  `json:"metrics"`
	Peers           []Company `json:"peers"`
	PeerMetric      string    `json:"peerMetric"`
	Industry        string    `json:"industry"`
	IndustryMetrics []string  `json:"industryMetrics"`
	SelectedTicker  string    `json:"selectedTicker"`
	Period          Period    `json:"period"`
	Tab             Tab       `json:"tab"`
}

// PeerTickers returns the tickers of the selected peers in order.
func (f FilterState) PeerTickers() []string {
	out := make([]string, len(f.Peers))
	for i, p := range f.Peers {
		out[i] = p.Ticker
	}
	return out
}

// Point is one (period label, value) observation of a series. A nil Value
// means the backend reported the period without a number.
type Point struct {
	Label string
	Value *float64
}

// Float returns a pointer to v, for building Points and rows.
func Float(v float64) *float64 { return &v }

// ChartRow is one row of a chart keyed by period label. Keys fixes the column
// order; every key is present in Values, with nil for a missing value.
type ChartRow struct {
	Name   string
	Keys   []string
	Values map[string]*float64
}

// Value returns the value stored under key and whether it is defined.
func (r ChartRow) Value(key string) (float64, bool) {
	v := r.Values[key]
	if v == nil {
		return 0, false
	}
	return *v, true
}

// MarshalJSON encodes the row as a flat object: {"name": ..., key: value|null}.
func (r ChartRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	name, _ := json.Marshal(r.Name)
	buf.WriteString(`"name":`)
	buf.Write(name)
	for _, k := range r.Keys {
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(kb)
		buf.WriteByte(':')
		if v := r.Values[k]; v != nil {
			vb, err := json.Marshal(*v)
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		} else {
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat row object. Keys come back sorted because
// JSON objects carry no order.
func (r *ChartRow) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Name = ""
	r.Keys = nil
	r.Values = make(map[string]*float64, len(raw))
	for k, v := range raw {
		if k == "name" {
			if err := json.Unmarshal(v, &r.Name); err != nil {
				return fmt.Errorf("decoding row name: %w", err)
			}
			continue
		}
		var f *float64
		if err := json.Unmarshal(v, &f); err != nil {
			return fmt.Errorf("decoding row %q: %w", k, err)
		}
		r.Keys = append(r.Keys, k)
		r.Values[k] = f
	}
	sort.Strings(r.Keys)
	return nil
}

// IndustryBoxplotSeries holds one metric's distribution across an industry.
// Values are already divided by Scale; Unit is the display suffix.
type IndustryBoxplotSeries struct {
	Metric       string    `json:"metric"`
	Values       []float64 `json:"values"`
	CompanyNames []string  `json:"companyNames"`
	Unit         string    `json:"unit"`
	Scale        float64   `json:"scale"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one transcript entry.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RevenuePoint is one message of the live revenue feed.
type RevenuePoint struct {
	Period  string  `json:"period"`
	Revenue float64 `json:"revenue"`
	Profit  float64 `json:"profit"`
}
