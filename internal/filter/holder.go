// Package filter holds a session's filter selections and tracks, per tab, a
// sequence number that lets in-flight fetches detect they have gone stale.
package filter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"findash/internal/domain"
)

// ErrTooManyMetrics is returned when more than domain.MaxIndustryMetrics
// industry metrics are selected.
var ErrTooManyMetrics = fmt.Errorf("at most %d industry metrics may be selected", domain.MaxIndustryMetrics)

// NameResolver looks up a company's display name by ticker.
type NameResolver interface {
	CompanyName(ctx context.Context, ticker string) (string, error)
}

// Patch is a partial update. Nil fields are left unchanged; a non-nil empty
// slice clears the selection.
type Patch struct {
	Ticker          *string           `json:"ticker,omitempty"`
	Metrics         *[]string         `json:"metrics,omitempty"`
	Peers           *[]domain.Company `json:"peers,omitempty"`
	AddPeer         string            `json:"addPeer,omitempty"`
	RemovePeer      string            `json:"removePeer,omitempty"`
	PeerMetric      *string           `json:"peerMetric,omitempty"`
	Industry        *string           `json:"industry,omitempty"`
	IndustryMetrics *[]string         `json:"industryMetrics,omitempty"`
	SelectedTicker  *string           `json:"selectedTicker,omitempty"`
	Period          *domain.Period    `json:"period,omitempty"`
	Tab             *domain.Tab       `json:"tab,omitempty"`
}

// Change reports what an applied patch invalidated.
type Change struct {
	// Stale lists tabs whose data must be refetched.
	Stale []domain.Tab
	// Restyle is set when only presentation (the highlighted ticker) changed.
	Restyle bool
	// TabChanged is set when the active tab switched.
	TabChanged bool
}

// Affects reports whether tab needs a refetch.
func (c Change) Affects(tab domain.Tab) bool {
	for _, t := range c.Stale {
		if t == tab {
			return true
		}
	}
	return false
}

// Token identifies the filter generation a fetch was started for.
type Token struct {
	Tab   domain.Tab
	Seq   uint64
	State domain.FilterState
}

// Holder stores the filter cells of one session. It is safe for concurrent
// use.
type Holder struct {
	mu       sync.Mutex
	state    domain.FilterState
	seq      map[domain.Tab]uint64
	resolver NameResolver
}

// New creates a holder with the default period and the metrics tab active.
// resolver may be nil.
func New(resolver NameResolver) *Holder {
	return &Holder{
		state: domain.FilterState{
			Metrics:         []string{},
			Peers:           []domain.Company{},
			IndustryMetrics: []string{},
			Period:          domain.DefaultPeriod,
			Tab:             domain.TabMetrics,
		},
		seq:      map[domain.Tab]uint64{domain.TabMetrics: 1, domain.TabPeers: 1, domain.TabIndustry: 1},
		resolver: resolver,
	}
}

// Snapshot returns a deep copy of the current filters.
func (h *Holder) Snapshot() domain.FilterState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copyState(h.state)
}

// Seq returns the current sequence number for tab.
func (h *Holder) Seq(tab domain.Tab) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq[tab]
}

// Begin captures the filters and sequence number for a fetch of tab.
func (h *Holder) Begin(tab domain.Tab) Token {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Token{Tab: tab, Seq: h.seq[tab], State: copyState(h.state)}
}

// Current reports whether no relevant filter changed since tok was issued.
func (h *Holder) Current(tok Token) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq[tok.Tab] == tok.Seq
}

// Apply validates and applies p. Peer names are resolved before the lock is
// taken, so a slow resolver never blocks readers.
func (h *Holder) Apply(ctx context.Context, p Patch) (Change, error) {
	var added *domain.Company
	if p.AddPeer != "" {
		c, err := domain.ParseCompany(p.AddPeer)
		if err != nil {
			return Change{}, err
		}
		if c.Name == "" {
			c.Name = h.resolveName(ctx, c.Ticker)
		}
		added = &c
	}
	if p.Period != nil && !p.Period.Valid() {
		return Change{}, fmt.Errorf("unknown period %q", *p.Period)
	}
	if p.Tab != nil && !p.Tab.Valid() {
		return Change{}, fmt.Errorf("unknown tab %q", *p.Tab)
	}
	if p.IndustryMetrics != nil && len(dedupe(*p.IndustryMetrics)) > domain.MaxIndustryMetrics {
		return Change{}, ErrTooManyMetrics
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	stale := make(map[domain.Tab]bool)
	var ch Change
	s := &h.state

	if p.Ticker != nil {
		t := strings.ToUpper(strings.TrimSpace(*p.Ticker))
		if t != s.Ticker {
			s.Ticker = t
			stale[domain.TabMetrics] = true
		}
	}
	if p.Metrics != nil {
		m := dedupe(*p.Metrics)
		if !equalStrings(m, s.Metrics) {
			s.Metrics = m
			stale[domain.TabMetrics] = true
		}
	}
	if p.Peers != nil {
		s.Peers = dedupePeers(*p.Peers)
		stale[domain.TabPeers] = true
	}
	if added != nil && indexPeer(s.Peers, added.Ticker) < 0 {
		s.Peers = append(s.Peers, *added)
		stale[domain.TabPeers] = true
	}
	if p.RemovePeer != "" {
		if i := indexPeer(s.Peers, strings.ToUpper(strings.TrimSpace(p.RemovePeer))); i >= 0 {
			s.Peers = append(s.Peers[:i:i], s.Peers[i+1:]...)
			stale[domain.TabPeers] = true
		}
	}
	if p.PeerMetric != nil && *p.PeerMetric != s.PeerMetric {
		s.PeerMetric = *p.PeerMetric
		stale[domain.TabPeers] = true
	}
	if p.Industry != nil && *p.Industry != s.Industry {
		s.Industry = *p.Industry
		stale[domain.TabIndustry] = true
	}
	if p.IndustryMetrics != nil {
		m := dedupe(*p.IndustryMetrics)
		if !equalStrings(m, s.IndustryMetrics) {
			s.IndustryMetrics = m
			stale[domain.TabIndustry] = true
		}
	}
	if p.SelectedTicker != nil {
		t := strings.ToUpper(strings.TrimSpace(*p.SelectedTicker))
		if t != s.SelectedTicker {
			s.SelectedTicker = t
			ch.Restyle = true
		}
	}
	if p.Period != nil && *p.Period != s.Period {
		s.Period = *p.Period
		for _, t := range domain.Tabs {
			stale[t] = true
		}
	}
	if p.Tab != nil && *p.Tab != s.Tab {
		s.Tab = *p.Tab
		ch.TabChanged = true
	}

	for _, t := range domain.Tabs {
		if stale[t] {
			h.seq[t]++
			ch.Stale = append(ch.Stale, t)
		}
	}
	return ch, nil
}

func (h *Holder) resolveName(ctx context.Context, ticker string) string {
	if h.resolver == nil {
		return ticker
	}
	name, err := h.resolver.CompanyName(ctx, ticker)
	if err != nil || name == "" {
		return ticker
	}
	return name
}

// Ready reports whether state has enough selections to fetch tab. When it
// does not, the returned message explains what is missing.
func Ready(state domain.FilterState, tab domain.Tab) (bool, string) {
	switch tab {
	case domain.TabMetrics:
		if state.Ticker == "" {
			return false, "Enter a company ticker to view its metrics."
		}
		if len(state.Metrics) == 0 {
			return false, "Select at least one metric to display."
		}
	case domain.TabPeers:
		if len(state.Peers) == 0 {
			return false, "Add at least one peer company to compare."
		}
		if state.PeerMetric == "" {
			return false, "Select a metric to compare peers."
		}
	case domain.TabIndustry:
		if state.Industry == "" {
			return false, "Select an industry."
		}
		if len(state.IndustryMetrics) == 0 {
			return false, fmt.Sprintf("Select up to %d metrics to compare across the industry.", domain.MaxIndustryMetrics)
		}
	default:
		return false, "Unknown tab."
	}
	return true, ""
}

func copyState(s domain.FilterState) domain.FilterState {
	out := s
	out.Metrics = append([]string{}, s.Metrics...)
	out.Peers = append([]domain.Company{}, s.Peers...)
	out.IndustryMetrics = append([]string{}, s.IndustryMetrics...)
	return out
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func dedupePeers(in []domain.Company) []domain.Company {
	out := make([]domain.Company, 0, len(in))
	for _, c := range in {
		c.Ticker = strings.ToUpper(strings.TrimSpace(c.Ticker))
		if c.Ticker == "" || indexPeer(out, c.Ticker) >= 0 {
			continue
		}
		if c.Name == "" {
			c.Name = c.Ticker
		}
		out = append(out, c)
	}
	return out
}

func indexPeer(peers []domain.Company, ticker string) int {
	for i, p := range peers {
		if p.Ticker == ticker {
			return i
		}
	}
	return -1
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
