// Package findash is a Go client for the findash-server API.
package findash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"findash/internal/backend"
	"findash/internal/catalog"
	"findash/internal/dashboard"
	"findash/internal/domain"
	"findash/internal/filter"
	"findash/internal/httpapi"
	"findash/internal/store"
)

// Re-exported wire types.
type (
	Metric      = catalog.Metric
	Industry    = backend.Industry
	FilterState = domain.FilterState
	Patch       = filter.Patch
	Panel       = dashboard.Panel
	Tooltip     = dashboard.PinnedTooltip
	ChatMessage = domain.ChatMessage
	ChatRecord  = store.ChatRecord
	ChartMeta   = store.ChartMeta
	SavedChart  = store.SavedChart
	Session     = httpapi.SessionJSON
	Health      = httpapi.HealthJSON
	Chat        = httpapi.ChatJSON
)

// Error is a non-2xx response from the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("findash: HTTP %d: %s", e.Status, e.Message)
}

// Client provides a Go SDK for interacting with the findash-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new findash API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health returns the server health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	return &h, c.do(ctx, "GET", "/api/healthz", nil, &h)
}

// Metrics returns the metric catalog.
func (c *Client) Metrics(ctx context.Context) ([]Metric, error) {
	var out struct {
		Metrics []Metric `json:"metrics"`
	}
	err := c.do(ctx, "GET", "/api/metrics", nil, &out)
	return out.Metrics, err
}

// Industries returns the industry names with their member tickers.
func (c *Client) Industries(ctx context.Context) ([]json.RawMessage, error) {
	var out struct {
		Industries []json.RawMessage `json:"industries"`
	}
	err := c.do(ctx, "GET", "/api/industries", nil, &out)
	return out.Industries, err
}

// Industry returns one industry and its member companies.
func (c *Client) Industry(ctx context.Context, name string) (*Industry, error) {
	var ind Industry
	return &ind, c.do(ctx, "GET", "/api/industries/"+url.PathEscape(name), nil, &ind)
}

// CreateSession starts a dashboard session, optionally applying initial
// filters.
func (c *Client) CreateSession(ctx context.Context, initial *Patch) (*Session, error) {
	var s Session
	var body any
	if initial != nil {
		body = initial
	}
	return &s, c.do(ctx, "POST", "/api/sessions", body, &s)
}

// DeleteSession ends a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// UpdateFilters applies p and returns the refreshed active panel.
func (c *Client) UpdateFilters(ctx context.Context, id string, p Patch) (*Session, error) {
	var s Session
	return &s, c.do(ctx, "PUT", c.sessionPath(id, "/filters"), p, &s)
}

// Panel returns the active panel.
func (c *Client) Panel(ctx context.Context, id string) (*Panel, error) {
	var p Panel
	return &p, c.do(ctx, "GET", c.sessionPath(id, "/panel"), nil, &p)
}

// Tooltip returns the pinned tooltip for the hovered period label.
func (c *Client) Tooltip(ctx context.Context, id, hover string) (*Tooltip, error) {
	var t Tooltip
	path := c.sessionPath(id, "/tooltip") + "?hover=" + url.QueryEscape(hover)
	return &t, c.do(ctx, "GET", path, nil, &t)
}

// TooltipAt returns the pinned tooltip for the period under pointer x on a
// chart of the given size.
func (c *Client) TooltipAt(ctx context.Context, id string, x float64, width, height int) (*Tooltip, error) {
	q := url.Values{}
	q.Set("x", fmt.Sprint(x))
	if width > 0 {
		q.Set("width", fmt.Sprint(width))
	}
	if height > 0 {
		q.Set("height", fmt.Sprint(height))
	}
	var t Tooltip
	return &t, c.do(ctx, "GET", c.sessionPath(id, "/tooltip")+"?"+q.Encode(), nil, &t)
}

// Chart returns the rendered chart. format is "png" or "svg".
func (c *Client) Chart(ctx context.Context, id, format string, width, height int) ([]byte, error) {
	q := url.Values{}
	if width > 0 {
		q.Set("width", fmt.Sprint(width))
	}
	if height > 0 {
		q.Set("height", fmt.Sprint(height))
	}
	path := c.sessionPath(id, "/chart."+format)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.raw(ctx, path)
}

// Ask posts a chat question and returns the updated transcript.
func (c *Client) Ask(ctx context.Context, id, question string) (*Chat, error) {
	var out Chat
	return &out, c.do(ctx, "POST", c.sessionPath(id, "/chat"), httpapi.ChatRequestJSON{Question: question}, &out)
}

// Messages returns the chat transcript.
func (c *Client) Messages(ctx context.Context, id string) ([]ChatMessage, error) {
	var out Chat
	err := c.do(ctx, "GET", c.sessionPath(id, "/chat"), nil, &out)
	return out.Messages, err
}

// ClearChat resets the transcript to the greeting.
func (c *Client) ClearChat(ctx context.Context, id string) ([]ChatMessage, error) {
	var out Chat
	err := c.do(ctx, "POST", c.sessionPath(id, "/chat/clear"), nil, &out)
	return out.Messages, err
}

// ChatHistory returns the persisted chat log of a session.
func (c *Client) ChatHistory(ctx context.Context, id string, limit int) ([]ChatRecord, error) {
	var out []ChatRecord
	path := c.sessionPath(id, "/chat/history")
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	return out, c.do(ctx, "GET", path, nil, &out)
}

// SaveChart stores the active panel and returns the chart ID.
func (c *Client) SaveChart(ctx context.Context, id, title string) (string, error) {
	var out httpapi.SavedJSON
	err := c.do(ctx, "POST", c.sessionPath(id, "/charts"), httpapi.SaveChartJSON{Title: title}, &out)
	return out.ID, err
}

// Charts lists saved charts, newest first.
func (c *Client) Charts(ctx context.Context) ([]ChartMeta, error) {
	var out []ChartMeta
	return out, c.do(ctx, "GET", "/api/charts", nil, &out)
}

// LoadChart returns a saved chart.
func (c *Client) LoadChart(ctx context.Context, chartID string) (*SavedChart, error) {
	var out SavedChart
	return &out, c.do(ctx, "GET", "/api/charts/"+url.PathEscape(chartID), nil, &out)
}

// ChartImage returns the PNG stored with a saved chart.
func (c *Client) ChartImage(ctx context.Context, chartID string) ([]byte, error) {
	return c.raw(ctx, "/api/charts/"+url.PathEscape(chartID)+"/image")
}

// LiveURL returns the WebSocket URL of a session's revenue feed.
func (c *Client) LiveURL(id string) string {
	u := c.baseURL + c.sessionPath(id, "/live")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *Client) sessionPath(id, suffix string) string {
	return "/api/sessions/" + url.PathEscape(id) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	var e struct {
		Error string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(b, &e) != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(b))
	}
	return &Error{Status: resp.StatusCode, Message: e.Error}
}
