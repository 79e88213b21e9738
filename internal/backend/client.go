// Package backend is the HTTP client for the remote analytics API that
// serves metrics, industries, aggregated series, boxplot data and chat
// answers.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"findash/internal/domain"
)

// Options tunes a Client. Zero values select defaults.
type Options struct {
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
	HTTPClient     *http.Client
}

// Client talks to the analytics API rooted at baseURL (e.g.
// "http://host:8000/api"). Requests are throttled but never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// NewClient creates a new analytics API client.
func NewClient(baseURL string, opts Options, log *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		limiter:    rate.NewLimiter(limit, burst),
		log:        log,
	}
}

// AvailableMetrics lists every metric name the backend knows.
func (c *Client) AvailableMetrics(ctx context.Context) ([]string, error) {
	var body struct {
		Metrics []string `json:"metrics"`
	}
	if err := c.do(ctx, http.MethodGet, "/available-metrics/", nil, nil, &body); err != nil {
		return nil, fmt.Errorf("fetching available metrics: %w", err)
	}
	return body.Metrics, nil
}

// Industries lists industries with their member tickers.
func (c *Client) Industries(ctx context.Context) ([]Industry, error) {
	var body struct {
		Industries []Industry `json:"industries"`
	}
	if err := c.do(ctx, http.MethodGet, "/industries/", nil, nil, &body); err != nil {
		return nil, fmt.Errorf("fetching industries: %w", err)
	}
	return body.Industries, nil
}

// AggregatedData fetches one metric over period for one or more tickers.
func (c *Client) AggregatedData(ctx context.Context, tickers []string, metric string, period domain.Period) ([]AggregatedPoint, error) {
	q := url.Values{}
	q.Set("tickers", strings.Join(tickers, ","))
	q.Set("metric", metric)
	q.Set("period", string(period))

	var rows []AggregatedPoint
	if err := c.do(ctx, http.MethodGet, "/aggregated-data/", q, nil, &rows); err != nil {
		return nil, fmt.Errorf("fetching %s for %s: %w", metric, strings.Join(tickers, ","), err)
	}
	return rows, nil
}

// BoxplotData fetches industry-wide distributions for metrics.
func (c *Client) BoxplotData(ctx context.Context, metrics []string, period domain.Period, industry string) (*BoxplotResponse, error) {
	q := url.Values{}
	for _, m := range metrics {
		q.Add("metric[]", m)
	}
	q.Set("period", string(period))
	q.Set("industry", industry)

	var body BoxplotResponse
	if err := c.do(ctx, http.MethodGet, "/boxplot-data/", q, nil, &body); err != nil {
		return nil, fmt.Errorf("fetching boxplot for %s: %w", industry, err)
	}
	return &body, nil
}

// CheckCompany checks whether ticker exists. A 404 yields an error matching
// ErrNotFound.
func (c *Client) CheckCompany(ctx context.Context, ticker string) (*CompanyInfo, error) {
	var info CompanyInfo
	path := "/companies/" + url.PathEscape(ticker) + "/"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &info); err != nil {
		return nil, fmt.Errorf("checking company %s: %w", ticker, err)
	}
	if info.Ticker == "" {
		info.Ticker = ticker
	}
	return &info, nil
}

// Chat posts a question with its chart context. A 2xx body may carry either
// an answer or an error description; non-2xx responses are returned as
// *StatusError.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat/", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("posting chat question: %w", err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode}
		var eb struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &eb) == nil {
			se.Message = eb.Error
		}
		return se
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
