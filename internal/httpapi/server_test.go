package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"findash/internal/backend"
	"findash/internal/catalog"
	"findash/internal/chat"
	"findash/internal/domain"
	"findash/internal/live"
	"findash/internal/store"
)

type stubFetcher struct{}

func (stubFetcher) CheckCompany(_ context.Context, ticker string) (*backend.CompanyInfo, error) {
	if ticker != "AAPL" {
		return nil, &backend.StatusError{Code: 404, Message: "Company " + ticker + " not found"}
	}
	return &backend.CompanyInfo{Ticker: "AAPL", Name: "Apple Inc."}, nil
}

func (stubFetcher) AggregatedData(_ context.Context, tickers []string, metric string, _ domain.Period) ([]backend.AggregatedPoint, error) {
	var out []backend.AggregatedPoint
	for _, t := range tickers {
		out = append(out,
			backend.AggregatedPoint{Name: "2022", Ticker: t, Value: domain.Float(100)},
			backend.AggregatedPoint{Name: "2023", Ticker: t, Value: domain.Float(120)},
		)
	}
	return out, nil
}

func (stubFetcher) BoxplotData(context.Context, []string, domain.Period, string) (*backend.BoxplotResponse, error) {
	return &backend.BoxplotResponse{}, nil
}

func (stubFetcher) AvailableMetrics(context.Context) ([]string, error) {
	return []string{"revenue", "netIncome"}, nil
}

func (stubFetcher) Industries(context.Context) ([]backend.Industry, error) {
	return []backend.Industry{{Name: "Technology", Companies: []string{"AAPL"}}}, nil
}

type stubAnswerer struct{ err error }

func (a stubAnswerer) Answer(_ context.Context, req backend.ChatRequest) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return "Revenue grew for " + req.Company, nil
}

type stubSource struct{ points []domain.RevenuePoint }

func (s stubSource) Run(ctx context.Context, w *live.Window) error {
	for _, p := range s.points {
		w.Add(p)
	}
	<-ctx.Done()
	return nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cat := catalog.New(stubFetcher{}, nil)
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("catalog refresh: %v", err)
	}
	chatLog, err := store.OpenSQL("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	t.Cleanup(func() { chatLog.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := NewServer(ctx, Deps{
		Fetcher:  stubFetcher{},
		Catalog:  cat,
		Answerer: stubAnswerer{},
		ChatLog:  chatLog,
		Charts:   store.NewParquetStore(t.TempDir()),
		Live: stubSource{points: []domain.RevenuePoint{
			{Period: "Q1", Revenue: 10, Profit: 2},
			{Period: "Q2", Revenue: 12},
		}},
		LiveWindow: live.DefaultWindow,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(s.Close)
	return s, ts
}

func do(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, url, rd)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, url, err)
		}
	}
	return resp
}

func createSession(t *testing.T, base string, body any) SessionJSON {
	t.Helper()
	var s SessionJSON
	resp := do(t, "POST", base+"/api/sessions", body, &s)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	return s
}

func TestHealthAndCatalog(t *testing.T) {
	_, ts := newTestServer(t)

	var h HealthJSON
	do(t, "GET", ts.URL+"/api/healthz", nil, &h)
	if h.Status != "ok" || h.CatalogLoadedAt.IsZero() {
		t.Errorf("health = %+v", h)
	}

	var m struct {
		Metrics []catalog.Metric `json:"metrics"`
	}
	do(t, "GET", ts.URL+"/api/metrics", nil, &m)
	if len(m.Metrics) != 2 || m.Metrics[1].Label != "Net Income" {
		t.Errorf("metrics = %+v", m.Metrics)
	}

	var ind struct {
		Industries []backend.Industry `json:"industries"`
	}
	do(t, "GET", ts.URL+"/api/industries", nil, &ind)
	if len(ind.Industries) != 1 || ind.Industries[0].Name != "Technology" {
		t.Errorf("industries = %+v", ind.Industries)
	}

	var one backend.Industry
	if resp := do(t, "GET", ts.URL+"/api/industries/Technology", nil, &one); resp.StatusCode != http.StatusOK || one.Name != "Technology" {
		t.Errorf("industry = %d %+v", resp.StatusCode, one)
	}
	if resp := do(t, "GET", ts.URL+"/api/industries/Mining", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown industry status = %d, want 404", resp.StatusCode)
	}
}

func TestSessionFiltersAndPanel(t *testing.T) {
	_, ts := newTestServer(t)
	s := createSession(t, ts.URL, nil)
	if s.ID == "" || s.Panel != nil {
		t.Fatalf("session = %+v", s)
	}
	if s.Filters.Period != domain.DefaultPeriod {
		t.Errorf("period = %q, want %q", s.Filters.Period, domain.DefaultPeriod)
	}

	var upd SessionJSON
	resp := do(t, "PUT", ts.URL+"/api/sessions/"+s.ID+"/filters",
		map[string]any{"ticker": "AAPL", "metrics": []string{"revenue"}}, &upd)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT filters status = %d", resp.StatusCode)
	}
	if upd.Panel == nil || len(upd.Panel.Rows) != 2 {
		t.Fatalf("panel = %+v", upd.Panel)
	}
	if upd.Filters.Ticker != "AAPL" {
		t.Errorf("ticker = %q", upd.Filters.Ticker)
	}

	resp = do(t, "PUT", ts.URL+"/api/sessions/"+s.ID+"/filters",
		map[string]any{"period": "7Y"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid period status = %d, want 400", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/api/sessions/" + s.ID + "/chart.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("chart.png = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	var tt map[string]any
	resp = do(t, "GET", ts.URL+"/api/sessions/"+s.ID+"/tooltip?hover=2023", nil, &tt)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("tooltip status = %d", resp.StatusCode)
	}

	for x, want := range map[string]string{"0": "2022", "990": "2023"} {
		var pinned map[string]any
		resp = do(t, "GET", ts.URL+"/api/sessions/"+s.ID+"/tooltip?x="+x+"&width=1000&height=500", nil, &pinned)
		if resp.StatusCode != http.StatusOK || pinned["hoverLabel"] != want {
			t.Errorf("tooltip?x=%s = %d %v, want hover %s", x, resp.StatusCode, pinned["hoverLabel"], want)
		}
	}
	if resp = do(t, "GET", ts.URL+"/api/sessions/"+s.ID+"/tooltip?x=left", nil, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("tooltip?x=left status = %d, want 400", resp.StatusCode)
	}

	resp = do(t, "PUT", ts.URL+"/api/sessions/"+s.ID+"/filters",
		map[string]any{"industryMetrics": []string{"a", "b", "c", "d"}}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("too many industry metrics status = %d, want 400", resp.StatusCode)
	}
}

func TestUnknownSession(t *testing.T) {
	_, ts := newTestServer(t)
	for _, path := range []string{"/filters", "/panel", "/chat"} {
		resp := do(t, "GET", ts.URL+"/api/sessions/nope"+path, nil, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestDeleteSession(t *testing.T) {
	_, ts := newTestServer(t)
	s := createSession(t, ts.URL, nil)
	if resp := do(t, "DELETE", ts.URL+"/api/sessions/"+s.ID, nil, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	if resp := do(t, "DELETE", ts.URL+"/api/sessions/"+s.ID, nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestChatFlow(t *testing.T) {
	_, ts := newTestServer(t)
	s := createSession(t, ts.URL, map[string]any{"ticker": "AAPL", "metrics": []string{"revenue"}})
	if s.Panel == nil || len(s.Panel.Rows) == 0 {
		t.Fatalf("initial panel = %+v", s.Panel)
	}

	var c ChatJSON
	do(t, "POST", ts.URL+"/api/sessions/"+s.ID+"/chat", ChatRequestJSON{Question: "How is revenue?"}, &c)
	if c.Reply == nil || c.Reply.Content != "Revenue grew for AAPL" {
		t.Fatalf("reply = %+v", c.Reply)
	}
	if len(c.Messages) != 3 || c.Messages[0].Content != chat.Greeting {
		t.Errorf("messages = %+v", c.Messages)
	}

	var hist []store.ChatRecord
	do(t, "GET", ts.URL+"/api/sessions/"+s.ID+"/chat/history", nil, &hist)
	if len(hist) != 1 || hist[0].Question != "How is revenue?" {
		t.Errorf("history = %+v", hist)
	}

	resp := do(t, "POST", ts.URL+"/api/sessions/"+s.ID+"/chat", ChatRequestJSON{Question: "  "}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank question status = %d, want 400", resp.StatusCode)
	}

	var cleared ChatJSON
	resp = do(t, "POST", ts.URL+"/api/sessions/"+s.ID+"/chat/clear", nil, &cleared)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}
	if len(cleared.Messages) != 1 || cleared.Messages[0].Content != chat.Greeting {
		t.Errorf("after clear = %+v", cleared.Messages)
	}
}

func TestChatWithoutCompany(t *testing.T) {
	_, ts := newTestServer(t)
	s := createSession(t, ts.URL, nil)
	var c ChatJSON
	do(t, "POST", ts.URL+"/api/sessions/"+s.ID+"/chat", ChatRequestJSON{Question: "hi"}, &c)
	if c.Reply == nil || c.Reply.Content != "Please select a company first to analyze the data." {
		t.Errorf("reply = %+v", c.Reply)
	}
}

func TestSaveAndLoadChart(t *testing.T) {
	_, ts := newTestServer(t)
	s := createSession(t, ts.URL, map[string]any{"ticker": "AAPL", "metrics": []string{"revenue"}})

	var saved SavedJSON
	resp := do(t, "POST", ts.URL+"/api/sessions/"+s.ID+"/charts", SaveChartJSON{Title: "Apple revenue"}, &saved)
	if resp.StatusCode != http.StatusCreated || saved.ID == "" {
		t.Fatalf("save = %d %+v", resp.StatusCode, saved)
	}

	var list []store.ChartMeta
	do(t, "GET", ts.URL+"/api/charts", nil, &list)
	if len(list) != 1 || list[0].Title != "Apple revenue" || !list[0].HasImage {
		t.Errorf("list = %+v", list)
	}

	var c store.SavedChart
	do(t, "GET", ts.URL+"/api/charts/"+saved.ID, nil, &c)
	if len(c.Rows) != 2 || c.Tab != domain.TabMetrics {
		t.Errorf("loaded = %+v", c)
	}

	img, err := http.Get(ts.URL + "/api/charts/" + saved.ID + "/image")
	if err != nil {
		t.Fatal(err)
	}
	img.Body.Close()
	if img.StatusCode != http.StatusOK {
		t.Errorf("image status = %d", img.StatusCode)
	}

	if resp := do(t, "GET", ts.URL+"/api/charts/not-a-uuid", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("bad id status = %d, want 404", resp.StatusCode)
	}
}

func TestSaveEmptyPanel(t *testing.T) {
	_, ts := newTestServer(t)
	s := createSession(t, ts.URL, nil)
	resp := do(t, "POST", ts.URL+"/api/sessions/"+s.ID+"/charts", nil, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestLiveWebSocket(t *testing.T) {
	_, ts := newTestServer(t)
	s := createSession(t, ts.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + s.ID + "/live"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var got []domain.RevenuePoint
	for len(got) < 2 {
		var p domain.RevenuePoint
		if err := wsjson.Read(ctx, conn, &p); err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, p)
	}
	if got[0].Period != "Q1" || got[1].Revenue != 12 || got[1].Profit != 0 {
		t.Errorf("points = %+v", got)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestWriteDashboardError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDashboardError(rec, errors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
}
