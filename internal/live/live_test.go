package live

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"findash/internal/domain"
)

func TestWindowCap(t *testing.T) {
	w := NewWindow(12)
	id, ch := w.Subscribe(32)
	defer w.Unsubscribe(id)

	for i := 1; i <= 15; i++ {
		w.Add(domain.RevenuePoint{Period: strconv.Itoa(i), Revenue: float64(i)})
	}
	snap := w.Snapshot()
	if len(snap) != 12 {
		t.Fatalf("len = %d, want 12", len(snap))
	}
	if snap[0].Period != "4" || snap[11].Period != "15" {
		t.Errorf("window = %s..%s, want 4..15", snap[0].Period, snap[11].Period)
	}
	if len(ch) != 15 {
		t.Errorf("subscriber got %d points, want 15", len(ch))
	}
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint([]byte(`{"period":"Jan","revenue":120.5}`))
	if err != nil {
		t.Fatalf("ParsePoint: %v", err)
	}
	if p.Period != "Jan" || p.Revenue != 120.5 || p.Profit != 0 {
		t.Errorf("point = %+v", p)
	}
	if p, _ := ParsePoint([]byte(`{"period":2024,"revenue":1,"profit":2}`)); p.Period != "2024" || p.Profit != 2 {
		t.Errorf("numeric period = %+v", p)
	}
	for _, bad := range []string{`not json`, `{"revenue":1}`, `{"period":"Jan"}`} {
		if _, err := ParsePoint([]byte(bad)); err == nil {
			t.Errorf("ParsePoint(%s) succeeded, want error", bad)
		}
	}
}

// revenueServer sends msgs then closes normally.
func revenueServer(t *testing.T, msgs ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		for _, m := range msgs {
			if err := c.Write(r.Context(), websocket.MessageText, []byte(m)); err != nil {
				return
			}
		}
		c.Close(websocket.StatusNormalClosure, "done")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/revenue/"
}

func TestFeedRun(t *testing.T) {
	srv := revenueServer(t,
		`{"period":"Q1","revenue":10,"profit":2}`,
		`garbage`,
		`{"period":"Q2","revenue":12}`,
	)

	w := NewWindow(12)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := NewFeed(wsURL(srv), nil).Run(ctx, w); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := w.Snapshot()
	if len(snap) != 2 || snap[1].Period != "Q2" || snap[1].Profit != 0 {
		t.Errorf("window = %+v", snap)
	}
}

func TestFeedDialError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := NewFeed("ws://127.0.0.1:1/ws/revenue/", nil).Run(ctx, NewWindow(0)); err == nil {
		t.Error("expected dial error")
	}
}

type fixedSource []domain.RevenuePoint

func (s fixedSource) Run(ctx context.Context, w *Window) error {
	for _, p := range s {
		w.Add(p)
	}
	return nil
}

func TestStreamDeliversAll(t *testing.T) {
	src := fixedSource{{Period: "a", Revenue: 1}, {Period: "b", Revenue: 2}}
	var got []string
	err := Stream(context.Background(), src, 12, func(p domain.RevenuePoint) error {
		got = append(got, p.Period)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if strings.Join(got, ",") != "a,b" {
		t.Errorf("got %v, want [a b]", got)
	}
}

func TestGRPCRelay(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	src := fixedSource{{Period: "2023", Revenue: 383.3, Profit: 97}, {Period: "2024", Revenue: 391}}
	NewServer(src, 12, nil).RegisterGRPC(gs)
	go gs.Serve(lis)
	defer gs.Stop()

	w := NewWindow(12)
	m := NewMirror("passthrough:///bufnet", w, nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	snap := w.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("mirrored %d points, want 2", len(snap))
	}
	if snap[0] != (domain.RevenuePoint{Period: "2023", Revenue: 383.3, Profit: 97}) {
		t.Errorf("first point = %+v", snap[0])
	}
}
