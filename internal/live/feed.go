package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/coder/websocket"

	"findash/internal/domain"
)

// Feed reads the analytics revenue WebSocket into a Window.
type Feed struct {
	url string
	log *slog.Logger
}

// NewFeed creates a feed for the given ws:// URL.
func NewFeed(url string, log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{url: url, log: log.With("feed", url)}
}

// URL returns the upstream address.
func (f *Feed) URL() string { return f.url }

// Run dials the feed and appends every message to w until ctx is cancelled
// or the server closes the connection. It never reconnects. Malformed
// messages are logged and skipped.
func (f *Feed) Run(ctx context.Context, w *Window) error {
	conn, _, err := websocket.Dial(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", f.url, err)
	}
	defer conn.CloseNow()
	f.log.Info("live feed connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				f.log.Info("live feed closed")
				return nil
			}
			if status := websocket.CloseStatus(err); status != -1 {
				f.log.Warn("live feed closed by server", "code", int(status))
				return nil
			}
			return fmt.Errorf("reading %s: %w", f.url, err)
		}

		p, err := ParsePoint(data)
		if err != nil {
			f.log.Warn("malformed live message", "error", err, "data", string(data))
			continue
		}
		w.Add(p)
	}
}

// ParsePoint decodes one feed message. A missing profit defaults to 0; a
// missing period or revenue is an error.
func ParsePoint(data []byte) (domain.RevenuePoint, error) {
	var msg struct {
		Period  any      `json:"period"`
		Revenue *float64 `json:"revenue"`
		Profit  *float64 `json:"profit"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.RevenuePoint{}, err
	}

	var period string
	switch v := msg.Period.(type) {
	case string:
		period = v
	case float64:
		period = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if period == "" {
		return domain.RevenuePoint{}, errors.New("missing period")
	}
	if msg.Revenue == nil {
		return domain.RevenuePoint{}, errors.New("missing revenue")
	}

	p := domain.RevenuePoint{Period: period, Revenue: *msg.Revenue}
	if msg.Profit != nil {
		p.Profit = *msg.Profit
	}
	return p, nil
}
