// Package live carries the real-time revenue feed: a capped rolling window
// fed from the analytics WebSocket, with pub/sub for browser and gRPC
// subscribers.
package live

import (
	"sync"

	"findash/internal/domain"
)

// DefaultWindow is the number of points kept when no size is configured.
const DefaultWindow = 12

// Window holds the most recent revenue points, oldest first. Once full,
// each new point evicts the oldest.
type Window struct {
	mu     sync.RWMutex
	size   int
	points []domain.RevenuePoint

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan domain.RevenuePoint
}

// NewWindow creates a window holding at most size points.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Window{
		size:   size,
		points: make([]domain.RevenuePoint, 0, size),
		subs:   make(map[int]chan domain.RevenuePoint),
	}
}

// Add appends p, evicting the oldest point when full, and notifies
// subscribers.
func (w *Window) Add(p domain.RevenuePoint) {
	w.mu.Lock()
	if len(w.points) == w.size {
		copy(w.points, w.points[1:])
		w.points = w.points[:w.size-1]
	}
	w.points = append(w.points, p)
	w.mu.Unlock()

	w.subsMu.Lock()
	for _, ch := range w.subs {
		select {
		case ch <- p:
		default:
			// Slow subscriber, drop the point.
		}
	}
	w.subsMu.Unlock()
}

// Snapshot returns a copy of the window, oldest first.
func (w *Window) Snapshot() []domain.RevenuePoint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]domain.RevenuePoint, len(w.points))
	copy(out, w.points)
	return out
}

// Len returns the number of points held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.points)
}

// Subscribe creates a channel receiving every point added from now on.
func (w *Window) Subscribe(bufSize int) (id int, ch <-chan domain.RevenuePoint) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	id = w.nextSubID
	w.nextSubID++
	c := make(chan domain.RevenuePoint, bufSize)
	w.subs[id] = c
	return id, c
}

// Unsubscribe removes a subscription and closes its channel.
func (w *Window) Unsubscribe(id int) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	if ch, ok := w.subs[id]; ok {
		close(ch)
		delete(w.subs, id)
	}
}
