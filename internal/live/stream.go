package live

import (
	"context"

	"findash/internal/domain"
)

// Source fills a window until ctx is cancelled or the upstream ends.
// *Feed is the production Source.
type Source interface {
	Run(ctx context.Context, w *Window) error
}

// Stream opens src into a fresh window of the given size and calls send for
// every point that arrives. The source lives exactly as long as the call:
// it is started on entry and stopped on return. Stream returns nil when ctx
// ends or the source closes cleanly.
func Stream(ctx context.Context, src Source, size int, send func(domain.RevenuePoint) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := NewWindow(size)
	id, ch := w.Subscribe(w.size * 4)
	defer w.Unsubscribe(id)

	errc := make(chan error, 1)
	go func() { errc <- src.Run(ctx, w) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			for {
				select {
				case p := <-ch:
					if serr := send(p); serr != nil {
						return serr
					}
				default:
					return err
				}
			}
		case p := <-ch:
			if err := send(p); err != nil {
				return err
			}
		}
	}
}
