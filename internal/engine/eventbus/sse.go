package eventbus

import (
	"context"
	"fmt"
	"io"
	"time"
)

// StreamSSE writes sub's events to w as Server-Sent Events frames until the
// subscriber closes, the request context is cancelled, or a write fails.
// Callers are expected to set the SSE response headers before calling this
// (Content-Type: text/event-stream, Cache-Control: no-cache, Connection:
// keep-alive, X-Accel-Buffering: no) since header mutation after the first
// write is a framework-specific operation this package stays agnostic to.
func StreamSSE(ctx context.Context, w io.Writer, flush func(), bus *Bus, sub *Subscriber) error {
	ticker := time.NewTicker(bus.KeepAliveInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bus.Unsubscribe(sub)
			return ctx.Err()

		case <-sub.Closed():
			return nil

		case frame, ok := <-sub.Send():
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame); err != nil {
				bus.Unsubscribe(sub)
				return err
			}
			if flush != nil {
				flush()
			}

		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				bus.Unsubscribe(sub)
				return err
			}
			if flush != nil {
				flush()
			}
		}
	}
}
