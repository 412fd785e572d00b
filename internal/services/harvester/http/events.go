package harvesterhttp

import (
	"net/http"

	phttp "weibo-harvester/internal/platform/net/http"
	"weibo-harvester/internal/services/harvester/events"
)

// MountEvents exposes the event broker as a Server-Sent-Events stream at /events.
// Each connection gets its own subscription, torn down on disconnect.
func MountEvents(r phttp.Router, b *events.Broker) {
	r.Get("/events", streamEvents(b))
}

func streamEvents(b *events.Broker) phttp.Handler {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ch, unsubscribe := b.Subscribe(32)
		defer unsubscribe()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				frame, err := events.MarshalSSE(env)
				if err != nil {
					continue
				}
				if _, err := w.Write(frame); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
