package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// parseTopics reads the optional ?topics=a,b filter. Nil means everything.
func parseTopics(r *http.Request) map[string]bool {
	q := r.URL.Query().Get("topics")
	if q == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, t := range strings.Split(q, ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[t] = true
		}
	}
	return filter
}

// SSEHandler returns an http.HandlerFunc that streams broker events as SSE.
// Clients may filter topics via ?topics=name1,name2 query parameter.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		filter := parseTopics(r)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if filter != nil && !filter[evt.Topic] {
					continue
				}
				data, err := json.Marshal(evt)
				if err != nil {
					slog.Debug("sse event marshal failed", "topic", evt.Topic, "error", err)
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Topic, data)
				flusher.Flush()
			}
		}
	}
}
