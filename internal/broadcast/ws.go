package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WSHandler upgrades the request to a WebSocket and pushes broker events as
// JSON text frames. The same ?topics= filter as SSEHandler applies.
func WSHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := parseTopics(r)

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("ws upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Drain client frames so close and ping are handled; any read error
		// ends the stream.
		go func() {
			defer cancel()
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-ctx.Done():
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
					continue
				}
				if err := wsutil.WriteServerText(conn, data); err != nil {
					slog.Debug("ws write failed", "subscriber", id, "error", err)
					return
				}
			}
		}
	}
}

// Follow dials a companion's WebSocket event stream and calls fn for every
// event until ctx is cancelled or the connection drops.
func Follow(ctx context.Context, wsURL string, fn func(Event)) error {
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("broadcast follow: dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("broadcast follow: read: %w", err)
		}
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Debug("broadcast follow: bad frame", "error", err)
			continue
		}
		fn(evt)
	}
}
