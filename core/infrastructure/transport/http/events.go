package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/geoflow/geoflow/core/application/driver"
	"github.com/geoflow/geoflow/core/infrastructure/logging"
)

// keepAliveInterval is how often an idle event stream sends a comment line
const keepAliveInterval = 15 * time.Second

// EventSource yields driver state changes
type EventSource interface {
	Subscribe() (<-chan driver.Event, func())
}

// handleEvents streams driver events as server-sent events until either side
// goes away or the subscription closes.
func handleEvents(source EventSource, shutdownCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.New("events")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		events, unsubscribe := source.Subscribe()
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		log.Debugf("Event stream opened for %s", r.RemoteAddr)
		defer log.Debugf("Event stream closed for %s", r.RemoteAddr)

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					log.Warnf("Failed to encode %s event: %v", ev.Type, err)
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
					return
				}
				flusher.Flush()
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			case <-shutdownCtx.Done():
				return
			}
		}
	}
}
