package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// FeedSource yields serialized change events for live dashboards.
type FeedSource interface {
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

const feedHeartbeat = 15 * time.Second

// feedHandler streams change events as server-sent events. Events are hints
// to re-query; clients must tolerate gaps.
func feedHandler(src FeedSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			writeError(w, http.StatusServiceUnavailable, "feed_unavailable", "live feed is not configured")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
			return
		}

		events, err := src.Subscribe(r.Context())
		if err != nil {
			log.Printf("feed subscribe error request_id=%s: %v", GetRequestID(r.Context()), err)
			writeError(w, http.StatusServiceUnavailable, "feed_unavailable", "could not subscribe to live feed")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(feedHeartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case data, ok := <-events:
				if !ok {
					return
				}
				fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}
