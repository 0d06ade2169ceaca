package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/splax/technews/internal/ws"
	apiclient "github.com/splax/technews/pkg/api/client"
)

const streamHeartbeat = 25 * time.Second

type commentsEvent struct {
	Version uint64 `json:"version"`
	Count   int    `json:"count"`
	HTML    string `json:"html"`
}

// handleArticleStream relays the API comment feed for one article to the
// page as rendered HTML fragments.
func (s *Server) handleArticleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	v := s.viewer(r)
	ctx := r.Context()

	updates := make(chan apiclient.Snapshot, 1)
	sub, err := s.api.SubscribeComments(ctx, id, func(snap apiclient.Snapshot) {
		// keep only the newest pending snapshot
		select {
		case <-updates:
		default:
		}
		updates <- snap
	})
	if err != nil {
		s.logger.Warn("comment stream subscribe failed", "article_id", id, "error", err)
		http.Error(w, "comment feed unavailable", http.StatusBadGateway)
		return
	}
	defer sub.Unsubscribe()

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, s.logger)
	defer client.Close()

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			if err := sub.Err(); err != nil {
				s.logger.Warn("comment stream ended", "article_id", id, "error", err)
			}
			return
		case snap := <-updates:
			payload, err := s.renderCommentsEvent(snap, v.Identity)
			if err != nil {
				s.logger.Error("comment fragment render failed", "article_id", id, "error", err)
				continue
			}
			if err := client.SendEvent("comments", payload); err != nil {
				return
			}
		case <-ticker.C:
			if time.Since(client.LastActivity()) < streamHeartbeat/2 {
				continue
			}
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (s *Server) renderCommentsEvent(snap apiclient.Snapshot, identity *apiclient.Identity) ([]byte, error) {
	var buf bytes.Buffer
	data := map[string]any{
		"Comments":  snap.Comments,
		"Viewer":    identity,
		"ArticleID": snap.ArticleID,
	}
	if err := s.templates.ExecuteTemplate(&buf, "comment_list", data); err != nil {
		return nil, err
	}
	return json.Marshal(commentsEvent{Version: snap.Version, Count: len(snap.Comments), HTML: buf.String()})
}
