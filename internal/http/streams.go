package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/splax/technews/internal/service/comment"
	"github.com/splax/technews/internal/ws"
	"github.com/splax/technews/pkg/locale"
)

const (
	streamReadLimit = 4096
	pongWait        = 60 * time.Second
)

// FeedMessage is one frame of the live comment stream.
type FeedMessage struct {
	Type     string            `json:"type"`
	Snapshot *comment.Snapshot `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
	Code     string            `json:"code,omitempty"`
}

// Feed message types.
const (
	FeedMessageSnapshot = "snapshot"
	FeedMessageError    = "error"
)

// feedRequest is what a websocket client sends to switch articles.
type feedRequest struct {
	ArticleID string `json:"article_id"`
}

func feedError(code string) FeedMessage {
	return FeedMessage{Type: FeedMessageError, Error: locale.Message(code), Code: code}
}

func validArticleID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *Router) handleCommentsWS(w http.ResponseWriter, req *http.Request) {
	if r.feed == nil {
		writeError(w, http.StatusServiceUnavailable, locale.CodeGeneric)
		return
	}
	articleID := strings.TrimSpace(req.URL.Query().Get("article_id"))
	if articleID != "" && !validArticleID(articleID) {
		writeError(w, http.StatusNotFound, locale.CodeNotFound)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer r.trackStream("websocket")()

	client := ws.NewClient(conn, r.logger)
	watcher := comment.NewWatcher(r.feed, func(s comment.Snapshot) {
		_ = client.SendJSON(FeedMessage{Type: FeedMessageSnapshot, Snapshot: &s})
	})
	defer client.Close()
	defer watcher.Close()

	ctx := req.Context()
	watch := func(id string) {
		if id != "" && !validArticleID(id) {
			_ = client.SendJSON(feedError(locale.CodeNotFound))
			return
		}
		if err := watcher.Watch(ctx, id); err != nil {
			r.logger.Warn("comment feed subscribe failed", "article_id", id, "error", err)
			_ = client.SendJSON(feedError(locale.CodeGeneric))
		}
	}
	watch(articleID)

	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg feedRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug("comment websocket closed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		watch(strings.TrimSpace(msg.ArticleID))
	}
}

func (r *Router) handleCommentsSSE(w http.ResponseWriter, req *http.Request) {
	if r.feed == nil {
		writeError(w, http.StatusServiceUnavailable, locale.CodeGeneric)
		return
	}
	articleID := strings.TrimSpace(req.URL.Query().Get("article_id"))
	if !validArticleID(articleID) {
		writeError(w, http.StatusNotFound, locale.CodeNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, locale.CodeGeneric)
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	defer r.trackStream("sse")()

	client := ws.NewSSEClient(w, flusher, r.logger)
	ctx := req.Context()
	sub, err := r.feed.Subscribe(ctx, articleID, func(s comment.Snapshot) {
		payload, err := json.Marshal(FeedMessage{Type: FeedMessageSnapshot, Snapshot: &s})
		if err != nil {
			return
		}
		_ = client.SendEvent(FeedMessageSnapshot, payload)
	})
	if err != nil {
		r.logger.Warn("comment feed subscribe failed", "article_id", articleID, "error", err)
		payload, _ := json.Marshal(feedError(locale.CodeGeneric))
		_ = client.SendEvent(FeedMessageError, payload)
		return
	}
	// Close the writer first so an in-flight callback cannot touch w after return.
	defer sub.Unsubscribe()
	defer client.Close()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(client.LastActivity()) < r.heartbeat/2 {
				continue
			}
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
