package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Snapshot is the full comment list of one article.
type Snapshot struct {
	ArticleID string    `json:"article_id"`
	Version   uint64    `json:"version"`
	Comments  []Comment `json:"comments"`
	At        time.Time `json:"at"`
}

type feedFrame struct {
	Type     string    `json:"type"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Error    string    `json:"error,omitempty"`
	Code     string    `json:"code,omitempty"`
}

// CommentSubscription is a live comment feed for one article.
type CommentSubscription struct {
	articleID string
	conn      *websocket.Conn
	fn        func(Snapshot)
	closed    atomic.Bool
	once      sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error

	// delivering spans the closed check and the callback.
	delivering sync.Mutex
}

func (c *Client) streamURL(articleID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/comments"
	u.RawQuery = url.Values{"article_id": {articleID}}.Encode()
	return u.String(), nil
}

// SubscribeComments opens a live feed for articleID. fn receives the initial
// comment list first and every later snapshot after it. Call Unsubscribe when done.
func (c *Client) SubscribeComments(ctx context.Context, articleID string, fn func(Snapshot)) (*CommentSubscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("nil snapshot callback")
	}
	if strings.TrimSpace(articleID) == "" {
		return nil, fmt.Errorf("article id is required")
	}
	endpoint, err := c.streamURL(articleID)
	if err != nil {
		return nil, fmt.Errorf("build stream url: %w", err)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, extractError(resp.StatusCode, resp.Body)
		}
		return nil, fmt.Errorf("open comment stream: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	var first feedFrame
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read initial snapshot: %w", err)
	}
	if first.Type != "snapshot" || first.Snapshot == nil {
		conn.Close()
		return nil, APIError{Status: http.StatusBadGateway, Code: first.Code, Message: first.Error}
	}
	_ = conn.SetReadDeadline(time.Time{})

	sub := &CommentSubscription{articleID: articleID, conn: conn, fn: fn, done: make(chan struct{})}
	go sub.run(*first.Snapshot)
	return sub, nil
}

func (s *CommentSubscription) run(first Snapshot) {
	defer close(s.done)
	var last uint64
	deliver := func(snap Snapshot) {
		s.delivering.Lock()
		defer s.delivering.Unlock()
		if s.closed.Load() || snap.Version <= last {
			return
		}
		last = snap.Version
		s.fn(snap)
	}
	deliver(first)
	for {
		var frame feedFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !s.closed.Load() {
				s.setErr(err)
			}
			return
		}
		if frame.Type == "snapshot" && frame.Snapshot != nil {
			deliver(*frame.Snapshot)
		}
	}
}

func (s *CommentSubscription) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.err = err
}

// ArticleID returns the followed article.
func (s *CommentSubscription) ArticleID() string { return s.articleID }

// Done is closed when the stream ends.
func (s *CommentSubscription) Done() <-chan struct{} { return s.done }

// Err reports why the stream ended, or nil after Unsubscribe.
func (s *CommentSubscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Unsubscribe closes the stream and is idempotent. Once it returns no callback
// is running or will start; do not call it from inside the callback.
func (s *CommentSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = s.conn.Close()
		s.delivering.Lock()
		s.delivering.Unlock()
	})
}

// CommentWatcher keeps one live feed open and re-subscribes when the article changes.
type CommentWatcher struct {
	client *Client
	fn     func(Snapshot)

	mu      sync.Mutex
	current *CommentSubscription
}

// NewCommentWatcher returns an idle watcher delivering snapshots to fn.
func (c *Client) NewCommentWatcher(fn func(Snapshot)) *CommentWatcher {
	return &CommentWatcher{client: c, fn: fn}
}

// Watch follows articleID, closing the previous feed first. An empty id stops watching.
func (w *CommentWatcher) Watch(ctx context.Context, articleID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil && w.current.ArticleID() == articleID {
		return nil
	}
	if w.current != nil {
		w.current.Unsubscribe()
		w.current = nil
	}
	if articleID == "" {
		return nil
	}
	sub, err := w.client.SubscribeComments(ctx, articleID, w.fn)
	if err != nil {
		return err
	}
	w.current = sub
	return nil
}

// Current returns the live subscription, or nil.
func (w *CommentWatcher) Current() *CommentSubscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Close ends the current feed.
func (w *CommentWatcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		w.current.Unsubscribe()
		w.current = nil
	}
}
