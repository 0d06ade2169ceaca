package comment

import (
	"context"
	"sync"
)

// Watcher follows the comments of one article at a time.
type Watcher struct {
	feed *Feed
	fn   func(Snapshot)

	mu      sync.Mutex
	current *Subscription
}

// NewWatcher returns an idle Watcher delivering snapshots to fn.
func NewWatcher(feed *Feed, fn func(Snapshot)) *Watcher {
	return &Watcher{feed: feed, fn: fn}
}

// Watch switches to articleID. The previous subscription is released before the
// new one is opened; watching the current article again is a no-op and an empty
// id just stops watching.
func (w *Watcher) Watch(ctx context.Context, articleID string) error {
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
	sub, err := w.feed.Subscribe(ctx, articleID, w.fn)
	if err != nil {
		return err
	}
	w.current = sub
	return nil
}

// ArticleID returns the article being watched, or "".
func (w *Watcher) ArticleID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return ""
	}
	return w.current.ArticleID()
}

// Close releases the current subscription.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		w.current.Unsubscribe()
		w.current = nil
	}
}
