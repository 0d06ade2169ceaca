package comment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/splax/technews/internal/domain"
)

// Lister loads an article's comments.
type Lister interface {
	ListCommentsByArticle(ctx context.Context, articleID string) ([]domain.Comment, error)
}

// Snapshot is the full, ordered comment list of one article at a point in time.
// Higher versions reflect queries issued later.
type Snapshot struct {
	ArticleID string           `json:"article_id"`
	Version   uint64           `json:"version"`
	Comments  []domain.Comment `json:"comments"`
	At        time.Time        `json:"at"`
}

// Feed fans out comment snapshots to per-article subscribers.
type Feed struct {
	lister  Lister
	logger  *slog.Logger
	version atomic.Uint64

	mu     sync.Mutex
	topics map[string]map[*Subscription]struct{}
	closed bool

	// OnReloadError is invoked when a change-triggered reload fails.
	OnReloadError func(articleID string, err error)
}

// ErrFeedClosed is returned by Subscribe after Close.
var ErrFeedClosed = errors.New("comment: feed closed")

// NewFeed constructs a Feed reading through lister.
func NewFeed(lister Lister, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{lister: lister, logger: logger, topics: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers fn for articleID and delivers the current comments as the
// first snapshot. The caller must Unsubscribe when done.
func (f *Feed) Subscribe(ctx context.Context, articleID string, fn func(Snapshot)) (*Subscription, error) {
	if fn == nil {
		return nil, errors.New("comment: nil subscriber")
	}
	sub := &Subscription{
		feed:      f,
		articleID: articleID,
		fn:        fn,
		mailbox:   make(chan Snapshot, 1),
		done:      make(chan struct{}),
	}
	// Register before loading so a change racing the initial query is not missed.
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFeedClosed
	}
	subs, ok := f.topics[articleID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		f.topics[articleID] = subs
	}
	subs[sub] = struct{}{}
	f.mu.Unlock()

	snap, err := f.load(ctx, articleID)
	if err != nil {
		f.remove(sub)
		return nil, err
	}
	go sub.run()
	sub.offer(snap)
	f.logger.Debug("comment feed subscribed", "article_id", articleID)
	return sub, nil
}

// Notify reloads articleID's comments and hands the snapshot to its subscribers.
// A failed reload leaves subscribers on their last snapshot.
func (f *Feed) Notify(ctx context.Context, articleID string) {
	subs := f.subscribers(articleID)
	if len(subs) == 0 {
		return
	}
	snap, err := f.load(ctx, articleID)
	if err != nil {
		f.logger.Warn("comment feed reload failed", "article_id", articleID, "error", err)
		if f.OnReloadError != nil {
			f.OnReloadError(articleID, err)
		}
		return
	}
	// Subscribers added during the load get the fresh snapshot too.
	for _, sub := range f.subscribers(articleID) {
		sub.offer(snap)
	}
}

// Subscribers counts live subscriptions across all articles.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, subs := range f.topics {
		n += len(subs)
	}
	return n
}

// Close ends every subscription and refuses new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	var all []*Subscription
	for _, subs := range f.topics {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	f.mu.Unlock()
	for _, sub := range all {
		sub.Unsubscribe()
	}
}

func (f *Feed) load(ctx context.Context, articleID string) (Snapshot, error) {
	version := f.version.Add(1)
	comments, err := f.lister.ListCommentsByArticle(ctx, articleID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		ArticleID: articleID,
		Version:   version,
		Comments:  newestFirst(articleID, comments),
		At:        time.Now().UTC(),
	}, nil
}

func (f *Feed) subscribers(articleID string) []*Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.topics[articleID]
	out := make([]*Subscription, 0, len(subs))
	for sub := range subs {
		out = append(out, sub)
	}
	return out
}

func (f *Feed) remove(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs, ok := f.topics[sub.articleID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(f.topics, sub.articleID)
	}
}

// newestFirst keeps only articleID's comments ordered by created_at then id, descending.
func newestFirst(articleID string, comments []domain.Comment) []domain.Comment {
	out := make([]domain.Comment, 0, len(comments))
	for _, c := range comments {
		if c.ArticleID == articleID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Subscription is the handle returned by Feed.Subscribe.
type Subscription struct {
	feed      *Feed
	articleID string
	fn        func(Snapshot)

	mu      sync.Mutex
	closed  bool
	mailbox chan Snapshot
	done    chan struct{}
	once    sync.Once

	// delivering is held for the closed check and the callback together.
	delivering sync.Mutex
	delivered  uint64
}

// ArticleID returns the article this subscription follows.
func (s *Subscription) ArticleID() string { return s.articleID }

// Unsubscribe detaches the handle. It is safe to call more than once. When it
// returns no callback is running and none will start, so it must not be
// called from inside the callback itself.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.done)
		s.mu.Unlock()
		// Wait out an in-flight callback.
		s.delivering.Lock()
		s.delivering.Unlock()
		s.feed.logger.Debug("comment feed unsubscribed", "article_id", s.articleID)
	})
}

// offer replaces any undelivered snapshot with snap unless the pending one is newer.
func (s *Subscription) offer(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case pending := <-s.mailbox:
		if pending.Version > snap.Version {
			snap = pending
		}
	default:
	}
	s.mailbox <- snap
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case snap := <-s.mailbox:
			if !s.deliver(snap) {
				return
			}
		}
	}
}

// deliver runs the callback for snap unless it is stale. It reports false
// once the subscription is closed.
func (s *Subscription) deliver(snap Snapshot) bool {
	s.delivering.Lock()
	defer s.delivering.Unlock()
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}
	if snap.Version <= s.delivered {
		return true
	}
	s.delivered = snap.Version
	s.fn(snap)
	return true
}
