package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CommentChannel is the NOTIFY channel the comments trigger publishes article ids on.
const CommentChannel = "comment_changes"

const listenerRetryDelay = 2 * time.Second

// NotifyFunc receives the payload of each notification.
type NotifyFunc func(ctx context.Context, payload string)

// Listener holds one pooled connection in LISTEN mode and forwards notifications.
type Listener struct {
	pool    *pgxpool.Pool
	channel string
	notify  NotifyFunc
	log     *slog.Logger
	retry   time.Duration
}

// NewListener constructs a Listener for channel.
func NewListener(pool *pgxpool.Pool, channel string, notify NotifyFunc, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	if channel == "" {
		channel = CommentChannel
	}
	return &Listener{pool: pool, channel: channel, notify: notify, log: log, retry: listenerRetryDelay}
}

// Run blocks until ctx is cancelled, re-acquiring the connection after failures.
func (l *Listener) Run(ctx context.Context) error {
	if l.pool == nil || l.notify == nil {
		return errors.New("listener requires pool and notify func")
	}
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("comment listener interrupted", "channel", l.channel, "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retry):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	// LISTEN state is per session; hand back a clean connection.
	defer func() {
		conn.Conn().Close(context.Background())
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.log.Info("listening for comment changes", "channel", l.channel)
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.notify(ctx, n.Payload)
	}
}
