package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/splax/technews/internal/app/migrate"
	httpx "github.com/splax/technews/internal/http"
	"github.com/splax/technews/internal/repository/postgres"
	"github.com/splax/technews/internal/service/article"
	"github.com/splax/technews/internal/service/auth"
	"github.com/splax/technews/internal/service/comment"
	"github.com/splax/technews/internal/storage"
	"github.com/splax/technews/pkg/config"
	"github.com/splax/technews/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	var (
		limiter     = httpx.NewMemoryRateLimiter()
		revocations auth.Revocations
	)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable, using in-memory rate limits and revocations", "addr", addr, "error", err)
			_ = rdb.Close()
		} else {
			defer rdb.Close()
			limiter.Close()
			limiter = httpx.NewRedisRateLimiter(rdb, log)
			revocations = auth.NewRedisRevocations(rdb)
			log.Info("redis connected", "addr", addr)
		}
	}

	blobs, uploads, err := openBlobStore(ctx, cfg)
	if err != nil {
		log.Error("failed to configure blob storage", "backend", cfg.BlobBackend, "error", err)
		os.Exit(1)
	}

	feed := comment.NewFeed(repo, log)
	defer feed.Close()

	var notifier comment.Notifier = feed
	if cfg.CommentFeedListen {
		// The comments trigger drives the feed, so writes from any instance reach local subscribers.
		notifier = comment.NopNotifier{}
		listener := postgres.NewListener(pool, postgres.CommentChannel, feed.Notify, log)
		go func() {
			if err := listener.Run(ctx); err != nil {
				log.Error("comment listener stopped", "error", err)
			}
		}()
	}

	authSvc := auth.New(repo, revocations, log, cfg)
	articleSvc := article.New(repo, blobs, log, cfg.MaxImageBytes)
	commentSvc := comment.New(repo, repo, notifier, log)

	router := httpx.NewRouter(log, httpx.Dependencies{
		Auth:           authSvc,
		Articles:       articleSvc,
		Comments:       commentSvc,
		Feed:           feed,
		Limiter:        limiter,
		Uploads:        uploads,
		DBHealth:       pool.Ping,
		MaxImageBytes:  cfg.MaxImageBytes,
		Heartbeat:      cfg.FeedHeartbeat,
		TrustedProxies: cfg.TrustedProxies,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "blob_backend", cfg.BlobBackend, "feed_listen", cfg.CommentFeedListen)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		feed.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// openBlobStore returns the configured store and, for the local backend, the
// handler that serves its files.
func openBlobStore(ctx context.Context, cfg config.APIConfig) (storage.Store, http.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.BlobBackend)) {
	case "s3":
		store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.S3PublicURL,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "", "local":
		store, err := storage.NewLocalStore(cfg.UploadDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, http.FileServer(http.Dir(store.Root())), nil
	default:
		return nil, nil, errors.New("unknown blob backend " + cfg.BlobBackend)
	}
}
