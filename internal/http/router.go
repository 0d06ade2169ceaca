package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/technews/internal/service/article"
	"github.com/splax/technews/internal/service/auth"
	"github.com/splax/technews/internal/service/comment"
	"github.com/splax/technews/pkg/locale"
)

// Dependencies are the services and infrastructure the router serves.
type Dependencies struct {
	Auth     auth.Service
	Articles article.Service
	Comments comment.Service
	Feed     *comment.Feed
	Limiter  RateLimiter
	// Uploads serves locally stored blobs under /uploads/; nil disables the route.
	Uploads       http.Handler
	DBHealth      func(context.Context) error
	MaxImageBytes int64
	Heartbeat     time.Duration
	// TrustedProxies are CIDRs or addresses allowed to set X-Forwarded-For.
	TrustedProxies []string
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux           *http.ServeMux
	logger        *slog.Logger
	auth          auth.Service
	articles      article.Service
	comments      comment.Service
	feed          *comment.Feed
	upgrader      websocket.Upgrader
	limiter       RateLimiter
	uploads       http.Handler
	dbHealth      func(context.Context) error
	maxImageBytes int64
	heartbeat     time.Duration
	proxies       trustedProxies

	registry         *prometheus.Registry
	requestTotal     *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
	rateLimitHits    *prometheus.CounterVec
	feedStreams      *prometheus.GaugeVec
	feedReloadErrors prometheus.Counter
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitComment   = 30
	rateLimitStream    = 30
	healthCheckTimeout = 2 * time.Second
	defaultHeartbeat   = 25 * time.Second
	maxListLimit       = 100
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, deps Dependencies) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     deps.Auth,
		articles: deps.Articles,
		comments: deps.Comments,
		feed:     deps.Feed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:       deps.Limiter,
		uploads:       deps.Uploads,
		dbHealth:      deps.DBHealth,
		maxImageBytes: deps.MaxImageBytes,
		heartbeat:     deps.Heartbeat,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	proxies, rejected := parseTrustedProxies(deps.TrustedProxies)
	if len(rejected) > 0 {
		logger.Warn("ignoring invalid trusted proxies", "entries", rejected)
	}
	r.proxies = proxies
	if r.maxImageBytes <= 0 {
		r.maxImageBytes = article.DefaultMaxImageBytes
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeat
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("GET /healthz", r.audit(r.handleHealthz))
	r.mux.Handle("GET /metrics", r.metricsHandler())

	r.mux.HandleFunc("POST /auth/signup", r.audit(r.limited(ratePolicy{route: "/auth/signup", limit: rateLimitSignup, window: rateWindowDefault}, r.handleSignup)))
	r.mux.HandleFunc("POST /auth/login", r.audit(r.limited(ratePolicy{route: "/auth/login", limit: rateLimitLogin, window: rateWindowDefault}, r.handleLogin)))
	r.mux.HandleFunc("POST /auth/logout", r.audit(r.requireAuth(r.handleLogout)))
	r.mux.HandleFunc("GET /auth/me", r.audit(r.requireAuth(r.handleMe)))

	r.mux.HandleFunc("GET /articles", r.audit(r.handleListArticles))
	r.mux.HandleFunc("POST /articles", r.audit(r.authLimited(ratePolicy{route: "/articles", limit: rateLimitUserWrite, window: rateWindowDefault}, r.handleCreateArticle)))
	r.mux.HandleFunc("GET /articles/{id}", r.audit(r.handleGetArticle))
	r.mux.HandleFunc("POST /articles/{id}/like", r.audit(r.authLimited(ratePolicy{route: "/articles/{id}/like", limit: rateLimitUserWrite, window: rateWindowDefault}, r.handleToggleLike)))
	r.mux.HandleFunc("GET /articles/{id}/comments", r.audit(r.handleListComments))
	r.mux.HandleFunc("POST /articles/{id}/comments", r.audit(r.optionalAuth(r.limited(ratePolicy{route: "/articles/{id}/comments", limit: rateLimitComment, window: rateWindowDefault, key: r.userKey}, r.handleSubmitComment))))
	r.mux.HandleFunc("DELETE /comments/{id}", r.audit(r.authLimited(ratePolicy{route: "/comments/{id}", limit: rateLimitUserWrite, window: rateWindowDefault}, r.handleDeleteComment)))

	r.mux.HandleFunc("GET /ws/comments", r.audit(r.limited(ratePolicy{route: "/ws/comments", limit: rateLimitStream, window: rateWindowRealtime}, r.handleCommentsWS)))
	r.mux.HandleFunc("GET /sse/comments", r.audit(r.limited(ratePolicy{route: "/sse/comments", limit: rateLimitStream, window: rateWindowRealtime}, r.handleCommentsSSE)))

	if r.uploads != nil {
		r.mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", r.uploads))
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	if r.feed != nil {
		components["comment_feed"] = map[string]any{"subscriptions": r.feed.Subscribers()}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		route := req.Pattern
		if route == "" {
			route = req.URL.Path
		}
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
			if info.Role != "" {
				fields = append(fields, "role", info.Role)
			}
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		// Hijacked connections never report a status; record the upgrade.
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// clientIP reports the caller as the request claims it for access logs.
// It trusts X-Forwarded-For blindly and must not feed rate limiting.
func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) badRequest(w http.ResponseWriter) {
	writeError(w, http.StatusBadRequest, locale.CodeBadRequest)
}
