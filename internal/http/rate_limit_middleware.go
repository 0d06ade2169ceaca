package httpx

import (
	"context"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/splax/technews/pkg/locale"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// rateKeyFunc names the bucket a request is charged to. An empty key
// charges the network peer instead.
type rateKeyFunc func(*http.Request) string

// ratePolicy is the limit attached to a single route pattern.
type ratePolicy struct {
	route  string
	limit  int
	window time.Duration
	key    rateKeyFunc
}

type memoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
	cancel  context.CancelFunc
}

type fixedWindow struct {
	hits    int
	resetAt time.Time
}

// take charges one hit against the window, opening a fresh window once
// the previous one has elapsed.
func (fw *fixedWindow) take(now time.Time, limit int, span time.Duration) rateDecision {
	if !now.Before(fw.resetAt) {
		fw.hits = 0
		fw.resetAt = now.Add(span)
	}
	if fw.hits >= limit {
		return rateDecision{allowed: false, count: fw.hits, windowEnd: fw.resetAt}
	}
	fw.hits++
	return rateDecision{allowed: true, count: fw.hits, windowEnd: fw.resetAt}
}

// NewMemoryRateLimiter returns a process-local limiter.
func NewMemoryRateLimiter() RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	rl := &memoryRateLimiter{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
		cancel:  cancel,
	}
	go rl.sweep(ctx, rateLimiterSweepInterval)
	return rl
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	fw, ok := rl.windows[key]
	if !ok {
		fw = &fixedWindow{}
		rl.windows[key] = fw
	}
	return fw.take(rl.now(), limit, window)
}

func (rl *memoryRateLimiter) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.dropExpired(rl.now())
		}
	}
}

func (rl *memoryRateLimiter) dropExpired(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, fw := range rl.windows {
		if !now.Before(fw.resetAt) {
			delete(rl.windows, key)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.cancel()
}

// limited enforces p in front of next. Requests over the limit get 429
// with the rate headers still set.
func (r *Router) limited(p ratePolicy, next http.HandlerFunc) http.HandlerFunc {
	if p.limit <= 0 || r.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, req *http.Request) {
		var key string
		if p.key != nil {
			key = p.key(req)
		}
		if key == "" {
			key = r.peerKey(req)
		}
		decision := r.limiter.Allow(key, p.limit, p.window)
		writeRateHeaders(w, p.limit, decision)
		if !decision.allowed {
			r.recordRateLimitHit(p.route, rateKeyKind(key))
			writeError(w, http.StatusTooManyRequests, locale.CodeRateLimited)
			return
		}
		next(w, req)
	}
}

// authLimited requires a session and charges the signed-in user.
func (r *Router) authLimited(p ratePolicy, next http.HandlerFunc) http.HandlerFunc {
	p.key = r.userKey
	return r.requireAuth(r.limited(p, next))
}

func (r *Router) userKey(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.UserID != "" {
		return "user:" + info.UserID
	}
	return ""
}

func (r *Router) peerKey(req *http.Request) string {
	addr, ok := r.proxies.resolve(req)
	if !ok {
		return "ip:unknown"
	}
	return "ip:" + addr.String()
}

// trustedProxies lists the networks whose X-Forwarded-For is believed.
type trustedProxies []netip.Prefix

// parseTrustedProxies accepts CIDR ranges and bare addresses. Entries that
// parse as neither are returned in rejected.
func parseTrustedProxies(entries []string) (trustedProxies, []string) {
	var (
		out      trustedProxies
		rejected []string
	)
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			addr = addr.Unmap()
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		rejected = append(rejected, entry)
	}
	return out, rejected
}

func (tp trustedProxies) contains(addr netip.Addr) bool {
	for _, prefix := range tp {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// resolve returns the address a request is attributed to. The socket peer
// wins unless it is a trusted proxy, in which case X-Forwarded-For is walked
// from the right and the first hop outside the trusted set is used.
func (tp trustedProxies) resolve(req *http.Request) (netip.Addr, bool) {
	peer, ok := socketAddr(req.RemoteAddr)
	if !ok {
		return netip.Addr{}, false
	}
	if !tp.contains(peer) {
		return peer, true
	}
	hops := strings.Split(strings.Join(req.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			break
		}
		addr = addr.Unmap()
		if !tp.contains(addr) {
			return addr, true
		}
		peer = addr
	}
	return peer, true
}

func socketAddr(remote string) (netip.Addr, bool) {
	remote = strings.TrimSpace(remote)
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

func writeRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

// rateKeyKind keeps metric cardinality bounded by labelling with the key
// prefix only.
func rateKeyKind(key string) string {
	kind, _, found := strings.Cut(key, ":")
	if !found || kind == "" {
		return "unknown"
	}
	return kind
}
