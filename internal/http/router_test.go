package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/splax/technews/internal/domain"
	"github.com/splax/technews/internal/repository"
	"github.com/splax/technews/internal/service/article"
	"github.com/splax/technews/internal/service/auth"
	"github.com/splax/technews/internal/service/comment"
	"github.com/splax/technews/pkg/config"
	"github.com/splax/technews/pkg/locale"
)

func TestSignupPasswordMismatchIsLocalized(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodPost, "/auth/signup", "", jsonBody(map[string]string{
		"display_name": "Ali", "email": "ali@example.com", "password": "secret1", "confirm_password": "secret2",
	}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body.Code != locale.CodePasswordMismatch || body.Error != locale.Message(locale.CodePasswordMismatch) {
		t.Fatalf("unexpected error body %+v", body)
	}
	if env.repo.userCount() != 0 {
		t.Fatalf("validation failure must not create a user")
	}
}

func TestSignupMeLogoutFlow(t *testing.T) {
	env := newTestEnv(t)
	token, identity := env.signup("Sara", "sara@example.com")

	rr := env.do(http.MethodGet, "/auth/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /auth/me, got %d", rr.Code)
	}
	var me domain.Identity
	if err := json.NewDecoder(rr.Body).Decode(&me); err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	if me.ID != identity.ID || me.Email != "sara@example.com" {
		t.Fatalf("unexpected identity %+v", me)
	}

	if rr := env.do(http.MethodPost, "/auth/logout", token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from logout, got %d", rr.Code)
	}
	rr = env.do(http.MethodGet, "/auth/me", token, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", rr.Code)
	}
}

func TestDuplicateSignupReturnsProviderCode(t *testing.T) {
	env := newTestEnv(t)
	env.signup("Sara", "sara@example.com")
	rr := env.do(http.MethodPost, "/auth/signup", "", jsonBody(map[string]string{
		"display_name": "Sara", "email": "sara@example.com", "password": "secret1", "confirm_password": "secret1",
	}))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Code != locale.CodeEmailInUse {
		t.Fatalf("unexpected code %q", body.Code)
	}
}

func TestAnonymousCommentRejectedWithoutWrite(t *testing.T) {
	env := newTestEnv(t)
	token, identity := env.signup("Sara", "sara@example.com")
	articleID := env.createArticle(token, identity)

	rr := env.do(http.MethodPost, "/articles/"+articleID+"/comments", "", jsonBody(map[string]string{"content": "سلام"}))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Code != locale.CodeCommentUnauth {
		t.Fatalf("unexpected code %q", body.Code)
	}
	if env.repo.commentCount() != 0 {
		t.Fatalf("expected no comment written")
	}
}

func TestBlankCommentRejected(t *testing.T) {
	env := newTestEnv(t)
	token, identity := env.signup("Sara", "sara@example.com")
	articleID := env.createArticle(token, identity)

	rr := env.do(http.MethodPost, "/articles/"+articleID+"/comments", token, jsonBody(map[string]string{"content": "   "}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Code != locale.CodeCommentEmpty {
		t.Fatalf("unexpected code %q", body.Code)
	}
	if env.repo.commentCount() != 0 {
		t.Fatalf("expected no comment written")
	}
}

func TestDeleteCommentAuthorOnly(t *testing.T) {
	env := newTestEnv(t)
	authorToken, author := env.signup("Sara", "sara@example.com")
	otherToken, _ := env.signup("Reza", "reza@example.com")
	articleID := env.createArticle(authorToken, author)

	rr := env.do(http.MethodPost, "/articles/"+articleID+"/comments", authorToken, jsonBody(map[string]string{"content": "نظر من"}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created domain.Comment
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode comment: %v", err)
	}
	if created.AuthorID != author.ID || created.AuthorName != "Sara" {
		t.Fatalf("unexpected comment %+v", created)
	}

	rr = env.do(http.MethodDelete, "/comments/"+created.ID, otherToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author, got %d", rr.Code)
	}
	if env.repo.commentCount() != 1 {
		t.Fatalf("comment must survive a non-author delete")
	}
	if rr := env.do(http.MethodDelete, "/comments/"+created.ID, authorToken, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for author, got %d", rr.Code)
	}
	if rr := env.do(http.MethodDelete, "/comments/"+created.ID, authorToken, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted comment, got %d", rr.Code)
	}
}

func TestCreateArticleRejectsOversizedImageBeforeUpload(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("Sara", "sara@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "عنوان")
	_ = mw.WriteField("content", "متن")
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="image"; filename="big.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(bytes.Repeat([]byte{0}, 2048)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/articles", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeError(t, rr); body.Code != locale.CodeImageTooLarge {
		t.Fatalf("unexpected code %q", body.Code)
	}
	if env.blobs.count() != 0 {
		t.Fatalf("oversized image must not be uploaded")
	}
}

func TestCreateArticleMultipartWithImage(t *testing.T) {
	env := newTestEnv(t)
	token, identity := env.signup("Sara", "sara@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "عنوان")
	_ = mw.WriteField("content", "متن")
	_ = mw.WriteField("category", "security")
	part, err := mw.CreateFormFile("image", "cover.png")
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	// PNG signature lets the content type be sniffed.
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n0000"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/articles", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created domain.Article
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(created.ImageURL, "https://blobs.test/articles/") || created.AuthorID != identity.ID {
		t.Fatalf("unexpected article %+v", created)
	}
	if env.blobs.count() != 1 {
		t.Fatalf("expected one upload")
	}
}

func TestCreateArticleJSONWithoutImage(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("Sara", "sara@example.com")
	rr := env.do(http.MethodPost, "/articles", token, jsonBody(map[string]string{"title": "t", "content": "c"}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var created domain.Article
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ImageURL != "" || created.Category != domain.DefaultCategory {
		t.Fatalf("unexpected article %+v", created)
	}
	if env.blobs.count() != 0 {
		t.Fatalf("no image means no upload")
	}

	if rr := env.do(http.MethodPost, "/articles", "", jsonBody(map[string]string{"title": "t", "content": "c"})); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous publish, got %d", rr.Code)
	}
}

func TestGetArticleNotFound(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"nope", uuid.NewString()} {
		rr := env.do(http.MethodGet, "/articles/"+id, "", nil)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("id %q: expected 404, got %d", id, rr.Code)
		}
		if body := decodeError(t, rr); body.Code != locale.CodeNotFound {
			t.Fatalf("unexpected code %q", body.Code)
		}
	}
}

func TestToggleLikeAndListByCategory(t *testing.T) {
	env := newTestEnv(t)
	token, identity := env.signup("Sara", "sara@example.com")
	articleID := env.createArticle(token, identity)

	rr := env.do(http.MethodPost, "/articles/"+articleID+"/like", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var liked domain.Article
	_ = json.NewDecoder(rr.Body).Decode(&liked)
	if !liked.LikedBy(identity.ID) {
		t.Fatalf("expected like recorded")
	}

	rr = env.do(http.MethodGet, "/articles?category=programming", "", nil)
	var list struct {
		Articles []domain.Article `json:"articles"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Articles) != 1 || list.Articles[0].ID != articleID {
		t.Fatalf("unexpected list %+v", list.Articles)
	}
	if rr := env.do(http.MethodGet, "/articles?category=sports", "", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown category, got %d", rr.Code)
	}
}

func TestRateLimitedSignup(t *testing.T) {
	limiter := newRateLimiterStub()
	reset := time.Unix(1_950_000_000, 0)
	limiter.allowFn = func(string, int, time.Duration) rateDecision {
		return rateDecision{allowed: false, count: 5, windowEnd: reset}
	}
	env := newTestEnvWithLimiter(t, limiter)

	rr := env.do(http.MethodPost, "/auth/signup", "", jsonBody(map[string]string{}))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != "1950000000" {
		t.Fatalf("unexpected reset header %q", got)
	}
	if body := decodeError(t, rr); body.Code != locale.CodeRateLimited {
		t.Fatalf("unexpected code %q", body.Code)
	}
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.calls) != 1 || !strings.HasPrefix(limiter.calls[0].key, "ip:") || limiter.calls[0].limit != rateLimitSignup {
		t.Fatalf("unexpected limiter calls %+v", limiter.calls)
	}
}

func TestSignupLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnvWithLimiter(t, NewMemoryRateLimiter())

	statuses := map[int]int{}
	for i := 0; i < rateLimitSignup+5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/signup", jsonBody(map[string]string{}))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		statuses[rr.Code]++
	}
	if statuses[http.StatusTooManyRequests] != 5 || statuses[http.StatusBadRequest] != rateLimitSignup {
		t.Fatalf("rotating X-Forwarded-For must not reset the bucket, got %v", statuses)
	}
}

func TestSignupLimitHonoursTrustedProxy(t *testing.T) {
	env := newTestEnvBehindProxies(t, NewMemoryRateLimiter(), []string{"192.0.2.0/24"})

	for i := 0; i < rateLimitSignup+2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/signup", jsonBody(map[string]string{}))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			t.Fatalf("distinct clients behind a trusted proxy share a bucket at request %d", i)
		}
	}

	var last int
	for i := 0; i < rateLimitSignup+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/signup", jsonBody(map[string]string{}))
		req.Header.Set("Content-Type", "application/json")
		// The leftmost hop is client controlled; only the hop the proxy appended counts.
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.9.9.%d, 198.51.100.7", i+1))
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once 198.51.100.7 exhausts its bucket, got %d", last)
	}
}

func TestTrustedProxiesResolve(t *testing.T) {
	proxies, rejected := parseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1", "not-an-ip", " "})
	if len(proxies) != 2 || len(rejected) != 1 || rejected[0] != "not-an-ip" {
		t.Fatalf("unexpected parse result %v %v", proxies, rejected)
	}
	cases := []struct {
		name   string
		remote string
		xff    []string
		want   string
	}{
		{name: "untrusted peer ignores header", remote: "198.51.100.1:5000", xff: []string{"1.2.3.4"}, want: "198.51.100.1"},
		{name: "trusted peer uses forwarded hop", remote: "192.0.2.1:5000", xff: []string{"1.2.3.4"}, want: "1.2.3.4"},
		{name: "skips trusted hops from the right", remote: "192.0.2.1:5000", xff: []string{"6.6.6.6, 1.2.3.4, 10.1.1.1"}, want: "1.2.3.4"},
		{name: "joins repeated headers", remote: "192.0.2.1:5000", xff: []string{"6.6.6.6", "1.2.3.4"}, want: "1.2.3.4"},
		{name: "stops at malformed hop", remote: "192.0.2.1:5000", xff: []string{"1.2.3.4, garbage, 10.0.0.5"}, want: "10.0.0.5"},
		{name: "all hops trusted", remote: "192.0.2.1:5000", xff: []string{"10.0.0.5"}, want: "10.0.0.5"},
		{name: "ipv6 peer", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			addr, ok := proxies.resolve(req)
			if !ok || addr.String() != tc.want {
				t.Fatalf("resolve = %v %v, want %s", addr, ok, tc.want)
			}
		})
	}
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := &memoryRateLimiter{windows: map[string]*fixedWindow{}, now: func() time.Time { return now }, cancel: func() {}}

	for i := 1; i <= 2; i++ {
		if d := rl.Allow("ip:a", 2, time.Minute); !d.allowed || d.count != i {
			t.Fatalf("hit %d: unexpected decision %+v", i, d)
		}
	}
	if d := rl.Allow("ip:a", 2, time.Minute); d.allowed {
		t.Fatalf("third hit must be rejected")
	}
	if d := rl.Allow("ip:b", 2, time.Minute); !d.allowed {
		t.Fatalf("separate keys must not share a window")
	}
	now = now.Add(time.Minute)
	if d := rl.Allow("ip:a", 2, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("expected fresh window, got %+v", d)
	}
	now = now.Add(2 * time.Minute)
	rl.dropExpired(now)
	if len(rl.windows) != 0 {
		t.Fatalf("expected expired windows dropped, have %d", len(rl.windows))
	}
}

func TestAuthStoreOutageIsServerError(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("Sara", "sara@example.com")

	env.repo.mu.Lock()
	env.repo.userLookupErr = errors.New("connection refused")
	env.repo.mu.Unlock()

	rr := env.do(http.MethodGet, "/auth/me", token, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 during a store outage, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Code != locale.CodeGeneric {
		t.Fatalf("unexpected code %q", body.Code)
	}

	env.repo.mu.Lock()
	env.repo.userLookupErr = nil
	delete(env.repo.users, firstUserID(env.repo))
	env.repo.mu.Unlock()

	rr = env.do(http.MethodGet, "/auth/me", token, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a deleted user, got %d", rr.Code)
	}
	if rr = env.do(http.MethodGet, "/auth/me", "not-a-jwt", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a malformed token, got %d", rr.Code)
	}
}

func firstUserID(m *memRepo) string {
	for id := range m.users {
		return id
	}
	return ""
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.router.dbHealth = func(context.Context) error { return errors.New("db down") }
	rr := env.do(http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	rr = env.do(http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"technews_api_http_requests_total", "technews_feed_subscriptions"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}

func TestCommentsSSEStreamsSnapshots(t *testing.T) {
	env := newTestEnv(t)
	token, identity := env.signup("Sara", "sara@example.com")
	articleID := env.createArticle(token, identity)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/comments?article_id="+articleID, nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	events := readSSE(resp.Body)

	first := nextEvent(t, events)
	if first.Type != FeedMessageSnapshot || first.Snapshot == nil || len(first.Snapshot.Comments) != 0 {
		t.Fatalf("unexpected initial frame %+v", first)
	}

	if rr := env.do(http.MethodPost, "/articles/"+articleID+"/comments", token, jsonBody(map[string]string{"content": "اولین"})); rr.Code != http.StatusCreated {
		t.Fatalf("submit: %d", rr.Code)
	}
	second := nextEvent(t, events)
	if second.Snapshot == nil || len(second.Snapshot.Comments) != 1 || second.Snapshot.Comments[0].Content != "اولین" {
		t.Fatalf("unexpected second frame %+v", second)
	}
	if second.Snapshot.Version <= first.Snapshot.Version {
		t.Fatalf("expected increasing versions")
	}
}

func TestCommentsWebsocketSwitchesArticles(t *testing.T) {
	env := newTestEnv(t)
	token, identity := env.signup("Sara", "sara@example.com")
	first := env.createArticle(token, identity)
	second := env.createArticle(token, identity)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/comments?article_id=" + first
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg FeedMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if msg.Snapshot == nil || msg.Snapshot.ArticleID != first {
		t.Fatalf("unexpected initial frame %+v", msg)
	}

	if err := conn.WriteJSON(feedRequest{ArticleID: second}); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read after switch: %v", err)
	}
	if msg.Snapshot == nil || msg.Snapshot.ArticleID != second {
		t.Fatalf("expected snapshot for second article, got %+v", msg)
	}

	if rr := env.do(http.MethodPost, "/articles/"+second+"/comments", token, jsonBody(map[string]string{"content": "hi"})); rr.Code != http.StatusCreated {
		t.Fatalf("submit: %d", rr.Code)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if msg.Snapshot == nil || msg.Snapshot.ArticleID != second || len(msg.Snapshot.Comments) != 1 {
		t.Fatalf("unexpected update %+v", msg)
	}

	if err := conn.WriteJSON(feedRequest{ArticleID: "bogus"}); err != nil {
		t.Fatalf("write bogus: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if msg.Type != FeedMessageError || msg.Code != locale.CodeNotFound {
		t.Fatalf("expected not-found error frame, got %+v", msg)
	}
}

func TestClassifyErrorFallback(t *testing.T) {
	status, code := classifyError(errors.New("boom"), locale.CodeCommentSubmitFailed)
	if status != http.StatusInternalServerError || code != locale.CodeCommentSubmitFailed {
		t.Fatalf("unexpected %d %q", status, code)
	}
	status, code = classifyError(&auth.ProviderError{Code: "auth/too-many-requests"}, "")
	if status != http.StatusBadRequest || code != locale.CodeSignupFailed {
		t.Fatalf("unknown provider codes should fall back to signup-failed, got %d %q", status, code)
	}
}

// --- helpers ---

type testEnv struct {
	t      *testing.T
	router *Router
	repo   *memRepo
	blobs  *blobStub
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithLimiter(t, newRateLimiterStub())
}

func newTestEnvWithLimiter(t *testing.T, limiter RateLimiter) *testEnv {
	t.Helper()
	return newTestEnvBehindProxies(t, limiter, nil)
}

func newTestEnvBehindProxies(t *testing.T, limiter RateLimiter, proxies []string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemRepo()
	blobs := &blobStub{}
	feed := comment.NewFeed(repo, logger)
	t.Cleanup(feed.Close)
	cfg := config.APIConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour}
	router := NewRouter(logger, Dependencies{
		Auth:          auth.New(repo, auth.NewMemoryRevocations(), logger, cfg),
		Articles:      article.New(repo, blobs, logger, 1024),
		Comments:      comment.New(repo, repo, feed, logger),
		Feed:          feed,
		Limiter:       limiter,
		MaxImageBytes:  1024,
		Heartbeat:      time.Second,
		TrustedProxies: proxies,
	})
	t.Cleanup(router.Close)
	return &testEnv{t: t, router: router, repo: repo, blobs: blobs}
}

func (e *testEnv) do(method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) signup(name, email string) (string, domain.Identity) {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/auth/signup", "", jsonBody(map[string]string{
		"display_name": name, "email": email, "password": "secret1", "confirm_password": "secret1",
	}))
	if rr.Code != http.StatusCreated {
		e.t.Fatalf("signup %s: %d %s", email, rr.Code, rr.Body.String())
	}
	var resp sessionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		e.t.Fatalf("decode session: %v", err)
	}
	return resp.AccessToken, resp.User
}

func (e *testEnv) createArticle(token string, author domain.Identity) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/articles", token, jsonBody(map[string]string{"title": "عنوان", "content": "متن"}))
	if rr.Code != http.StatusCreated {
		e.t.Fatalf("create article: %d %s", rr.Code, rr.Body.String())
	}
	var a domain.Article
	if err := json.NewDecoder(rr.Body).Decode(&a); err != nil {
		e.t.Fatalf("decode article: %v", err)
	}
	if a.AuthorID != author.ID {
		e.t.Fatalf("unexpected author %q", a.AuthorID)
	}
	return a.ID
}

func jsonBody(v any) io.Reader {
	data, _ := json.Marshal(v)
	return bytes.NewReader(data)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) apiError {
	t.Helper()
	var body apiError
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func readSSE(r io.Reader) <-chan FeedMessage {
	out := make(chan FeedMessage, 8)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var msg FeedMessage
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err == nil {
				out <- msg
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, ch <-chan FeedMessage) FeedMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("stream closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return FeedMessage{}
}

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateLimitCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
}

type rateLimitCall struct {
	key    string
	limit  int
	window time.Duration
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{}
}

func (rl *rateLimiterStub) Allow(key string, limit int, window time.Duration) rateDecision {
	rl.mu.Lock()
	rl.calls = append(rl.calls, rateLimitCall{key: key, limit: limit, window: window})
	fn := rl.allowFn
	rl.mu.Unlock()
	if fn != nil {
		return fn(key, limit, window)
	}
	return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
}

func (rl *rateLimiterStub) Close() {}

type blobStub struct {
	mu   sync.Mutex
	keys []string
}

func (b *blobStub) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	return "https://blobs.test/" + key, nil
}

func (b *blobStub) Delete(context.Context, string) error { return nil }

func (b *blobStub) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.keys)
}

// memRepo implements the user, article and comment repositories in memory.
type memRepo struct {
	mu       sync.Mutex
	users    map[string]domain.User
	articles map[string]domain.Article
	comments map[string]domain.Comment
	// userLookupErr, when set, fails every GetUserByID call.
	userLookupErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    map[string]domain.User{},
		articles: map[string]domain.Article{},
		comments: map[string]domain.Comment{},
	}
}

func (m *memRepo) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memRepo) commentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.comments)
}

func (m *memRepo) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrConflict
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userLookupErr != nil {
		return nil, m.userLookupErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (m *memRepo) CreateArticle(_ context.Context, a *domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles[a.ID] = *a
	return nil
}

func (m *memRepo) GetArticleByID(_ context.Context, id string) (*domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (m *memRepo) ListArticles(_ context.Context, f domain.ArticleFilter) ([]domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Article{}
	for _, a := range m.articles {
		if (f.Category == "" || a.Category == f.Category) && (f.AuthorID == "" || a.AuthorID == f.AuthorID) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) SetArticleLike(_ context.Context, articleID, userID string, liked bool) (*domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[articleID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	likes := []string{}
	for _, id := range a.Likes {
		if id != userID {
			likes = append(likes, id)
		}
	}
	if liked {
		likes = append(likes, userID)
	}
	a.Likes = likes
	m.articles[articleID] = a
	return &a, nil
}

func (m *memRepo) CreateComment(_ context.Context, c *domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[c.ArticleID]
	if !ok {
		return repository.ErrNotFound
	}
	m.comments[c.ID] = *c
	a.CommentsCount++
	m.articles[c.ArticleID] = a
	return nil
}

func (m *memRepo) GetCommentByID(_ context.Context, id string) (*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (m *memRepo) DeleteComment(_ context.Context, commentID, authorID string) (*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[commentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if c.AuthorID != authorID {
		return nil, repository.ErrForbidden
	}
	delete(m.comments, commentID)
	if a, ok := m.articles[c.ArticleID]; ok {
		a.CommentsCount--
		m.articles[c.ArticleID] = a
	}
	return &c, nil
}

func (m *memRepo) ListCommentsByArticle(_ context.Context, articleID string) ([]domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Comment{}
	for _, c := range m.comments {
		if c.ArticleID == articleID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
