package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type storedResp struct {
	status int
	body   []byte
}

// memStore is an in-memory IdempotencyLookup/IdempotencySave pair.
type memStore struct {
	mu      sync.Mutex
	records map[string]storedResp
	lookups int
	saves   int
	failGet bool
}

func newMemStore() *memStore { return &memStore{records: map[string]storedResp{}} }

func (m *memStore) lookup(_ context.Context, scope, key string, _ time.Time) (int, []byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.failGet {
		return 0, nil, false, errors.New("store down")
	}
	r, ok := m.records[scope+"#"+key]
	return r.status, r.body, ok, nil
}

func (m *memStore) save(_ context.Context, scope, key string, status int, body []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.records[scope+"#"+key] = storedResp{status: status, body: append([]byte(nil), body...)}
	return nil
}

func idemRouter(store *memStore, status *int, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{MaxLen: 16}, store.lookup, store.save))
	h := func(c *gin.Context) {
		*calls++
		c.JSON(*status, gin.H{"call": *calls, "replay": IsReplay(c)})
	}
	r.POST("/gate/entry", h)
	r.POST("/gate/exit", h)
	r.GET("/events", h)
	return r
}

func postWithKey(r http.Handler, path, gate, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if gate != "" {
		req.Header.Set(HeaderGateID, gate)
	}
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	return serve(r, req)
}

func TestHelpers_GetIdempotencyKey_IsReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected empty key when not set")
	}
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false by default")
	}
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key should read as absent")
	}
	c.Set(ctxKeyIdemReplay, true)
	if !IsReplay(c) {
		t.Fatalf("expected IsReplay=true")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false for non-bool")
	}
}

func TestIdempotencyScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got []string
	r := gin.New()
	r.POST("/gate/:dir", func(c *gin.Context) { got = append(got, IdempotencyScope(c)) })

	postWithKey(r, "/gate/entry", "g1", "")
	postWithKey(r, "/gate/exit", "", "")
	want := []string{"g1|/gate/:dir", "-|/gate/:dir"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("scopes = %v; want %v", got, want)
	}
}

func TestIdempotencyValidator_ReplaysStoredResponse(t *testing.T) {
	store := newMemStore()
	status, calls := http.StatusCreated, 0
	r := idemRouter(store, &status, &calls)

	w1 := postWithKey(r, "/gate/entry", "g1", "k-1")
	if w1.Code != http.StatusCreated || w1.Header().Get(HeaderIdempotencyReplayed) != "" {
		t.Fatalf("first request: %d replayed=%q", w1.Code, w1.Header().Get(HeaderIdempotencyReplayed))
	}

	// Handler now would answer differently; the replay must not reach it.
	status = http.StatusConflict
	w2 := postWithKey(r, "/gate/entry", "g1", "k-1")
	if w2.Code != http.StatusCreated || w2.Header().Get(HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: %d replayed=%q", w2.Code, w2.Header().Get(HeaderIdempotencyReplayed))
	}
	if w2.Body.String() != w1.Body.String() {
		t.Fatalf("replayed body %q != original %q", w2.Body.String(), w1.Body.String())
	}
	if !strings.HasPrefix(w2.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("replay content type = %q", w2.Header().Get("Content-Type"))
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d; want 1", calls)
	}

	// Same key on another gate or route is a different scope.
	if w := postWithKey(r, "/gate/entry", "g2", "k-1"); w.Code != http.StatusConflict {
		t.Fatalf("other gate should run handler, got %d", w.Code)
	}
	if w := postWithKey(r, "/gate/exit", "g1", "k-1"); w.Code != http.StatusConflict {
		t.Fatalf("other route should run handler, got %d", w.Code)
	}
	if calls != 3 {
		t.Fatalf("handler calls = %d; want 3", calls)
	}
}

func TestIdempotencyValidator_DoesNotStoreTransientFailures(t *testing.T) {
	for _, st := range []int{http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusTooManyRequests, http.StatusRequestTimeout} {
		store := newMemStore()
		status, calls := st, 0
		r := idemRouter(store, &status, &calls)
		postWithKey(r, "/gate/entry", "g1", "k")
		postWithKey(r, "/gate/entry", "g1", "k")
		if calls != 2 || store.saves != 0 {
			t.Fatalf("status %d: calls=%d saves=%d; want 2/0", st, calls, store.saves)
		}
	}
	// Decisions such as 409 and 422 are stored.
	for _, st := range []int{http.StatusConflict, http.StatusUnprocessableEntity, http.StatusForbidden} {
		store := newMemStore()
		status, calls := st, 0
		r := idemRouter(store, &status, &calls)
		postWithKey(r, "/gate/entry", "g1", "k")
		w := postWithKey(r, "/gate/entry", "g1", "k")
		if calls != 1 || w.Code != st {
			t.Fatalf("status %d: calls=%d replay code=%d", st, calls, w.Code)
		}
	}
}

func TestIdempotencyValidator_NoHeaderOrGet_NoStoreTraffic(t *testing.T) {
	store := newMemStore()
	status, calls := http.StatusOK, 0
	r := idemRouter(store, &status, &calls)

	postWithKey(r, "/gate/entry", "g1", "")
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	serve(r, req)

	if store.lookups != 0 || store.saves != 0 || calls != 2 {
		t.Fatalf("lookups=%d saves=%d calls=%d", store.lookups, store.saves, calls)
	}
}

func TestIdempotencyValidator_InvalidKey(t *testing.T) {
	store := newMemStore()
	status, calls := http.StatusOK, 0
	r := idemRouter(store, &status, &calls)

	for _, key := range []string{"has space", "x/y", strings.Repeat("a", 17)} {
		w := postWithKey(r, "/gate/entry", "g1", key)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("key %q: want 400, got %d", key, w.Code)
		}
		var body map[string]any
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		if body["code"] != "bad_idempotency_key" {
			t.Fatalf("key %q: body %v", key, body)
		}
	}
	if calls != 0 {
		t.Fatalf("handler should not run for invalid keys")
	}
}

func TestIdempotencyValidator_CustomPatternAndLookupError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	store.failGet = true
	calls := 0
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, store.lookup, store.save))
	r.POST("/x", func(c *gin.Context) {
		calls++
		if k, ok := GetIdempotencyKey(c); !ok || k != "42" {
			t.Fatalf("key not stashed: %q", k)
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	if w := postWithKey(r, "/x", "", "abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("custom pattern should reject letters, got %d", w.Code)
	}
	if w := postWithKey(r, "/x", "", "42"); w.Code != http.StatusOK {
		t.Fatalf("lookup error must not block processing, got %d", w.Code)
	}
	if calls != 1 || store.saves != 1 {
		t.Fatalf("calls=%d saves=%d", calls, store.saves)
	}
}

func TestStorable(t *testing.T) {
	cases := map[int]bool{200: true, 201: true, 204: true, 400: true, 403: true, 408: false, 409: true, 422: true, 429: false, 500: false, 503: false, 101: false}
	for st, want := range cases {
		if got := storable(st); got != want {
			t.Fatalf("storable(%d) = %v; want %v", st, got, want)
		}
	}
}
