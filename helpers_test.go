package authgate

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a configurable stand-in for the school-management API. Each
// endpoint has a swappable handler and a call counter.
type fakeBackend struct {
	mu       sync.Mutex
	server   *httptest.Server
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	total    int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
	}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[r.URL.Path]++
		b.total++
		h := b.handlers[r.URL.Path]
		b.mu.Unlock()
		if h == nil {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) handle(path string, h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[path] = h
}

func (b *fakeBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *fakeBackend) totalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func writeBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func profileHandler(user User) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, user)
	}
}

func testUser(count int) User {
	return User{
		ID:                  "u-1",
		Username:            "test",
		Role:                RoleAdmin,
		PasswordChangeCount: count,
	}
}

// newTestGate builds a gate against the fake backend with quiet logging and
// no Redis.
func newTestGate(t *testing.T, backend *fakeBackend) *Gate {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
	gate, err := New().
		WithConfig(Config{APIOrigin: backend.server.URL}).
		WithLogger(logger).
		Build()
	if err != nil {
		t.Fatalf("build gate: %v", err)
	}
	t.Cleanup(gate.Close)
	return gate
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// waitFor polls cond until it holds or the deadline passes. Broadcast
// handlers run on the bus goroutine, so assertions about their effects need
// a grace window.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
