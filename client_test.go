package authgate

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/masabinhok/authgate/broadcast"
)

func TestDoRefreshRetrySuccess(t *testing.T) {
	backend := newFakeBackend(t)

	var refreshed atomic.Bool
	backend.handle("/data", func(w http.ResponseWriter, r *http.Request) {
		if !refreshed.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeBody(w, http.StatusOK, map[string]string{"data": "success"})
	})
	backend.handle("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshed.Store(true)
		w.WriteHeader(http.StatusOK)
	})

	gate := newTestGate(t, backend)
	raw, err := gate.Client.Get(context.Background(), "/data")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(raw) != `{"data":"success"}`+"\n" && string(raw) != `{"data":"success"}` {
		t.Fatalf("unexpected payload: %s", raw)
	}
	if got := backend.totalCalls(); got != 3 {
		t.Fatalf("expected exactly 3 upstream calls, got %d", got)
	}
	if got := backend.count("/auth/refresh"); got != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", got)
	}
}

func TestDoSecond401IsTerminal(t *testing.T) {
	backend := newFakeBackend(t)
	backend.handle("/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	backend.handle("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	gate := newTestGate(t, backend)

	var failures atomic.Int64
	cancel := gate.Bus.Subscribe(func(ev broadcast.Event) {
		if ev.Kind == broadcast.KindAuthFailure {
			failures.Add(1)
		}
	})
	defer cancel()

	_, err := gate.Client.Get(context.Background(), "/data")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if got := backend.count("/auth/refresh"); got != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", got)
	}
	if got := backend.count("/data"); got != 2 {
		t.Fatalf("expected original call + one retry, got %d calls", got)
	}
	if !waitFor(t, time.Second, func() bool { return failures.Load() == 1 }) {
		t.Fatalf("expected exactly 1 failure broadcast, got %d", failures.Load())
	}
}

func TestRefreshFailureIsTerminal(t *testing.T) {
	backend := newFakeBackend(t)
	backend.handle("/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	backend.handle("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusUnauthorized, map[string]string{"message": "refresh token expired"})
	})

	gate := newTestGate(t, backend)
	_, err := gate.Client.Get(context.Background(), "/data")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if got := backend.count("/data"); got != 1 {
		t.Fatalf("no retry must be issued after a failed refresh, got %d calls", got)
	}
}

func TestLogin401NeverRefreshes(t *testing.T) {
	backend := newFakeBackend(t)
	backend.handle("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusUnauthorized, map[string]string{"message": "bad password"})
	})

	gate := newTestGate(t, backend)
	_, err := gate.Client.Post(context.Background(), "/auth/login", map[string]string{"username": "x"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := backend.count("/auth/refresh"); got != 0 {
		t.Fatalf("login 401 must never call refresh, got %d", got)
	}
}

func TestEmptyOrInvalidJSONBodyResolvesNil(t *testing.T) {
	backend := newFakeBackend(t)
	backend.handle("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	backend.handle("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not json"))
	})

	gate := newTestGate(t, backend)
	for _, path := range []string{"/empty", "/plain"} {
		raw, err := gate.Client.Get(context.Background(), path)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", path, err)
		}
		if raw != nil {
			t.Fatalf("%s: expected nil payload, got %s", path, raw)
		}
	}
}

func TestAPIErrorCarriesStatusAndMessage(t *testing.T) {
	backend := newFakeBackend(t)
	backend.handle("/boom", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusConflict, map[string]string{"message": "already exists"})
	})
	backend.handle("/list", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusBadRequest, map[string][]string{"message": {"a", "b"}})
	})

	gate := newTestGate(t, backend)

	_, err := gate.Client.Get(context.Background(), "/boom")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Message != "already exists" {
		t.Fatalf("unexpected APIError: %+v", apiErr)
	}

	_, err = gate.Client.Get(context.Background(), "/list")
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "a; b" {
		t.Fatalf("list messages should join, got %q", apiErr.Message)
	}
}

func TestNetworkFailureDistinct(t *testing.T) {
	backend := newFakeBackend(t)
	gate := newTestGate(t, backend)
	backend.server.Close()

	_, err := gate.Client.Get(context.Background(), "/anything")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestUnsupportedMethodRejected(t *testing.T) {
	backend := newFakeBackend(t)
	gate := newTestGate(t, backend)

	_, err := gate.Client.Do(context.Background(), "TRACE", "/x", nil)
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if backend.totalCalls() != 0 {
		t.Fatal("no request must be issued for an unsupported method")
	}
}

func TestConcurrentRefreshCoalesced(t *testing.T) {
	backend := newFakeBackend(t)

	const callers = 8

	// Barrier: every caller receives its 401 at the same instant so all of
	// them reach the refresh path inside one flight window.
	var arrived sync.WaitGroup
	arrived.Add(callers)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()

	var refreshed atomic.Bool
	backend.handle("/data", func(w http.ResponseWriter, r *http.Request) {
		if !refreshed.Load() {
			arrived.Done()
			<-release
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeBody(w, http.StatusOK, map[string]string{"ok": "yes"})
	})
	backend.handle("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		// Hold the flight open long enough for every caller to join it.
		time.Sleep(50 * time.Millisecond)
		refreshed.Store(true)
		w.WriteHeader(http.StatusOK)
	})

	gate := newTestGate(t, backend)
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = gate.Client.Get(context.Background(), "/data")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := backend.count("/auth/refresh"); got != 1 {
		t.Fatalf("concurrent 401s must coalesce into 1 refresh, got %d", got)
	}
}
