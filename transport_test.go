package sessionkeeper

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// apiHarness is a fake backend exposing the auth contract plus a business
// route, with per-route counters.
type apiHarness struct {
	url          string
	refreshCalls atomic.Int32
	apiCalls     atomic.Int32

	refresh http.HandlerFunc
	api     http.HandlerFunc
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	h := &apiHarness{}

	router := mux.NewRouter()
	router.HandleFunc(DefaultRefreshPath, func(w http.ResponseWriter, r *http.Request) {
		h.refreshCalls.Add(1)
		h.refresh(w, r)
	}).Methods(http.MethodPost)
	router.PathPrefix("/api/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.apiCalls.Add(1)
		h.api(w, r)
	})

	h.url = newTestHTTPServer(t, router).URL
	return h
}

func okRefresh(newAccess string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RefreshResponse{AccessToken: newAccess})
	}
}

func TestTransport_InjectsBearer(t *testing.T) {
	access := makeToken(t, time.Now().Add(1*time.Hour))

	var gotAuth string
	h := newAPIHarness(t)
	h.api = func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}

	mgr := NewManager(h.url, seedStore(t, access), WithLogger(testLogger()))

	resp, err := mgr.Client().Get(h.url + "/api/resource")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer "+access {
		t.Errorf("Authorization = %q, want bearer with current token", gotAuth)
	}
}

// A caller may override the bearer value, but never suppress the header.
func TestTransport_CallerAuthorizationWins(t *testing.T) {
	var gotAuth string
	h := newAPIHarness(t)
	h.api = func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}

	mgr := NewManager(h.url, seedStore(t, makeToken(t, time.Now().Add(1*time.Hour))), WithLogger(testLogger()))

	req, _ := http.NewRequest(http.MethodGet, h.url+"/api/resource", nil)
	req.Header.Set("Authorization", "Bearer caller-supplied")

	resp, err := mgr.Client().Do(req)
	if err != nil {
		t.Fatalf("Do error = %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer caller-supplied" {
		t.Errorf("Authorization = %q, want caller's value", gotAuth)
	}
}

// A 401 triggers one reactive refresh and exactly one retry; the retried
// response is what the caller sees.
func TestTransport_RetryOn401(t *testing.T) {
	oldAccess := makeToken(t, time.Now().Add(1*time.Hour))
	newAccess := makeToken(t, time.Now().Add(2*time.Hour))

	h := newAPIHarness(t)
	h.refresh = okRefresh(newAccess)
	h.api = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+newAccess {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("success"))
	}

	mgr := NewManager(h.url, seedStore(t, oldAccess), WithLogger(testLogger()))

	resp, err := mgr.Client().Get(h.url + "/api/resource")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "success" {
		t.Errorf("body = %q, want retried response", body)
	}
	if got := h.apiCalls.Load(); got != 2 {
		t.Errorf("business endpoint called %d times, want 2", got)
	}
	if got := h.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh endpoint called %d times, want 1", got)
	}
}

// POST bodies are replayed on the retry.
func TestTransport_RetryReplaysBody(t *testing.T) {
	oldAccess := makeToken(t, time.Now().Add(1*time.Hour))
	newAccess := makeToken(t, time.Now().Add(2*time.Hour))

	var bodies []string
	h := newAPIHarness(t)
	h.refresh = okRefresh(newAccess)
	h.api = func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if r.Header.Get("Authorization") != "Bearer "+newAccess {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}

	mgr := NewManager(h.url, seedStore(t, oldAccess), WithLogger(testLogger()))

	resp, err := mgr.Client().Post(h.url+"/api/resource", "application/json", strings.NewReader(`{"prompt":"hi"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("business endpoint called %d times, want 2", len(bodies))
	}
	if bodies[0] != bodies[1] || bodies[1] != `{"prompt":"hi"}` {
		t.Errorf("retried body = %q, want original body replayed", bodies[1])
	}
}

// If the retry also comes back 401, that response is returned as-is: no
// second refresh, no third request.
func TestTransport_SecondUnauthorizedIsFinal(t *testing.T) {
	h := newAPIHarness(t)
	h.refresh = okRefresh(makeToken(t, time.Now().Add(1*time.Hour)))
	h.api = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}

	mgr := NewManager(h.url, seedStore(t, makeToken(t, time.Now().Add(1*time.Hour))), WithLogger(testLogger()))

	resp, err := mgr.Client().Get(h.url + "/api/resource")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want the retry's 401", resp.StatusCode)
	}
	if got := h.apiCalls.Load(); got != 2 {
		t.Errorf("business endpoint called %d times, want exactly 2", got)
	}
	if got := h.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh endpoint called %d times, want 1", got)
	}
}

// A 401 followed by a failed reactive refresh surfaces ErrSessionExpired
// and the original request is not retried.
func TestTransport_RefreshFailureYieldsSessionExpired(t *testing.T) {
	h := newAPIHarness(t)
	h.refresh = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	h.api = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}

	mgr := NewManager(h.url, seedStore(t, makeToken(t, time.Now().Add(1*time.Hour))), WithLogger(testLogger()))

	_, err := mgr.Client().Get(h.url + "/api/resource")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("GET error = %v, want ErrSessionExpired", err)
	}
	if got := h.apiCalls.Load(); got != 1 {
		t.Errorf("business endpoint called %d times, want 1 (no retry)", got)
	}
	if !mgr.Terminated() {
		t.Error("rejected refresh should have terminated the session")
	}

	// Terminal state short-circuits the next request entirely: no
	// business call, no further refresh attempt.
	_, err = mgr.Client().Get(h.url + "/api/resource")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("post-termination GET error = %v, want ErrSessionExpired", err)
	}
	if got := h.apiCalls.Load(); got != 1 {
		t.Errorf("business endpoint called %d times after termination, want still 1", got)
	}
	if got := h.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh endpoint called %d times after termination, want still 1", got)
	}
}

// Network-level failures are not authorization failures: propagate, no
// refresh.
func TestTransport_TransportErrorPropagates(t *testing.T) {
	h := newAPIHarness(t)

	dead := newTestHTTPServer(t, http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	mgr := NewManager(h.url, seedStore(t, makeToken(t, time.Now().Add(1*time.Hour))), WithLogger(testLogger()))

	_, err := mgr.Client().Get(deadURL + "/api/resource")
	if err == nil {
		t.Fatal("GET to dead server succeeded")
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Error("transport error misclassified as session expiry")
	}
	if got := h.refreshCalls.Load(); got != 0 {
		t.Errorf("refresh endpoint called %d times, want 0", got)
	}
	if mgr.Terminated() {
		t.Error("session terminated on a transport error")
	}
}

func TestManager_Validate(t *testing.T) {
	access := makeToken(t, time.Now().Add(1*time.Hour))

	router := mux.NewRouter()
	router.HandleFunc(DefaultValidatePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+access {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"valid": true})
	}).Methods(http.MethodGet)
	server := newTestHTTPServer(t, router)

	mgr := NewManager(server.URL, seedStore(t, access), WithLogger(testLogger()))
	if err := mgr.Validate(context.Background()); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
