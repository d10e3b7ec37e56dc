package sessionkeeper

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeToken builds a signed JWT expiring at exp. The signature is never
// verified client-side; only the exp claim matters.
func makeToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user@example.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

// makeTokenNoExpiry builds a decodable JWT that carries no exp claim.
func makeTokenNoExpiry(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user@example.com",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func seedStore(t *testing.T, access string) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	if err := store.Store(&Credential{
		AccessToken:  access,
		RefreshToken: "refresh-token-1",
		Subject:      "user@example.com",
	}); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	return store
}

// newRefreshServer builds a fake auth backend with the given refresh
// handler; other auth routes 404.
func newRefreshServer(t *testing.T, refresh http.HandlerFunc) *httptest.Server {
	t.Helper()
	router := mux.NewRouter()
	router.HandleFunc(DefaultRefreshPath, refresh).Methods(http.MethodPost)
	return newTestHTTPServer(t, router)
}

func newTestHTTPServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}
