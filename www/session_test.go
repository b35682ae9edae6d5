package www

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storedesk/backend"
	"storedesk/config"
)

// fakeBackend serves the hosted auth endpoints. Once revoked is set the
// user endpoint rejects every token.
type fakeBackend struct {
	*httptest.Server
	revoked   atomic.Bool
	userCalls atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	fb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/v1/token":
			w.Write([]byte(`{"access_token":"tok","user":{"id":"u1","email":"admin@example.com"}}`))
		case "/auth/v1/user":
			fb.userCalls.Add(1)
			if fb.revoked.Load() {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"invalid_token","msg":"token revoked"}`))
				return
			}
			w.Write([]byte(`{"id":"u1","email":"admin@example.com"}`))
		case "/auth/v1/health", "/auth/v1/logout":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fb.Close)
	return fb
}

func newHostedServer(t *testing.T, fb *fakeBackend, interval time.Duration) *httptest.Server {
	t.Helper()
	srv, _ := newTestServerWith(t, func(cfg *config.Config) {
		cfg.Auth.Provider = "hosted"
		cfg.Auth.Hosted.BaseURL = fb.URL
		cfg.Auth.Hosted.APIKey = "key"
		cfg.Auth.RevalidateInterval = interval
	}, backend.NewClient(fb.URL, "key", time.Second))
	return srv
}

func TestRevokedHostedSessionIsCleared(t *testing.T) {
	fb := newFakeBackend(t)
	srv := newHostedServer(t, fb, time.Nanosecond)
	c := signedIn(t, srv)

	resp, _ := get(t, c, srv.URL+"/orders")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, c, srv.URL+"/api/orders")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, fb.userCalls.Load(), int32(2))

	fb.revoked.Store(true)

	resp, body := get(t, c, srv.URL+"/api/orders")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"authentication required"}`, body)

	// the session cookie is gone, so a backend that recovers does not help
	fb.revoked.Store(false)
	calls := fb.userCalls.Load()
	resp, _ = get(t, c, srv.URL+"/orders")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Equal(t, calls, fb.userCalls.Load())
}

func TestRevokedSessionRedirectsPages(t *testing.T) {
	fb := newFakeBackend(t)
	srv := newHostedServer(t, fb, time.Nanosecond)
	c := signedIn(t, srv)

	fb.revoked.Store(true)
	resp, _ := get(t, c, srv.URL+"/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestSessionRevalidationIsThrottled(t *testing.T) {
	fb := newFakeBackend(t)
	srv := newHostedServer(t, fb, time.Hour)
	c := signedIn(t, srv)

	for i := 0; i < 3; i++ {
		resp, _ := get(t, c, srv.URL+"/orders")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Zero(t, fb.userCalls.Load(), "a fresh login counts as validated")

	fb.revoked.Store(true)
	resp, _ := get(t, c, srv.URL+"/orders")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "still inside the interval")
}
