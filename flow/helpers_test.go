package flow

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// fakeServer is a scripted authentication server for engine tests.
type fakeServer struct {
	t      *testing.T
	mu     sync.Mutex
	bodies []map[string]any
	auths  []string
	handle func(body map[string]any) any
	srv    *httptest.Server
}

func newFakeServer(t *testing.T, handle func(body map[string]any) any) *fakeServer {
	t.Helper()
	f := &fakeServer{t: t, handle: handle}
	r := chi.NewRouter()
	r.Post("/auth/{appID}", f.serve)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.auths = append(f.auths, r.Header.Get("Authorization"))
	handle := f.handle
	f.mu.Unlock()

	resp := handle(body)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		f.t.Errorf("encoding fake response: %v", err)
	}
}

func (f *fakeServer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func (f *fakeServer) body(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[i]
}

func (f *fakeServer) auth(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auths[i]
}

func newTestClient(t *testing.T, f *fakeServer, opts ...Option) *Client {
	t.Helper()
	base := append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	c, err := New(Config{
		BaseURL:       f.srv.URL,
		ApplicationID: "app-1",
		TenantID:      "tenant-1",
	}, base...)
	require.NoError(t, err)
	return c
}

func threadOf(thid string) map[string]any {
	return map[string]any{"thid": thid}
}
