package flow

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// CallbackResult carries what an external provider redirect delivered.
type CallbackResult struct {
	// ThreadID is the conversation thread the provider resumed.
	ThreadID string
	// Error is the provider's error code, if the authorization failed.
	Error string
}

// CallbackServer is a temporary loopback HTTP server that catches the
// provider redirect closing an OIDC hand-off. It serves exactly one
// callback and is then stopped.
type CallbackServer struct {
	addr     string
	server   *http.Server
	listener net.Listener
	results  chan CallbackResult
	stopOnce sync.Once
	url      string
}

// NewCallbackServer creates a callback server. An empty addr binds a
// random loopback port.
func NewCallbackServer(addr string) *CallbackServer {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	return &CallbackServer{
		addr:    addr,
		results: make(chan CallbackResult, 1),
	}
}

// Start begins listening and returns the callback URL to hand to the
// authorization request.
func (s *CallbackServer) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("starting callback listener: %w", err)
	}
	s.listener = listener
	s.url = "http://" + listener.Addr().String() + "/callback"

	r := chi.NewRouter()
	r.Get("/callback", s.handleCallback)
	s.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		// Serve returns ErrServerClosed on Stop; nothing to report then.
		_ = s.server.Serve(listener)
	}()
	return s.url, nil
}

// URL returns the callback URL. Valid after Start.
func (s *CallbackServer) URL() string {
	return s.url
}

// Wait blocks until the provider redirect arrives or ctx is done.
func (s *CallbackServer) Wait(ctx context.Context) (CallbackResult, error) {
	select {
	case res := <-s.results:
		return res, nil
	case <-ctx.Done():
		return CallbackResult{}, ctx.Err()
	}
}

// Stop shuts the server down. Safe to call more than once.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	})
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	res := CallbackResult{
		ThreadID: r.URL.Query().Get("thid"),
		Error:    r.URL.Query().Get("error"),
	}
	select {
	case s.results <- res:
	default:
		// A second callback has nowhere to go; ignore it.
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, callbackPage)
}

const callbackPage = `<!DOCTYPE html>
<html><head><title>Sign-in complete</title></head>
<body><p>Sign-in complete. You may close this window.</p></body></html>
`
