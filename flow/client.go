// Package flow drives the server-orchestrated authentication conversation:
// it opens flows, advances them step by step, exchanges the challenge
// verifier, and manages the resulting token lifecycle. Server "fail"
// messages are data for the caller to branch on, not errors; only protocol
// violations and transport failures surface as errors.
package flow

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/jmcleod/latchkey/session"
	"github.com/jmcleod/latchkey/storage/memory"
)

// Config holds the environment inputs of the engine.
type Config struct {
	// BaseURL is the authentication server base URI.
	BaseURL string
	// ApplicationID identifies this application to the server.
	ApplicationID string
	// TenantID is forwarded as the ~tenant envelope field.
	TenantID string
}

// Client is the authentication protocol engine. A Client holds exactly one
// active conversation per kind (main and password-reset); callers must not
// interleave two conversations of the same kind.
type Client struct {
	cfg    Config
	httpc  *http.Client
	store  *session.Store
	logger *slog.Logger

	refreshGroup singleflight.Group
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all server calls.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithStore sets the session store. If not set, a fully in-memory store is
// used and nothing survives the process.
func WithStore(store *session.Store) Option {
	return func(c *Client) { c.store = store }
}

// New creates a Client for the given configuration.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("flow: BaseURL is required")
	}
	if cfg.ApplicationID == "" {
		return nil, errors.New("flow: ApplicationID is required")
	}
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpc == nil {
		c.httpc = &http.Client{}
	}
	if c.store == nil {
		c.store = session.New(memory.NewRepository())
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return c, nil
}

// Store returns the session store backing this client.
func (c *Client) Store() *session.Store {
	return c.store
}

// authURL is the conversation endpoint for this application.
func (c *Client) authURL() string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/auth/" + c.cfg.ApplicationID
}
