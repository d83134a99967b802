package flow

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmcleod/latchkey/pkce"
	"github.com/jmcleod/latchkey/protocol"
)

// Flow selects which kind of conversation Setup opens.
type Flow string

const (
	FlowLogin    Flow = "login"
	FlowRegister Flow = "register"
)

// SetupOptions tunes a Setup call.
type SetupOptions struct {
	// LoginToken is an external login challenge forwarded as ~token.
	LoginToken string
	// StartURL is recorded as the location this flow was started from.
	StartURL string
}

// Setup opens a new conversation and classifies the server's first
// response. A fail message is returned as data; a missing body or a
// non-terminal response without a thread id is an error. On any
// non-terminal response the thread id and the fresh challenge verifier are
// persisted together.
func (c *Client) Setup(ctx context.Context, flow Flow, opts SetupOptions) (*protocol.Message, error) {
	msg, err := c.setup(ctx, flow, opts)
	if err != nil {
		c.logger.Error("setup failed", "flow", string(flow), "error", err)
		return nil, err
	}
	return msg, nil
}

func (c *Client) setup(ctx context.Context, flow Flow, opts SetupOptions) (*protocol.Message, error) {
	pair, err := pkce.Generate()
	if err != nil {
		return nil, err
	}

	// A login may already hold a session; a failure here just means we
	// proceed unauthenticated (anonymous visitor, the common case).
	var bearer string
	if flow == FlowLogin {
		token, err := c.GetValidAccessToken(ctx, RefreshOptions{})
		if err != nil {
			c.logger.Debug("no valid access token for setup", "flow", string(flow), "error", err)
		} else {
			bearer = token
		}
	}

	// An interrupted OIDC hand-off may have cached the response we should
	// resume from; no network call is needed then.
	pending, err := c.store.TakePendingResponse()
	if err != nil {
		return nil, err
	}
	if pending != nil {
		if thid := pending.Thid(); thid != "" {
			if err := c.store.SetThreadID(thid); err != nil {
				return nil, err
			}
		}
		if err := c.store.SetStartURL(opts.StartURL); err != nil {
			return nil, err
		}
		return pending, nil
	}

	req := &protocol.SetupRequest{
		Challenge: pair.Challenge,
		Tenant:    c.cfg.TenantID,
		Arg:       &protocol.Arg{Flow: string(flow)},
		Token:     opts.LoginToken,
	}
	msg, status, err := c.send(ctx, http.MethodPost, c.authURL(), req, callOptions{bearer: bearer})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("status %d: %w", status, protocol.ErrNoData)
	}

	if err := c.store.SetStartURL(opts.StartURL); err != nil {
		return nil, err
	}

	switch {
	case msg.Type == protocol.TypeFail:
		return msg, nil
	case msg.Type == protocol.TypeSuccess && msg.Verifier != "" && flow == FlowLogin:
		// The session is already satisfiable; the caller skips straight to
		// the verifier step.
		return msg, nil
	}

	thid := msg.Thid()
	if thid == "" {
		return nil, protocol.ErrNoThread
	}
	if err := c.store.SetConversation(thid, pair.Verifier); err != nil {
		return nil, err
	}
	if opt := msg.ActionOption(); opt != nil {
		if err := c.store.SetActionID(opt.ID); err != nil {
			return nil, err
		}
	}
	return msg, nil
}
