package flow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmcleod/latchkey/protocol"
)

// BeginOIDC prepares an external-IdP hand-off: the hand-off thread is
// persisted and the provider URL the caller must navigate to is returned.
// Callers that will lose process state across the navigation should cache
// the current response with CacheResponse first.
func (c *Client) BeginOIDC(msg *protocol.Message) (string, error) {
	if msg == nil || msg.Type != protocol.TypeOIDC {
		return "", fmt.Errorf("cannot begin OIDC hand-off from %q message", msgType(msg))
	}
	if msg.URL == "" {
		return "", errors.New("oidc message carries no redirect url")
	}
	if thid := msg.Thid(); thid != "" {
		if err := c.store.SetThreadID(thid); err != nil {
			return "", err
		}
	}
	return msg.URL, nil
}

// CompleteOIDC resumes the conversation after the provider redirected back
// with a thread id, performing the verifier exchange and committing the
// session. An empty threadID falls back to the persisted hand-off thread.
func (c *Client) CompleteOIDC(ctx context.Context, threadID string, onSuccess func(*protocol.Message)) (*Result, error) {
	if threadID == "" {
		var err error
		threadID, err = c.store.ThreadID()
		if err != nil {
			return nil, err
		}
	}
	if threadID == "" {
		c.logger.Error("oidc callback without thread")
		return nil, protocol.ErrNoThread
	}
	if err := c.store.SetThreadID(threadID); err != nil {
		return nil, err
	}
	res, err := c.closeConversation(ctx, threadID, onSuccess)
	if err != nil {
		c.logger.Error("oidc completion failed", "error", err)
	}
	return res, err
}

// InterceptOIDC stores the original redirect query of a third-party OIDC
// authorization request this application is answering. The params are held
// until the interception concludes (see Result.RedirectURL) or AbortOIDC.
func (c *Client) InterceptOIDC(params url.Values) error {
	return c.store.SetOIDCParams(params)
}

// AbortOIDC drops a stored interception.
func (c *Client) AbortOIDC() error {
	return c.store.ClearOIDCParams()
}

// CacheResponse stores msg so that the next Setup call short-circuits to
// it instead of opening a new conversation. Used right before navigating
// away for an external hand-off.
func (c *Client) CacheResponse(msg *protocol.Message) error {
	return c.store.SetPendingResponse(msg)
}

// interceptionRedirectURL builds the URL that returns an intercepted OIDC
// authorization to its original relying party, carrying the verifier the
// server issued for it.
func (c *Client) interceptionRedirectURL(params url.Values, verifier string) string {
	q := make(url.Values, len(params)+1)
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("verifier", verifier)
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/o/callback?" + q.Encode()
}

func msgType(msg *protocol.Message) string {
	if msg == nil {
		return "<nil>"
	}
	return string(msg.Type)
}
