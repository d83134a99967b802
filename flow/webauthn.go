package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jmcleod/latchkey/protocol"
)

// Authenticator performs the platform credential ceremony described by a
// webauthn message. The engine only shuttles the JSON payloads; the
// ceremony itself belongs to the platform layer.
type Authenticator interface {
	// Respond runs the ceremony for the given request options and returns
	// the credential response to post back.
	Respond(ctx context.Context, options json.RawMessage) (json.RawMessage, error)
}

// HandleWebAuthn relays a webauthn message to the authenticator and posts
// its credential response back, then advances the conversation: a verifier
// reply is exchanged and committed, a success reply is committed directly,
// anything else is returned for the caller to branch on.
func (c *Client) HandleWebAuthn(ctx context.Context, msg *protocol.Message, auth Authenticator, onSuccess func(*protocol.Message)) (*Result, error) {
	if msg == nil || msg.Type != protocol.TypeWebAuthn {
		return nil, fmt.Errorf("cannot run credential ceremony from %q message", msgType(msg))
	}
	thid := msg.Thid()
	if thid == "" {
		var err error
		thid, err = c.store.ThreadID()
		if err != nil {
			return nil, err
		}
	}
	if thid == "" {
		c.logger.Error("webauthn ceremony without conversation")
		return nil, protocol.ErrNoThread
	}

	credential, err := auth.Respond(ctx, msg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("credential ceremony: %w", err)
	}

	req := &protocol.WebAuthnRequest{
		Thread:     protocol.Thread{Thid: thid},
		Type:       protocol.TypeWebAuthn,
		Credential: json.RawMessage(credential),
	}
	reply, _, err := c.send(ctx, http.MethodPost, c.authURL(), req, callOptions{})
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, protocol.ErrNoData
	}

	switch reply.Type {
	case protocol.TypeVerifier:
		next := reply.Thid()
		if next == "" {
			next = thid
		}
		return c.closeConversation(ctx, next, onSuccess)
	case protocol.TypeSuccess:
		return c.finalizeAndNotify(reply, onSuccess)
	default:
		if thid := reply.Thid(); thid != "" {
			if err := c.store.SetThreadID(thid); err != nil {
				return nil, err
			}
		}
		return &Result{Message: reply}, nil
	}
}
