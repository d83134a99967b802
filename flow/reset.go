package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmcleod/latchkey/internal/util"
	"github.com/jmcleod/latchkey/pkce"
	"github.com/jmcleod/latchkey/protocol"
)

const actionForgotten = "forgotten"

// ForgotPassword invokes the "forgotten" action offered by the current
// conversation. When no conversation is in progress it runs a fresh login
// setup and retries exactly once; a second failure is surfaced as is.
func (c *Client) ForgotPassword(ctx context.Context) (*protocol.Message, error) {
	msg, err := c.forgotPassword(ctx)
	if errors.Is(err, protocol.ErrNoThread) || errors.Is(err, ErrNoAction) {
		c.logger.Debug("password reset without conversation, running fresh login setup", "error", err)
		if _, serr := c.Setup(ctx, FlowLogin, SetupOptions{}); serr != nil {
			return nil, serr
		}
		msg, err = c.forgotPassword(ctx)
	}
	if err != nil {
		c.logger.Error("password reset request failed", "error", err)
	}
	return msg, err
}

func (c *Client) forgotPassword(ctx context.Context) (*protocol.Message, error) {
	thid, err := c.store.ThreadID()
	if err != nil {
		return nil, err
	}
	if thid == "" {
		return nil, protocol.ErrNoThread
	}
	actionID, err := c.store.ActionID()
	if err != nil {
		return nil, err
	}
	if actionID == "" {
		return nil, ErrNoAction
	}

	req := &protocol.ActionRequest{
		Thread: protocol.Thread{Thid: thid},
		Type:   protocol.TypeAction,
		ID:     actionID,
		Action: actionForgotten,
	}
	msg, _, err := c.send(ctx, http.MethodPost, c.authURL(), req, callOptions{actionName: actionForgotten})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, protocol.ErrNoData
	}
	// The reset sub-flow runs on its own thread, kept apart from the main
	// conversation.
	if resetThid := msg.Thid(); resetThid != "" {
		if err := c.store.SetResetThreadID(resetThid); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// SetupPasswordReset opens the set-new-password conversation using the
// one-time token delivered out of band (reset email).
func (c *Client) SetupPasswordReset(ctx context.Context, token string) (*protocol.Message, error) {
	msg, err := c.setupPasswordReset(ctx, token)
	if err != nil {
		c.logger.Error("setup failed", "flow", "reset_password", "error", err)
		return nil, err
	}
	return msg, nil
}

func (c *Client) setupPasswordReset(ctx context.Context, token string) (*protocol.Message, error) {
	pair, err := pkce.Generate()
	if err != nil {
		return nil, err
	}
	req := &protocol.SetupRequest{
		Challenge: pair.Challenge,
		Tenant:    c.cfg.TenantID,
		Token:     token,
	}
	msg, status, err := c.send(ctx, http.MethodPost, c.authURL(), req, callOptions{})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("status %d: %w", status, protocol.ErrNoData)
	}
	if msg.Type == protocol.TypeFail {
		return msg, nil
	}
	thid := msg.Thid()
	if thid == "" {
		return nil, protocol.ErrNoThread
	}
	if err := c.store.SetResetConversation(thid, pair.Verifier); err != nil {
		return nil, err
	}
	return msg, nil
}

// SetNewPassword submits the new password on the reset thread and closes
// the conversation with the verifier exchange.
func (c *Client) SetNewPassword(ctx context.Context, password string, onSuccess func(*protocol.Message)) (*Result, error) {
	thid, err := c.store.ResetThreadID()
	if err != nil {
		return nil, err
	}
	if thid == "" {
		c.logger.Error("set new password without reset conversation")
		return nil, protocol.ErrNoThread
	}

	req := protocol.FormRequest{
		Thread: protocol.Thread{Thid: thid},
		Values: map[string]string{"password": util.Normalize(password)},
	}
	first, _, err := c.send(ctx, http.MethodPost, c.authURL(), req, callOptions{})
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, protocol.ErrNoData
	}
	if first.Type == protocol.TypeFail {
		return &Result{Message: first}, nil
	}

	next := first.Thid()
	if next == "" {
		next = thid
	}
	return c.closeConversation(ctx, next, onSuccess)
}
