package flow

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/jmcleod/latchkey/internal/util"
	"github.com/jmcleod/latchkey/protocol"
)

// Result is the outcome of a composite step.
type Result struct {
	// Message is the final protocol message observed.
	Message *protocol.Message
	// RedirectURL, when non-empty, is an external identity-provider URL
	// the caller must navigate to. The success callback is never invoked
	// in that case.
	RedirectURL string
}

// Credentials is the input of a credential-submission step.
type Credentials struct {
	// FormID is the @id of the form message being answered.
	FormID   string
	Username string
	Password string
}

// SubmitCredentials answers the current conversation's form with username
// and password and returns the raw response; error interpretation is the
// caller's job. Input is NFKD-normalized before sending.
func (c *Client) SubmitCredentials(ctx context.Context, creds Credentials) (*protocol.Message, error) {
	thid, err := c.store.ThreadID()
	if err != nil {
		return nil, err
	}
	if thid == "" {
		c.logger.Error("credential submission without conversation")
		return nil, protocol.ErrNoThread
	}
	req := &protocol.CredentialsRequest{
		Thread:   protocol.Thread{Thid: thid},
		Type:     protocol.TypeForm,
		ID:       creds.FormID,
		Username: util.Normalize(creds.Username),
		Password: util.Normalize(creds.Password),
	}
	msg, _, err := c.send(ctx, http.MethodPost, c.authURL(), req, callOptions{})
	return msg, err
}

// SubmitVerifier closes the conversation identified by threadID by echoing
// the stored challenge verifier.
func (c *Client) SubmitVerifier(ctx context.Context, threadID string) (*protocol.Message, error) {
	if threadID == "" {
		return nil, protocol.ErrNoThread
	}
	verifier, err := c.store.Verifier()
	if err != nil {
		return nil, err
	}
	if verifier == "" {
		c.logger.Error("verifier exchange without stored verifier", "thread", threadID)
		return nil, protocol.ErrNoVerifier
	}
	req := &protocol.VerifierRequest{
		Thread: protocol.Thread{Thid: threadID},
		Type:   protocol.TypeVerifier,
		CV:     verifier,
	}
	msg, _, err := c.send(ctx, http.MethodPost, c.authURL(), req, callOptions{})
	return msg, err
}

// Login submits credentials for the current login conversation and, unless
// the server hands off to an external provider, completes the verifier
// exchange and commits the session. onSuccess, when given, receives the
// terminal success message after the session is committed.
func (c *Client) Login(ctx context.Context, creds Credentials, onSuccess func(*protocol.Message)) (*Result, error) {
	res, err := c.advanceCredentials(ctx, creds, onSuccess)
	if err != nil {
		c.logger.Error("login failed", "error", err)
	}
	return res, err
}

// Register is Login's counterpart for registration conversations.
func (c *Client) Register(ctx context.Context, creds Credentials, onSuccess func(*protocol.Message)) (*Result, error) {
	res, err := c.advanceCredentials(ctx, creds, onSuccess)
	if err != nil {
		c.logger.Error("registration failed", "error", err)
	}
	return res, err
}

func (c *Client) advanceCredentials(ctx context.Context, creds Credentials, onSuccess func(*protocol.Message)) (*Result, error) {
	first, err := c.SubmitCredentials(ctx, creds)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, protocol.ErrNoData
	}
	if first.Type == protocol.TypeFail {
		return &Result{Message: first}, nil
	}
	if first.Type == protocol.TypeOIDC {
		// External hand-off in progress: record the thread, skip the
		// verifier step, and return the message untouched.
		if thid := first.Thid(); thid != "" {
			if err := c.store.SetThreadID(thid); err != nil {
				return nil, err
			}
		}
		return &Result{Message: first}, nil
	}
	thid := first.Thid()
	if thid == "" {
		return nil, protocol.ErrNoThread
	}
	return c.closeConversation(ctx, thid, onSuccess)
}

// closeConversation performs the verifier exchange on threadID and commits
// the session on success. When an OIDC interception is in progress the
// returned verifier is instead forwarded to the original relying party via
// Result.RedirectURL and no session is committed here.
func (c *Client) closeConversation(ctx context.Context, threadID string, onSuccess func(*protocol.Message)) (*Result, error) {
	second, err := c.SubmitVerifier(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if second == nil {
		return nil, protocol.ErrNoData
	}
	if second.Type == protocol.TypeFail {
		return &Result{Message: second}, nil
	}

	params, err := c.store.OIDCParams()
	if err != nil {
		return nil, err
	}
	if len(params) > 0 && second.Verifier != "" {
		redirect := c.interceptionRedirectURL(params, second.Verifier)
		if err := c.store.ClearOIDCParams(); err != nil {
			return nil, err
		}
		return &Result{Message: second, RedirectURL: redirect}, nil
	}

	return c.finalizeAndNotify(second, onSuccess)
}

// finalizeAndNotify commits a terminal success message and invokes the
// caller's callback. An ~error on the message is authoritative: such a
// reply is returned as failure data and never committed.
func (c *Client) finalizeAndNotify(msg *protocol.Message, onSuccess func(*protocol.Message)) (*Result, error) {
	if msg.Err != nil {
		c.logger.Error("response carries both success and error; treating as failure",
			"type", string(msg.Type), "code", msg.Err.Code)
		return &Result{Message: msg}, nil
	}
	if msg.Type == protocol.TypeSuccess {
		if err := c.FinalizeSession(msg); err != nil {
			return nil, err
		}
		if onSuccess != nil {
			onSuccess(msg)
		}
	}
	return &Result{Message: msg}, nil
}

// SubmitForm posts the full set of labeled input values for a form context
// in one request. Declared must-match field pairs are validated before
// anything is sent. The thread id is updated when the response carries one.
func (c *Client) SubmitForm(ctx context.Context, form *protocol.Message, values map[string]string) (*protocol.Message, error) {
	if err := validateMatches(form, values); err != nil {
		return nil, err
	}
	thid, err := c.store.ThreadID()
	if err != nil {
		return nil, err
	}
	if thid == "" {
		thid = form.Thid()
	}
	if thid == "" {
		return nil, protocol.ErrNoThread
	}

	id := form.ID
	if id == "" {
		id = uuid.NewString()
	}
	req := protocol.FormRequest{
		Thread: protocol.Thread{Thid: thid},
		ID:     id,
		Values: values,
	}
	msg, _, err := c.send(ctx, http.MethodPost, c.authURL(), req, callOptions{})
	if err != nil {
		return nil, err
	}
	if msg != nil && msg.Thid() != "" {
		if err := c.store.SetThreadID(msg.Thid()); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func validateMatches(form *protocol.Message, values map[string]string) error {
	for _, f := range form.Fields {
		if f.Match == "" {
			continue
		}
		if values[f.ID] != values[f.Match] {
			return fmt.Errorf("%w: %s does not match %s", ErrFieldMismatch, f.ID, f.Match)
		}
	}
	return nil
}
