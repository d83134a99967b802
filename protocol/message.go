// Package protocol defines the wire messages exchanged with the
// authentication server. Every response is a discriminated union keyed by
// the "@type" tag; every non-initial message carries a "~thread" envelope
// whose thid must accompany the next outbound call.
package protocol

import "encoding/json"

// Type discriminates the message union.
type Type string

const (
	// TypeForm describes one or more input fields the caller must fill in.
	TypeForm Type = "form"
	// TypeLogical offers alternative next steps (form, action or oidc).
	TypeLogical Type = "logical"
	// TypeAction names a single next step, e.g. "forgotten".
	TypeAction Type = "action"
	// TypeOIDC hands the conversation off to an external identity provider.
	TypeOIDC Type = "oidc"
	// TypeVerifier asks the client to echo back its challenge verifier.
	TypeVerifier Type = "verifier"
	// TypeWebAuthn carries browser credential-ceremony parameters.
	TypeWebAuthn Type = "webauthn"
	// TypeSuccess is terminal and carries the token payload.
	TypeSuccess Type = "success"
	// TypeFail reports a terminal or recoverable error.
	TypeFail Type = "fail"
)

// Thread identifies one in-progress server conversation.
type Thread struct {
	Thid string `json:"thid"`
}

// Error is the machine-readable error object attached to fail messages.
type Error struct {
	Code       string         `json:"code,omitempty"`
	Msg        string         `json:"msg,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Field describes one input of a form message. Match, when set, names
// another field whose submitted value must equal this one.
type Field struct {
	ID       string `json:"@id"`
	Hint     string `json:"hint,omitempty"`
	Required bool   `json:"required,omitempty"`
	Match    string `json:"match,omitempty"`
}

// Option is one alternative next step inside a logical message.
type Option struct {
	Type   Type    `json:"@type"`
	ID     string  `json:"@id,omitempty"`
	Name   string  `json:"name,omitempty"`
	URL    string  `json:"url,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

// Message is a server protocol message. Which fields are populated depends
// on Type; unused fields decode to their zero value.
type Message struct {
	Type   Type    `json:"@type"`
	ID     string  `json:"@id,omitempty"`
	Thread *Thread `json:"~thread,omitempty"`
	Err    *Error  `json:"~error,omitempty"`

	// form
	Fields []Field `json:"fields,omitempty"`

	// logical
	Opts []Option `json:"opts,omitempty"`

	// action
	Name string `json:"name,omitempty"`

	// oidc
	URL      string `json:"url,omitempty"`
	Provider string `json:"prv,omitempty"`

	// webauthn ceremony parameters, shuttled opaquely to the authenticator
	PublicKey json.RawMessage `json:"publicKey,omitempty"`

	// success payload
	Sub            string `json:"sub,omitempty"`
	Token          string `json:"token,omitempty"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	TokenType      string `json:"token_type,omitempty"`
	ExpirationTime int64  `json:"expiration_time,omitempty"`
	ExpiresIn      int64  `json:"expires_in,omitempty"`
	Verifier       string `json:"verifier,omitempty"`
	RedirectTo     string `json:"redirect_to,omitempty"`
}

// Thid returns the thread id carried by the message, or "" if none.
func (m *Message) Thid() string {
	if m == nil || m.Thread == nil {
		return ""
	}
	return m.Thread.Thid
}

// Terminal reports whether the message ends the conversation.
func (m *Message) Terminal() bool {
	return m.Type == TypeSuccess || m.Type == TypeFail
}

// ActionOption returns the first action-tagged option of a logical
// message, or nil.
func (m *Message) ActionOption() *Option {
	if m.Type != TypeLogical {
		return nil
	}
	for i := range m.Opts {
		if m.Opts[i].Type == TypeAction {
			return &m.Opts[i]
		}
	}
	return nil
}
