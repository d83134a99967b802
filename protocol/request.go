package protocol

import "encoding/json"

// Arg selects the flow a new conversation is for.
type Arg struct {
	Flow string `json:"flow"`
}

// SetupRequest opens a new conversation. Challenge is the PKCE-style
// challenge whose verifier will close the conversation later; Token, when
// set, carries an external login challenge or a one-time token (password
// reset).
type SetupRequest struct {
	Challenge string `json:"cc"`
	Tenant    string `json:"~tenant,omitempty"`
	Arg       *Arg   `json:"~arg,omitempty"`
	Token     string `json:"~token,omitempty"`
}

// CredentialsRequest answers a form message with username and password.
type CredentialsRequest struct {
	Thread   Thread `json:"~thread"`
	Type     Type   `json:"@type"`
	ID       string `json:"@id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// VerifierRequest closes a conversation by echoing the challenge verifier.
type VerifierRequest struct {
	Thread Thread `json:"~thread"`
	Type   Type   `json:"@type"`
	CV     string `json:"cv"`
}

// ActionRequest invokes a named next step offered by a logical message.
type ActionRequest struct {
	Thread Thread `json:"~thread"`
	Type   Type   `json:"@type"`
	ID     string `json:"@id"`
	Action string `json:"action"`
}

// RefreshRequest exchanges a refresh token for a fresh access token.
type RefreshRequest struct {
	Token string `json:"~token"`
}

// FormRequest submits arbitrary labeled input values for a form context in
// a single request. MarshalJSON flattens Values next to the envelope
// fields, matching the declared input ids on the wire.
type FormRequest struct {
	Thread Thread
	ID     string
	Values map[string]string
}

// MarshalJSON implements json.Marshaler.
func (r FormRequest) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Values)+3)
	for k, v := range r.Values {
		body[k] = v
	}
	body["~thread"] = r.Thread
	body["@type"] = TypeForm
	if r.ID != "" {
		body["@id"] = r.ID
	}
	return json.Marshal(body)
}

// WebAuthnRequest relays the authenticator's credential response back to
// the server.
type WebAuthnRequest struct {
	Thread     Thread `json:"~thread"`
	Type       Type   `json:"@type"`
	Credential any    `json:"publicKeyCredential"`
}
