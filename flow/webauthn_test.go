package flow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/latchkey/protocol"
)

type scriptedAuthenticator struct {
	gotOptions json.RawMessage
	response   json.RawMessage
	err        error
}

func (a *scriptedAuthenticator) Respond(_ context.Context, options json.RawMessage) (json.RawMessage, error) {
	a.gotOptions = options
	return a.response, a.err
}

func TestHandleWebAuthnRelaysCeremony(t *testing.T) {
	f := newFakeServer(t, func(body map[string]any) any {
		switch body["@type"] {
		case "webauthn":
			cred, ok := body["publicKeyCredential"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "cred-1", cred["id"])
			return map[string]any{"@type": "verifier", "~thread": threadOf("T1")}
		case "verifier":
			return map[string]any{
				"@type":           "success",
				"sub":             "u9",
				"token":           "tok",
				"expiration_time": 99999,
			}
		default:
			t.Errorf("unexpected request: %v", body)
			return nil
		}
	})
	c := newTestClient(t, f)
	require.NoError(t, c.Store().SetConversation("T1", "v"))

	auth := &scriptedAuthenticator{response: json.RawMessage(`{"id":"cred-1"}`)}
	msg := &protocol.Message{
		Type:      protocol.TypeWebAuthn,
		Thread:    &protocol.Thread{Thid: "T1"},
		PublicKey: json.RawMessage(`{"challenge":"abc"}`),
	}

	called := false
	res, err := c.HandleWebAuthn(context.Background(), msg, auth, func(*protocol.Message) { called = true })
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeSuccess, res.Message.Type)
	assert.True(t, called)
	assert.JSONEq(t, `{"challenge":"abc"}`, string(auth.gotOptions))

	rec, err := c.Store().Tokens("u9")
	require.NoError(t, err)
	assert.Equal(t, "tok", rec.AccessToken)
}

func TestHandleWebAuthnIntermediateStep(t *testing.T) {
	f := newFakeServer(t, func(body map[string]any) any {
		return map[string]any{"@type": "webauthn", "~thread": threadOf("T2"), "publicKey": map[string]any{"challenge": "next"}}
	})
	c := newTestClient(t, f)
	require.NoError(t, c.Store().SetConversation("T1", "v"))

	auth := &scriptedAuthenticator{response: json.RawMessage(`{"id":"cred-1"}`)}
	msg := &protocol.Message{Type: protocol.TypeWebAuthn, PublicKey: json.RawMessage(`{}`)}

	res, err := c.HandleWebAuthn(context.Background(), msg, auth, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeWebAuthn, res.Message.Type)

	// The reissued thread becomes the active one.
	thid, err := c.Store().ThreadID()
	require.NoError(t, err)
	assert.Equal(t, "T2", thid)
}

func TestHandleWebAuthnRejectsWrongMessage(t *testing.T) {
	f := newFakeServer(t, func(body map[string]any) any { return nil })
	c := newTestClient(t, f)

	_, err := c.HandleWebAuthn(context.Background(), &protocol.Message{Type: protocol.TypeForm}, &scriptedAuthenticator{}, nil)
	require.Error(t, err)
	assert.Equal(t, 0, f.calls())
}
