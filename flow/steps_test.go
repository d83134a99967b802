package flow

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/latchkey/protocol"
	"github.com/jmcleod/latchkey/storage"
)

// scriptedServer walks the full login state machine: setup issues a form,
// credentials yield a verifier step, the verifier exchange succeeds.
func loginScript(t *testing.T) func(body map[string]any) any {
	return func(body map[string]any) any {
		switch {
		case body["cc"] != nil:
			return map[string]any{"@type": "form", "@id": "login-form", "~thread": threadOf("T1")}
		case body["@type"] == "form":
			if body["username"] == "" || body["password"] == "" {
				t.Error("credentials request missing username/password")
			}
			return map[string]any{"@type": "verifier", "~thread": threadOf("T1")}
		case body["@type"] == "verifier":
			if cv, _ := body["cv"].(string); len(cv) != 43 {
				t.Errorf("verifier exchange sent cv of length %d", len(cv))
			}
			return map[string]any{
				"@type":           "success",
				"sub":             "u9",
				"token":           "tok",
				"refresh_token":   "ref",
				"expiration_time": 99999,
			}
		default:
			t.Errorf("unexpected request: %v", body)
			return nil
		}
	}
}

func TestLoginHappyPath(t *testing.T) {
	f := newFakeServer(t, loginScript(t))
	c := newTestClient(t, f)

	_, err := c.Setup(context.Background(), FlowLogin, SetupOptions{})
	require.NoError(t, err)

	var got *protocol.Message
	res, err := c.Login(context.Background(), Credentials{FormID: "login-form", Username: "alice", Password: "pw"}, func(msg *protocol.Message) {
		got = msg
	})
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, protocol.TypeSuccess, res.Message.Type)
	assert.Empty(t, res.RedirectURL)

	// The success callback received exactly the terminal payload.
	require.NotNil(t, got)
	assert.Equal(t, "u9", got.Sub)
	assert.Equal(t, "tok", got.Token)

	// The finalizer committed the token record and the default user.
	rec, err := c.Store().Tokens("")
	require.NoError(t, err)
	assert.Equal(t, "u9", rec.UserID)
	assert.Equal(t, "tok", rec.AccessToken)
	assert.Equal(t, "ref", rec.RefreshToken)
	assert.Equal(t, int64(99999), rec.ExpirationTime)

	// Transient conversation state is gone.
	thid, err := c.Store().ThreadID()
	require.NoError(t, err)
	assert.Empty(t, thid)
	verifier, err := c.Store().Verifier()
	require.NoError(t, err)
	assert.Empty(t, verifier)
}

func TestLoginOIDCHandoff(t *testing.T) {
	f := newFakeServer(t, func(body map[string]any) any {
		switch {
		case body["cc"] != nil:
			return map[string]any{"@type": "form", "~thread": threadOf("T1")}
		case body["@type"] == "form":
			return map[string]any{"@type": "oidc", "~thread": threadOf("T2"), "url": "https://idp.example.com/auth", "prv": "example"}
		default:
			t.Errorf("verifier must not be exchanged during an OIDC hand-off, got: %v", body)
			return nil
		}
	})
	c := newTestClient(t, f)

	_, err := c.Setup(context.Background(), FlowLogin, SetupOptions{})
	require.NoError(t, err)

	called := false
	res, err := c.Login(context.Background(), Credentials{Username: "alice", Password: "pw"}, func(*protocol.Message) { called = true })
	require.NoError(t, err)

	// The oidc message is returned unchanged and T2 becomes the active thread.
	assert.Equal(t, protocol.TypeOIDC, res.Message.Type)
	assert.Equal(t, "https://idp.example.com/auth", res.Message.URL)
	assert.False(t, called)
	thid, err := c.Store().ThreadID()
	require.NoError(t, err)
	assert.Equal(t, "T2", thid)

	// Exactly setup + credentials were sent.
	assert.Equal(t, 2, f.calls())
}

func TestLoginFailIsData(t *testing.T) {
	f := newFakeServer(t, func(body map[string]any) any {
		if body["cc"] != nil {
			return map[string]any{"@type": "form", "~thread": threadOf("T1")}
		}
		return map[string]any{"@type": "fail", "~error": map[string]any{"code": "invalid_credentials", "msg": "wrong password"}}
	})
	c := newTestClient(t, f)

	_, err := c.Setup(context.Background(), FlowLogin, SetupOptions{})
	require.NoError(t, err)

	res, err := c.Login(context.Background(), Credentials{Username: "alice", Password: "nope"}, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeFail, res.Message.Type)
	assert.Equal(t, "invalid_credentials", res.Message.Err.Code)
}

func TestSubmitCredentialsWithoutConversation(t *testing.T) {
	f := newFakeServer(t, func(body map[string]any) any { return nil })
	c := newTestClient(t, f)

	_, err := c.SubmitCredentials(context.Background(), Credentials{Username: "a", Password: "b"})
	require.ErrorIs(t, err, protocol.ErrNoThread)
	assert.Equal(t, 0, f.calls())
}

func TestSubmitVerifierWithoutVerifier(t *testing.T) {
	f := newFakeServer(t, func(body map[string]any) any { return nil })
	c := newTestClient(t, f)

	_, err := c.SubmitVerifier(context.Background(), "T1")
	require.ErrorIs(t, err, protocol.ErrNoVerifier)
	assert.Equal(t, 0, f.calls())
}

func TestSuccessWithErrorIsNotCommitted(t *testing.T) {
	f := newFakeServer(t, func(body map[string]any) any {
		switch {
		case body["cc"] != nil:
			return map[string]any{"@type": "form", "~thread": threadOf("T1")}
		case body["@type"] == "form":
			return map[string]any{"@type": "verifier", "~thread": threadOf("T1")}
		default:
			// Divergent reply: success type carrying an error object.
			return map[string]any{
				"@type":  "success",
				"sub":    "u1",
				"token":  "tok",
				"~error": map[string]any{"code": "conflict"},
			}
		}
	})
	c := newTestClient(t, f)

	_, err := c.Setup(context.Background(), FlowLogin, SetupOptions{})
	require.NoError(t, err)

	called := false
	res, err := c.Login(context.Background(), Credentials{Username: "a", Password: "b"}, func(*protocol.Message) { called = true })
	require.NoError(t, err)
	assert.False(t, called, "error-carrying reply must not invoke the success callback")
	require.NotNil(t, res.Message.Err)

	_, err = c.Store().Tokens("u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoginInterceptionRedirect(t *testing.T) {
	f := newFakeServer(t, func(body map[string]any) any {
		switch {
		case body["cc"] != nil:
			return map[string]any{"@type": "form", "~thread": threadOf("T1")}
		case body["@type"] == "form":
			return map[string]any{"@type": "verifier", "~thread": threadOf("T1")}
		default:
			return map[string]any{"@type": "success", "sub": "u1", "token": "tok", "verifier": "rp-verifier"}
		}
	})
	c := newTestClient(t, f)

	require.NoError(t, c.InterceptOIDC(url.Values{"login_challenge": {"lc-1"}}))
	_, err := c.Setup(context.Background(), FlowLogin, SetupOptions{})
	require.NoError(t, err)

	called := false
	res, err := c.Login(context.Background(), Credentials{Username: "a", Password: "b"}, func(*protocol.Message) { called = true })
	require.NoError(t, err)
	assert.False(t, called, "interception must never invoke the success callback")
	require.NotEmpty(t, res.RedirectURL)

	u, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "rp-verifier", u.Query().Get("verifier"))
	assert.Equal(t, "lc-1", u.Query().Get("login_challenge"))

	// The interception is concluded: params cleared.
	params, err := c.Store().OIDCParams()
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestLoginSuccessDropsStoredInterception(t *testing.T) {
	f := newFakeServer(t, loginScript(t))
	c := newTestClient(t, f)

	// An interception whose success reply carries no verifier concludes as a
	// plain local session; the stored params must not linger.
	require.NoError(t, c.InterceptOIDC(url.Values{"login_challenge": {"lc-1"}}))
	_, err := c.Setup(context.Background(), FlowLogin, SetupOptions{})
	require.NoError(t, err)

	res, err := c.Login(context.Background(), Credentials{Username: "alice", Password: "pw"}, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeSuccess, res.Message.Type)
	assert.Empty(t, res.RedirectURL)

	params, err := c.Store().OIDCParams()
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestSubmitFormValidatesMatches(t *testing.T) {
	f := newFakeServer(t, func(body map[string]any) any { return nil })
	c := newTestClient(t, f)
	require.NoError(t, c.Store().SetConversation("T1", "v"))

	form := &protocol.Message{
		Type: protocol.TypeForm,
		ID:   "reg",
		Fields: []protocol.Field{
			{ID: "password"},
			{ID: "password_confirm", Match: "password"},
		},
	}
	_, err := c.SubmitForm(context.Background(), form, map[string]string{
		"password":         "one",
		"password_confirm": "two",
	})
	require.ErrorIs(t, err, ErrFieldMismatch)
	assert.Equal(t, 0, f.calls(), "mismatched input must fail before anything is sent")
}

func TestSubmitFormUpdatesThread(t *testing.T) {
	f := newFakeServer(t, func(body map[string]any) any {
		return map[string]any{"@type": "form", "~thread": threadOf("T2")}
	})
	c := newTestClient(t, f)
	require.NoError(t, c.Store().SetConversation("T1", "v"))

	form := &protocol.Message{Type: protocol.TypeForm, ID: "step-2", Fields: []protocol.Field{{ID: "email"}}}
	msg, err := c.SubmitForm(context.Background(), form, map[string]string{"email": "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, "T2", msg.Thid())

	body := f.body(0)
	assert.Equal(t, "a@b.c", body["email"])
	assert.Equal(t, "step-2", body["@id"])

	thid, err := c.Store().ThreadID()
	require.NoError(t, err)
	assert.Equal(t, "T2", thid)
}
