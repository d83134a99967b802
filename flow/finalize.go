package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmcleod/latchkey/protocol"
	"github.com/jmcleod/latchkey/session"
)

// FinalizeSession commits the token payload of a terminal success message:
// the token record is stored, the user becomes the default user, and all
// transient conversation state is cleared, including any stored OIDC
// interception params. A message that is not exactly
// of type success, or that carries an ~error, is never committed.
func (c *Client) FinalizeSession(msg *protocol.Message) error {
	if msg == nil {
		return protocol.ErrNoData
	}
	if msg.Type != protocol.TypeSuccess {
		return fmt.Errorf("cannot finalize %q message", msg.Type)
	}
	if msg.Err != nil {
		return fmt.Errorf("success message carries error %s: %s", msg.Err.Code, msg.Err.Msg)
	}

	userID := msg.Sub
	exp := msg.ExpirationTime
	if exp == 0 && msg.ExpiresIn > 0 {
		exp = time.Now().Unix() + msg.ExpiresIn
	}
	if userID == "" || exp == 0 {
		if info, err := ParseTokenInfo(msg.Token); err == nil {
			if userID == "" {
				userID = info.Subject
			}
			if exp == 0 && !info.ExpiresAt.IsZero() {
				exp = info.ExpiresAt.Unix()
			}
		}
	}
	if userID == "" {
		return errors.New("success message carries no subject")
	}

	rec := session.TokenRecord{
		UserID:         userID,
		AccessToken:    msg.Token,
		RefreshToken:   msg.RefreshToken,
		ExpirationTime: exp,
	}
	if err := c.store.PutTokens(rec); err != nil {
		return err
	}
	if err := c.store.SetDefaultUser(userID); err != nil {
		return err
	}
	if err := c.store.ClearOIDCParams(); err != nil {
		return err
	}
	return c.store.ClearConversation()
}

// Logout deletes the token record for userID (default user when empty) and
// drops all conversation state, including any pending OIDC interception.
func (c *Client) Logout(userID string) error {
	if err := c.store.DeleteTokens(userID); err != nil {
		return err
	}
	if err := c.store.ClearOIDCParams(); err != nil {
		return err
	}
	return c.store.ClearConversation()
}
