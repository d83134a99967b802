package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmcleod/latchkey/protocol"
	"github.com/jmcleod/latchkey/session"
	"github.com/jmcleod/latchkey/storage"
)

// refreshLookahead is how far before expiry a token is refreshed, covering
// clock skew and the lifetime of the request the token is fetched for.
const refreshLookahead = 300 * time.Second

// RefreshOptions tunes GetValidAccessToken.
type RefreshOptions struct {
	// RefreshToken, when set and different from the stored one, forces a
	// refresh with this token regardless of expiration.
	RefreshToken string
	// UserID selects the token record; empty means the default user.
	UserID string
}

// GetValidAccessToken returns an access token valid for at least the
// look-ahead window, refreshing it first when needed. At most one refresh
// call is in flight per user at any time; callers arriving while one is
// pending receive its result instead of issuing another request. A failed
// refresh deletes the stored token record before returning, so the next
// call starts clean.
func (c *Client) GetValidAccessToken(ctx context.Context, opts RefreshOptions) (string, error) {
	rec, err := c.store.Tokens(opts.UserID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, session.ErrNoDefaultUser) {
		return "", err
	}

	refreshToken := rec.RefreshToken
	if opts.RefreshToken != "" {
		refreshToken = opts.RefreshToken
	}
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	forced := opts.RefreshToken != "" && opts.RefreshToken != rec.RefreshToken
	if !forced && rec.AccessToken != "" && time.Now().Unix()+int64(refreshLookahead.Seconds()) <= rec.ExpirationTime {
		return rec.AccessToken, nil
	}

	owner := opts.UserID
	if owner == "" {
		owner = rec.UserID
	}
	key := owner
	if key == "" {
		key = "default"
	}
	v, err, shared := c.refreshGroup.Do(key, func() (any, error) {
		return c.refresh(ctx, rec, owner, refreshToken)
	})
	if shared {
		c.logger.Warn("refresh already in flight, sharing its result", "user", key)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) refresh(ctx context.Context, rec session.TokenRecord, owner, refreshToken string) (string, error) {
	msg, status, err := c.send(ctx, http.MethodPost, c.authURL(), &protocol.RefreshRequest{Token: refreshToken}, callOptions{})
	if err == nil {
		switch {
		case msg == nil:
			err = protocol.ErrNoData
		case msg.Type == protocol.TypeFail || msg.Err != nil:
			err = fmt.Errorf("%w: %s", ErrRefreshFailed, failReason(msg))
		case msg.Token == "":
			err = fmt.Errorf("%w: response carries no access token", ErrRefreshFailed)
		}
	}
	if err != nil {
		// The session is over for this user. Clear the record so the next
		// call starts clean instead of retry-looping on a dead token. An
		// empty owner means no record was ever looked up; an empty string
		// would resolve to the default user and wipe an unrelated session.
		c.logger.Error("token refresh failed", "status", status, "error", err)
		if owner != "" {
			if derr := c.store.DeleteTokens(owner); derr != nil {
				c.logger.Error("clearing token record after failed refresh", "error", derr)
			}
		}
		return "", err
	}

	userID := msg.Sub
	exp := msg.ExpirationTime
	if exp == 0 && msg.ExpiresIn > 0 {
		exp = time.Now().Unix() + msg.ExpiresIn
	}
	if userID == "" || exp == 0 {
		if info, ierr := ParseTokenInfo(msg.Token); ierr == nil {
			if userID == "" {
				userID = info.Subject
			}
			if exp == 0 && !info.ExpiresAt.IsZero() {
				exp = info.ExpiresAt.Unix()
			}
		}
	}
	if userID == "" {
		userID = rec.UserID
	}
	if userID == "" {
		return "", fmt.Errorf("%w: cannot determine user id", ErrRefreshFailed)
	}

	newRec := session.TokenRecord{
		UserID:         userID,
		AccessToken:    msg.Token,
		RefreshToken:   refreshToken,
		ExpirationTime: exp,
	}
	// The server may rotate the refresh token; otherwise the one just used
	// is preserved.
	if msg.RefreshToken != "" {
		newRec.RefreshToken = msg.RefreshToken
	}
	if err := c.store.PutTokens(newRec); err != nil {
		return "", err
	}
	return msg.Token, nil
}

func failReason(msg *protocol.Message) string {
	if msg.Err != nil {
		if msg.Err.Msg != "" {
			return msg.Err.Msg
		}
		return msg.Err.Code
	}
	return string(msg.Type)
}
