// Package session persists the artifacts of an authentication conversation
// across two lifetime tiers. The durable tier (token records, challenge
// verifier, OIDC original params, default-user pointer) survives process
// restarts; the ephemeral tier (thread ids, response stack, start URL,
// cached action id, pending response) lives only as long as the process.
// The tiering is a trust decision, not an implementation detail: a verifier
// must outlive the external-IdP redirect that interrupts its conversation,
// while a thread id must not leak into the next session.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/jmcleod/latchkey/protocol"
	"github.com/jmcleod/latchkey/storage"
	"github.com/jmcleod/latchkey/storage/memory"
)

const (
	bucketTokens = "tokens"
	bucketSlots  = "slots"
	bucketStack  = "stack"

	slotDefaultUser = "default_user"
	slotVerifier    = "verifier"
	slotOIDCParams  = "oidc_params"
	slotThread      = "thread"
	slotResetThread = "reset_thread"
	slotStartURL    = "start_url"
	slotActionID    = "action_id"
	slotPending     = "pending_response"
)

// ErrNoDefaultUser is returned when no explicit user id is given and no
// default-user pointer is set.
var ErrNoDefaultUser = errors.New("no default user")

// Store is the persistent session store. All methods are safe for
// concurrent use, but callers must not interleave two conversations of the
// same kind: there is exactly one active thread-id slot per conversation
// kind (main and password-reset).
type Store struct {
	durable   storage.Repository
	ephemeral storage.Repository

	mu    sync.Mutex
	depth int // response stack height
}

// New creates a Store over the given durable repository. Ephemeral state is
// kept in a process-scoped in-memory repository.
func New(durable storage.Repository) *Store {
	return &Store{
		durable:   durable,
		ephemeral: memory.NewRepository(),
	}
}

// PutTokens stores rec, replacing any existing record for the same user.
func (s *Store) PutTokens(rec TokenRecord) error {
	if rec.UserID == "" {
		return errors.New("token record requires a user id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.durable.Put(bucketTokens, rec.UserID, data)
}

// Tokens returns the record for userID, or for the default user when
// userID is empty.
func (s *Store) Tokens(userID string) (TokenRecord, error) {
	if userID == "" {
		var err error
		userID, err = s.DefaultUser()
		if err != nil {
			return TokenRecord{}, err
		}
	}
	data, err := s.durable.Get(bucketTokens, userID)
	if err != nil {
		return TokenRecord{}, err
	}
	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return TokenRecord{}, fmt.Errorf("decoding token record for %s: %w", userID, err)
	}
	return rec, nil
}

// DeleteTokens removes the record for userID (default user when empty). A
// missing record is not an error. If the default-user pointer referred to
// the deleted record it is cleared as well.
func (s *Store) DeleteTokens(userID string) error {
	if userID == "" {
		var err error
		userID, err = s.DefaultUser()
		if err != nil {
			if errors.Is(err, ErrNoDefaultUser) {
				return nil
			}
			return err
		}
	}
	if err := s.durable.Delete(bucketTokens, userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if def, err := s.DefaultUser(); err == nil && def == userID {
		return s.ClearDefaultUser()
	}
	return nil
}

// SetDefaultUser points token operations without an explicit user id at
// userID.
func (s *Store) SetDefaultUser(userID string) error {
	return s.durable.Put(bucketSlots, slotDefaultUser, []byte(userID))
}

// DefaultUser returns the current default user id.
func (s *Store) DefaultUser() (string, error) {
	data, err := s.durable.Get(bucketSlots, slotDefaultUser)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNoDefaultUser
	}
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrNoDefaultUser
	}
	return string(data), nil
}

// ClearDefaultUser removes the default-user pointer.
func (s *Store) ClearDefaultUser() error {
	err := s.durable.Delete(bucketSlots, slotDefaultUser)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// SetConversation records the thread id and the verifier whose challenge
// produced it. The verifier is written first; the thread id is recorded
// only if that write succeeded, so a stored thread id always has its
// verifier alongside.
func (s *Store) SetConversation(threadID, verifier string) error {
	if err := s.durable.Put(bucketSlots, slotVerifier, []byte(verifier)); err != nil {
		return fmt.Errorf("storing verifier: %w", err)
	}
	return s.ephemeral.Put(bucketSlots, slotThread, []byte(threadID))
}

// SetThreadID overwrites the active thread id without touching the
// verifier. Used when a mid-conversation response reissues the thread.
func (s *Store) SetThreadID(threadID string) error {
	return s.ephemeral.Put(bucketSlots, slotThread, []byte(threadID))
}

// ThreadID returns the active thread id, or "" when no conversation is in
// progress.
func (s *Store) ThreadID() (string, error) {
	return s.slot(s.ephemeral, slotThread)
}

// Verifier returns the stored challenge verifier, or "" if none.
func (s *Store) Verifier() (string, error) {
	return s.slot(s.durable, slotVerifier)
}

// SetResetConversation records the password-reset thread id together with
// its verifier, with the same write ordering as SetConversation. The reset
// thread is kept apart from the main thread; the two are never mixed.
func (s *Store) SetResetConversation(threadID, verifier string) error {
	if err := s.durable.Put(bucketSlots, slotVerifier, []byte(verifier)); err != nil {
		return fmt.Errorf("storing verifier: %w", err)
	}
	return s.ephemeral.Put(bucketSlots, slotResetThread, []byte(threadID))
}

// SetResetThreadID overwrites the password-reset thread id.
func (s *Store) SetResetThreadID(threadID string) error {
	return s.ephemeral.Put(bucketSlots, slotResetThread, []byte(threadID))
}

// ResetThreadID returns the password-reset thread id, or "".
func (s *Store) ResetThreadID() (string, error) {
	return s.slot(s.ephemeral, slotResetThread)
}

// SetStartURL records the URL the current flow was started from.
func (s *Store) SetStartURL(u string) error {
	return s.ephemeral.Put(bucketSlots, slotStartURL, []byte(u))
}

// StartURL returns the recorded flow start URL, or "".
func (s *Store) StartURL() (string, error) {
	return s.slot(s.ephemeral, slotStartURL)
}

// SetActionID caches the id of an action option offered by a logical
// message, for later action-driven steps such as "forgot password".
func (s *Store) SetActionID(id string) error {
	return s.ephemeral.Put(bucketSlots, slotActionID, []byte(id))
}

// ActionID returns the cached action id, or "".
func (s *Store) ActionID() (string, error) {
	return s.slot(s.ephemeral, slotActionID)
}

// SetPendingResponse caches msg for reuse by the next Setup call. Set when
// an OIDC hand-off interrupts a conversation that must resume later.
func (s *Store) SetPendingResponse(msg *protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.ephemeral.Put(bucketSlots, slotPending, data)
}

// TakePendingResponse returns the cached pending response and clears it.
// Returns nil when none is cached.
func (s *Store) TakePendingResponse() (*protocol.Message, error) {
	data, err := s.ephemeral.Get(bucketSlots, slotPending)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.ephemeral.Delete(bucketSlots, slotPending); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding pending response: %w", err)
	}
	return &msg, nil
}

// SetOIDCParams stores the original external-IdP redirect query while a
// third-party OIDC interception is in progress. Durable: the interception
// spans a full redirect round trip.
func (s *Store) SetOIDCParams(params url.Values) error {
	return s.durable.Put(bucketSlots, slotOIDCParams, []byte(params.Encode()))
}

// OIDCParams returns the stored original redirect query, or nil if none.
func (s *Store) OIDCParams() (url.Values, error) {
	raw, err := s.slot(s.durable, slotOIDCParams)
	if err != nil || raw == "" {
		return nil, err
	}
	return url.ParseQuery(raw)
}

// ClearOIDCParams removes the stored original redirect query.
func (s *Store) ClearOIDCParams() error {
	err := s.durable.Delete(bucketSlots, slotOIDCParams)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// PushResponse appends msg to the response stack.
func (s *Store) PushResponse(msg *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.ephemeral.Put(bucketStack, strconv.Itoa(s.depth), data); err != nil {
		return err
	}
	s.depth++
	return nil
}

// PopResponse removes and returns the most recently pushed message. If the
// popped message embeds a thread id, that id becomes the active thread
// again; otherwise the current thread id is left untouched. Returns nil
// when the stack is empty.
func (s *Store) PopResponse() (*protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth == 0 {
		return nil, nil
	}
	key := strconv.Itoa(s.depth - 1)
	data, err := s.ephemeral.Get(bucketStack, key)
	if err != nil {
		return nil, err
	}
	if err := s.ephemeral.Delete(bucketStack, key); err != nil {
		return nil, err
	}
	s.depth--
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding stacked response: %w", err)
	}
	if thid := msg.Thid(); thid != "" {
		if err := s.ephemeral.Put(bucketSlots, slotThread, []byte(thid)); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}

// ClearConversation drops all transient conversation state: thread ids,
// verifier, cached action id, pending response and the response stack.
// Token records and the default-user pointer are untouched.
func (s *Store) ClearConversation() error {
	s.mu.Lock()
	for s.depth > 0 {
		s.depth--
		if err := s.ephemeral.Delete(bucketStack, strconv.Itoa(s.depth)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	for _, del := range []struct {
		repo storage.Repository
		key  string
	}{
		{s.ephemeral, slotThread},
		{s.ephemeral, slotResetThread},
		{s.ephemeral, slotActionID},
		{s.ephemeral, slotPending},
		{s.durable, slotVerifier},
	} {
		if err := del.repo.Delete(bucketSlots, del.key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *Store) slot(repo storage.Repository, key string) (string, error) {
	data, err := repo.Get(bucketSlots, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
