package flow

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackServerDeliversThread(t *testing.T) {
	s := NewCallbackServer("")
	u, err := s.Start()
	require.NoError(t, err)
	defer s.Stop()

	resp, err := http.Get(u + "?thid=T9")
	require.NoError(t, err)
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), "close this window")

	res, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T9", res.ThreadID)
	assert.Empty(t, res.Error)
}

func TestCallbackServerDeliversProviderError(t *testing.T) {
	s := NewCallbackServer("")
	u, err := s.Start()
	require.NoError(t, err)
	defer s.Stop()

	resp, err := http.Get(u + "?error=access_denied")
	require.NoError(t, err)
	resp.Body.Close()

	res, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.ThreadID)
	assert.Equal(t, "access_denied", res.Error)
}

func TestCallbackServerWaitHonorsContext(t *testing.T) {
	s := NewCallbackServer("")
	_, err := s.Start()
	require.NoError(t, err)
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
