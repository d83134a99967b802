package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jmcleod/latchkey/protocol"
)

// Version is sent with every request so the server can reject incompatible
// clients.
const Version = "0.3.0"

const (
	headerVersion = "X-Client-Version"
	headerAction  = "X-Action-Name"
)

type callOptions struct {
	actionName string
	bearer     string
}

// send performs one server call and returns the decoded protocol message
// together with the HTTP status. It never retries and attaches no meaning
// to the status: interpretation is the caller's job. A reply without a
// body yields a nil message. GET requests never carry a body.
func (c *Client) send(ctx context.Context, method, url string, body any, opts callOptions) (*protocol.Message, int, error) {
	var reader io.Reader
	if body != nil && method != http.MethodGet {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerVersion, Version)
	if opts.actionName != "" {
		req.Header.Set(headerAction, opts.actionName)
	}
	if opts.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+opts.bearer)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, resp.StatusCode, nil
	}

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Error("undecodable server response", "status", resp.StatusCode, "body", string(data))
		return nil, resp.StatusCode, fmt.Errorf("decoding server response: %w", err)
	}
	return &msg, resp.StatusCode, nil
}
