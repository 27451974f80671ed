package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/soyeahso/roombot/internal/version"
)

// DefaultAPIBaseURL is the Slack Web API root.
const DefaultAPIBaseURL = "https://slack.com/api/"

// APIError is a Web API response with ok=false.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type connectionsOpenResponse struct {
	apiResponse
	URL string `json:"url"`
}

type authTestResponse struct {
	apiResponse
	UserID string `json:"user_id"`
	BotID  string `json:"bot_id"`
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type postMessageResponse struct {
	apiResponse
	TS string `json:"ts"`
}

// call POSTs a JSON body to a Web API method with the given token and
// decodes the response into out.
func (c *Channel) call(ctx context.Context, method, token string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding %s request: %w", method, err)
		}
	}

	url := strings.TrimRight(c.baseURL(), "/") + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack %s: HTTP %d", method, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}

// openConnection asks for a fresh Socket Mode WebSocket URL.
func (c *Channel) openConnection(ctx context.Context) (string, error) {
	var out connectionsOpenResponse
	if err := c.call(ctx, "apps.connections.open", c.cfg.AppToken, nil, &out); err != nil {
		return "", err
	}
	if !out.OK {
		return "", &APIError{Method: "apps.connections.open", Code: out.Error}
	}
	return out.URL, nil
}

// authTest resolves the bot's own user id.
func (c *Channel) authTest(ctx context.Context) (string, error) {
	var out authTestResponse
	if err := c.call(ctx, "auth.test", c.cfg.BotToken, nil, &out); err != nil {
		return "", err
	}
	if !out.OK {
		return "", &APIError{Method: "auth.test", Code: out.Error}
	}
	return out.UserID, nil
}

func (c *Channel) postMessage(ctx context.Context, channel, text, threadTS string) error {
	var out postMessageResponse
	req := postMessageRequest{Channel: channel, Text: text, ThreadTS: threadTS}
	if err := c.call(ctx, "chat.postMessage", c.cfg.BotToken, req, &out); err != nil {
		return err
	}
	if !out.OK {
		return &APIError{Method: "chat.postMessage", Code: out.Error}
	}
	return nil
}
