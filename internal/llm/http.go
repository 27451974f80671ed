package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soyeahso/roombot/internal/version"
)

const maxErrorBody = 2048

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}

// postJSON sends body to url and decodes a 2xx response into out. Non-2xx
// statuses and transport failures come back as *ProviderError.
func postJSON(ctx context.Context, hc *http.Client, provider, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ProviderError{Provider: provider, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ProviderError{Provider: provider, Code: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: provider, Code: resp.StatusCode, Message: "failed to parse response: " + err.Error()}
	}
	return nil
}
