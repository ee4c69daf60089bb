package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gmorandi/membot/internal/history"
	"github.com/gmorandi/membot/internal/reliability"
)

const maxInvokeAttempts = 3

// HTTPInvoker forwards the prompt context to a reply-generating HTTP
// endpoint. Transient upstream failures are retried a bounded number of
// times with capped backoff; everything else surfaces to the caller.
type HTTPInvoker struct {
	url    string
	client *http.Client
}

func NewHTTPInvoker(url string, timeout time.Duration) *HTTPInvoker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPInvoker{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type invokeRequest struct {
	UserID   string            `json:"user_id"`
	Messages []history.Message `json:"messages"`
}

func (a *HTTPInvoker) Invoke(ctx context.Context, userID string, msgs []history.Message) (string, error) {
	payload, err := json.Marshal(invokeRequest{UserID: userID, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("marshal invoke request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxInvokeAttempts; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt-1, 200*time.Millisecond, 2*time.Second)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, retryable, err := a.invokeOnce(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return "", lastErr
}

func (a *HTTPInvoker) invokeOnce(ctx context.Context, payload []byte) (text string, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("create invoke request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(httpReq)
	if err != nil {
		return "", true, fmt.Errorf("send invoke request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("agent http status %d: %s", res.StatusCode, string(body))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", true, fmt.Errorf("read invoke response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		// Plain-text endpoints are accepted as-is.
		return strings.TrimSpace(string(body)), false, nil
	}
	return extractText(obj), false, nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "output", "message", "reply"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
