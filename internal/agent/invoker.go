// Package agent bridges the conversation layer with the reply-generating
// LLM endpoint. The endpoint is a black box: it receives the hydrated
// (role, content) context and returns a single reply string.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gmorandi/membot/internal/history"
)

// Invoker produces an assistant reply for the given prompt context. The last
// message is the turn being answered; earlier ones are conversation memory.
type Invoker interface {
	Invoke(ctx context.Context, userID string, msgs []history.Message) (string, error)
}

// Config controls invoker construction.
type Config struct {
	Mode    string
	HTTPURL string
	Timeout time.Duration
}

// NewInvoker selects an invoker by mode: "http" requires an endpoint URL,
// "mock" answers locally, and "auto" picks http when a URL is configured.
func NewInvoker(cfg Config) (Invoker, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPInvoker(cfg.HTTPURL, cfg.Timeout), nil
		}
		return NewMockInvoker(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("agent HTTP url is required for http mode")
		}
		return NewHTTPInvoker(cfg.HTTPURL, cfg.Timeout), nil
	case "mock":
		return NewMockInvoker(), nil
	default:
		return nil, errors.New("unsupported agent mode " + mode)
	}
}
