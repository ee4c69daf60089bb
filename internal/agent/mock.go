package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/gmorandi/membot/internal/history"
)

// MockInvoker provides deterministic local replies when no agent endpoint is
// configured.
type MockInvoker struct{}

func NewMockInvoker() *MockInvoker { return &MockInvoker{} }

func (a *MockInvoker) Invoke(ctx context.Context, _ string, msgs []history.Message) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return buildMockReply(msgs), nil
}

func buildMockReply(msgs []history.Message) string {
	current := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == history.RoleHuman {
			current = strings.TrimSpace(msgs[i].Content)
			break
		}
	}
	if current == "" {
		return "I am listening."
	}

	// Echo the earliest remembered line so context plumbing is visible in dev.
	earliest := strings.TrimSpace(msgs[0].Content)
	if len(msgs) > 1 && earliest != "" && earliest != current {
		return fmt.Sprintf("You said: %s\nI also remember: %s", current, earliest)
	}
	return fmt.Sprintf("You said: %s", current)
}
