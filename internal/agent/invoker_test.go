package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gmorandi/membot/internal/history"
)

func TestNewInvokerModeSelection(t *testing.T) {
	inv, err := NewInvoker(Config{Mode: "mock"})
	if err != nil {
		t.Fatalf("NewInvoker(mock) error = %v", err)
	}
	if _, ok := inv.(*MockInvoker); !ok {
		t.Fatalf("mock mode built %T, want *MockInvoker", inv)
	}

	inv, err = NewInvoker(Config{Mode: "auto", HTTPURL: "http://localhost:1/agent"})
	if err != nil {
		t.Fatalf("NewInvoker(auto) error = %v", err)
	}
	if _, ok := inv.(*HTTPInvoker); !ok {
		t.Fatalf("auto mode with URL built %T, want *HTTPInvoker", inv)
	}

	if _, err := NewInvoker(Config{Mode: "http"}); err == nil {
		t.Fatalf("http mode without URL should fail")
	}
}

func TestHTTPInvokerParsesJSONReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello there"}`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, time.Second)
	got, err := inv.Invoke(context.Background(), "u1", []history.Message{
		{Role: history.RoleHuman, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "hello there" {
		t.Fatalf("Invoke() = %q, want %q", got, "hello there")
	}
}

func TestHTTPInvokerAcceptsPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain reply\n"))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, time.Second)
	got, err := inv.Invoke(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "plain reply" {
		t.Fatalf("Invoke() = %q, want %q", got, "plain reply")
	}
}

func TestHTTPInvokerRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"reply":"recovered"}`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, time.Second)
	got, err := inv.Invoke(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "recovered" {
		t.Fatalf("Invoke() = %q, want %q", got, "recovered")
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestHTTPInvokerDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, time.Second)
	if _, err := inv.Invoke(context.Background(), "u1", nil); err == nil {
		t.Fatalf("Invoke() should fail on 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestMockInvokerEchoesLastHumanTurn(t *testing.T) {
	inv := NewMockInvoker()
	got, err := inv.Invoke(context.Background(), "u1", []history.Message{
		{Role: history.RoleHuman, Content: "first"},
		{Role: history.RoleAssistant, Content: "ok"},
		{Role: history.RoleHuman, Content: "second"},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "You said: second\nI also remember: first" {
		t.Fatalf("Invoke() = %q", got)
	}
}
