package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gmorandi/membot/internal/conversation"
	"github.com/gmorandi/membot/internal/history"
	"github.com/gmorandi/membot/internal/observability"
)

type stubInvoker struct {
	reply string
	err   error
}

func (i *stubInvoker) Invoke(_ context.Context, _ string, _ []history.Message) (string, error) {
	if i.err != nil {
		return "", i.err
	}
	return i.reply, nil
}

func newTestServer(t *testing.T, invoker *stubInvoker) (*httptest.Server, *history.InMemoryStore) {
	t.Helper()
	store := history.NewInMemoryStore()
	cache := history.NewCache(history.DefaultMaxUsers, history.DefaultTurnsPerUser, nil)
	svc := conversation.NewService(cache, store, invoker, nil, observability.NewTurnStageWindow(64), conversation.Options{})
	srv := New(svc, observability.NewTurnStageWindow(64))

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return res
}

func TestHealthAndPerfRoutes(t *testing.T) {
	ts, _ := newTestServer(t, &stubInvoker{reply: "ok"})

	for _, path := range []string{"/healthz", "/readyz", "/v1/perf/latency"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, res.StatusCode, http.StatusOK)
		}
	}
}

func TestMessageRequiresRegistration(t *testing.T) {
	ts, _ := newTestServer(t, &stubInvoker{reply: "hi there"})

	res := postJSON(t, ts.URL+"/v1/users/u1/messages", map[string]string{"content": "hello"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
}

func TestContactThenMessageFlow(t *testing.T) {
	ts, store := newTestServer(t, &stubInvoker{reply: "hi there"})

	res := postJSON(t, ts.URL+"/v1/users/u1/contact", map[string]string{
		"phone_number": "+100",
		"first_name":   "Ada",
	})
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("contact status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	regRes, err := http.Get(ts.URL + "/v1/users/u1/registered")
	if err != nil {
		t.Fatalf("GET registered error = %v", err)
	}
	defer regRes.Body.Close()
	var reg map[string]any
	if err := json.NewDecoder(regRes.Body).Decode(&reg); err != nil {
		t.Fatalf("decode registered response: %v", err)
	}
	if reg["registered"] != true {
		t.Fatalf("registered = %v, want true", reg["registered"])
	}

	msgRes := postJSON(t, ts.URL+"/v1/users/u1/messages", map[string]string{"content": "hello"})
	defer msgRes.Body.Close()
	if msgRes.StatusCode != http.StatusOK {
		t.Fatalf("message status = %d, want %d", msgRes.StatusCode, http.StatusOK)
	}
	var msg messageResponse
	if err := json.NewDecoder(msgRes.Body).Decode(&msg); err != nil {
		t.Fatalf("decode message response: %v", err)
	}
	if msg.Reply != "hi there" {
		t.Fatalf("reply = %q, want %q", msg.Reply, "hi there")
	}
	// Contact turn + human turn + assistant turn.
	if len(msg.Context) != 3 {
		t.Fatalf("context len = %d, want 3", len(msg.Context))
	}

	profile, ok := store.ProfileOf("u1")
	if !ok || profile.FirstName != "Ada" {
		t.Fatalf("profile = %+v, want FirstName Ada", profile)
	}
}

func TestMessageRejectsUnknownKind(t *testing.T) {
	ts, _ := newTestServer(t, &stubInvoker{reply: "ok"})

	postJSON(t, ts.URL+"/v1/users/u1/contact", map[string]string{}).Body.Close()

	res := postJSON(t, ts.URL+"/v1/users/u1/messages", map[string]string{
		"content": "hello",
		"kind":    "carrier_pigeon",
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestAgentFailureReturnsBadGateway(t *testing.T) {
	ts, _ := newTestServer(t, &stubInvoker{err: errors.New("model overloaded")})

	postJSON(t, ts.URL+"/v1/users/u1/contact", map[string]string{}).Body.Close()

	res := postJSON(t, ts.URL+"/v1/users/u1/messages", map[string]string{"content": "hello"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadGateway)
	}
	var errRes errorResponse
	if err := json.NewDecoder(res.Body).Decode(&errRes); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errRes.Code != "agent_failed" {
		t.Fatalf("code = %q, want %q", errRes.Code, "agent_failed")
	}
}

func TestContextEndpointHydratesFromStore(t *testing.T) {
	ts, store := newTestServer(t, &stubInvoker{reply: "ok"})

	turn := history.NewTurn("u1", history.RoleHuman, "earlier", history.KindText)
	if err := store.AppendTurn(context.Background(), turn, history.Profile{}); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	res, err := http.Get(ts.URL + "/v1/users/u1/context")
	if err != nil {
		t.Fatalf("GET context error = %v", err)
	}
	defer res.Body.Close()
	var got struct {
		Context []history.Message `json:"context"`
	}
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode context response: %v", err)
	}
	if len(got.Context) != 1 || got.Context[0].Content != "earlier" {
		t.Fatalf("context = %v, want the stored turn", got.Context)
	}
}
