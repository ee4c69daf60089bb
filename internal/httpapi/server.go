// Package httpapi exposes the narrow turn-handling surface consumed by the
// message-channel glue, plus the operational endpoints every deployment gets.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gmorandi/membot/internal/conversation"
	"github.com/gmorandi/membot/internal/history"
	"github.com/gmorandi/membot/internal/observability"
)

type Server struct {
	svc    *conversation.Service
	window *observability.TurnStageWindow
}

func New(svc *conversation.Service, window *observability.TurnStageWindow) *Server {
	return &Server{svc: svc, window: window}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Get("/v1/users/{id}/registered", s.handleRegistered)
	r.Get("/v1/users/{id}/context", s.handleContext)
	r.Post("/v1/users/{id}/contact", s.handleContact)
	r.Post("/v1/users/{id}/messages", s.handleMessage)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.window == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "latency window not configured")
		return
	}
	respondJSON(w, http.StatusOK, s.window.Snapshot())
}

func (s *Server) handleRegistered(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":    userID,
		"registered": s.svc.IsRegistered(r.Context(), userID),
	})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	msgs := s.svc.Context(r.Context(), userID)
	if msgs == nil {
		msgs = []history.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"context": msgs,
	})
}

type contactRequest struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	UserName    string `json:"user_name"`
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}

	var req contactRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	msgs := s.svc.RegisterContact(r.Context(), userID, history.Profile{
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		FirstName:   strings.TrimSpace(req.FirstName),
		UserName:    strings.TrimSpace(req.UserName),
	})
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"context": msgs,
	})
}

type messageRequest struct {
	Content string `json:"content"`
	Kind    string `json:"kind"`
}

type messageResponse struct {
	UserID  string            `json:"user_id"`
	Reply   string            `json:"reply"`
	Context []history.Message `json:"context"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}

	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "empty_content", "content is required")
		return
	}
	kind, ok := parseKind(req.Kind)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_kind", "unknown message kind "+req.Kind)
		return
	}

	if !s.svc.IsRegistered(r.Context(), userID) {
		respondError(w, http.StatusForbidden, "not_registered", "share contact info before messaging")
		return
	}

	reply, msgs, err := s.svc.Converse(r.Context(), userID, req.Content, kind)
	if err != nil {
		respondError(w, http.StatusBadGateway, "agent_failed", "the assistant could not answer, try again later")
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{
		UserID:  userID,
		Reply:   reply,
		Context: msgs,
	})
}

func parseKind(v string) (history.Kind, bool) {
	switch history.Kind(strings.TrimSpace(v)) {
	case "":
		return history.KindText, true
	case history.KindText:
		return history.KindText, true
	case history.KindImage:
		return history.KindImage, true
	case history.KindSearchQuery:
		return history.KindSearchQuery, true
	default:
		return "", false
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
