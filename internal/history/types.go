package history

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a conversational turn.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Kind classifies the payload of a turn.
type Kind string

const (
	KindText         Kind = "text"
	KindImage        Kind = "image"
	KindContact      Kind = "contact"
	KindSearchQuery  Kind = "search_query"
	KindSearchResult Kind = "search_result"
)

// Turn is a single immutable conversational turn, ordered by creation time.
type Turn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTurn builds a turn with a fresh ID and UTC timestamp.
func NewTurn(userID string, role Role, content string, kind Kind) Turn {
	return Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// Message is the (role, content) pair handed to the agent as prompt context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message projects a turn onto its prompt-context pair.
func (t Turn) Message() Message {
	return Message{Role: t.Role, Content: t.Content}
}

// Profile holds the write-once user fields recorded on first contact.
// Empty values never overwrite a stored value.
type Profile struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	UserName    string `json:"user_name"`
}
