package ai

import (
	"context"
	"errors"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries one completion call: the grounding system instruction, the
// ordered conversation, and the output cap.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int
}

// Provider is a remote text-generation backend. An empty reply with a nil
// error means the backend answered with no usable text block; callers decide
// what to substitute.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrUnauthorized marks credential failures so callers can distinguish
// operator misconfiguration from transient provider errors.
var ErrUnauthorized = errors.New("ai: unauthorized")
