// Package store defines the gateway's persistence collaborators. The gateway
// never owns conversation state; it reads history through these interfaces
// and hands updated messages and context back.
package store

import (
	"context"
	"errors"

	"github.com/sweetpotato0/modelgate/convctx"
	"github.com/sweetpotato0/modelgate/message"
)

// ErrConversationNotFound is returned for unknown conversation ids.
var ErrConversationNotFound = errors.New("conversation not found")

// History is a conversation's ordered messages plus its durable context.
type History struct {
	Messages []*message.Message
	Context  convctx.Context
}

// ConversationStore persists conversation turns.
type ConversationStore interface {
	// GetHistory returns the ordered message history and context for a
	// conversation. An unknown id yields an empty history, not an error.
	GetHistory(ctx context.Context, conversationID string) (*History, error)

	// Append adds a message to the conversation's history.
	Append(ctx context.Context, conversationID string, msg *message.Message) error

	// SetContext replaces the conversation's durable context.
	SetContext(ctx context.Context, conversationID string, c convctx.Context) error
}

// ObjectStore persists binary artifacts produced by tools or the primary
// flow, returning a retrievable URL.
type ObjectStore interface {
	Store(ctx context.Context, data []byte, metadata map[string]string) (string, error)
}

type objectsKey struct{}

// WithObjects returns a context carrying the object store for tool handlers.
// A nil store leaves ctx unchanged.
func WithObjects(ctx context.Context, s ObjectStore) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, objectsKey{}, s)
}

// ObjectsFrom returns the object store carried by ctx, or nil when none was
// attached.
func ObjectsFrom(ctx context.Context) ObjectStore {
	s, _ := ctx.Value(objectsKey{}).(ObjectStore)
	return s
}
