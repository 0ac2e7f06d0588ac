package store

import (
	"context"
	"testing"

	"github.com/sweetpotato0/modelgate/convctx"
	"github.com/sweetpotato0/modelgate/message"
)

func TestInMemoryUnknownConversationIsEmpty(t *testing.T) {
	s := NewInMemoryStore()

	h, err := s.GetHistory(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unknown id must not error: %v", err)
	}
	if len(h.Messages) != 0 {
		t.Errorf("messages = %+v", h.Messages)
	}
}

func TestInMemoryAppendAndGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Append(ctx, "c1", message.NewMessage(message.RoleUser, "first")); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "c1", message.NewMessage(message.RoleAssistant, "second")); err != nil {
		t.Fatal(err)
	}

	h, err := s.GetHistory(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Messages) != 2 || h.Messages[0].Content != "first" || h.Messages[1].Content != "second" {
		t.Errorf("history = %+v", h.Messages)
	}

	// Returned history is a copy.
	h.Messages[0].Content = "mutated"
	h2, _ := s.GetHistory(ctx, "c1")
	if h2.Messages[0].Content != "first" {
		t.Error("store leaked internal message state")
	}
}

func TestInMemorySetContext(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.SetContext(ctx, "c1", convctx.Context{"k": "v"}); err != nil {
		t.Fatal(err)
	}
	h, _ := s.GetHistory(ctx, "c1")
	if h.Context["k"] != "v" {
		t.Errorf("context = %v", h.Context)
	}
}

func TestObjectsContextCarriage(t *testing.T) {
	ctx := context.Background()

	if got := ObjectsFrom(ctx); got != nil {
		t.Errorf("bare context carries %v", got)
	}
	if WithObjects(ctx, nil) != ctx {
		t.Error("nil store must leave the context unchanged")
	}

	s := NewInMemoryObjectStore()
	if got := ObjectsFrom(WithObjects(ctx, s)); got != ObjectStore(s) {
		t.Errorf("carried store = %v", got)
	}
}

func TestInMemoryObjectStoreRoundTrip(t *testing.T) {
	s := NewInMemoryObjectStore()

	url, err := s.Store(context.Background(), []byte("payload"), map[string]string{"kind": "test"})
	if err != nil {
		t.Fatal(err)
	}
	if len(url) <= len("mem://") {
		t.Fatalf("url = %q", url)
	}
	data, ok := s.Get(url)
	if !ok || string(data) != "payload" {
		t.Errorf("stored data = %q, ok = %v", data, ok)
	}
}
