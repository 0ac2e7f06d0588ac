package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sweetpotato0/modelgate/convctx"
	"github.com/sweetpotato0/modelgate/message"
)

// InMemoryStore keeps conversations in process memory. Useful for tests and
// single-node development.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*History
}

// NewInMemoryStore creates an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*History)}
}

func (s *InMemoryStore) GetHistory(_ context.Context, conversationID string) (*History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.conversations[conversationID]
	if !ok {
		return &History{Context: convctx.Context{}}, nil
	}
	return &History{
		Messages: message.CloneMessages(h.Messages),
		Context:  h.Context.Clone(),
	}, nil
}

func (s *InMemoryStore) Append(_ context.Context, conversationID string, msg *message.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.conversations[conversationID]
	if h == nil {
		h = &History{Context: convctx.Context{}}
		s.conversations[conversationID] = h
	}
	h.Messages = append(h.Messages, message.Clone(msg))
	return nil
}

func (s *InMemoryStore) SetContext(_ context.Context, conversationID string, c convctx.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.conversations[conversationID]
	if h == nil {
		h = &History{}
		s.conversations[conversationID] = h
	}
	h.Context = c.Clone()
	return nil
}

// InMemoryObjectStore keeps artifacts in process memory under mem:// URLs.
type InMemoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewInMemoryObjectStore creates an empty in-memory object store.
func NewInMemoryObjectStore() *InMemoryObjectStore {
	return &InMemoryObjectStore{objects: make(map[string][]byte)}
}

func (s *InMemoryObjectStore) Store(_ context.Context, data []byte, _ map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[id] = buf
	return "mem://" + id, nil
}

// Get retrieves a stored artifact by its mem:// URL; mainly for tests.
func (s *InMemoryObjectStore) Get(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[trimMemScheme(url)]
	return data, ok
}

func trimMemScheme(url string) string {
	const scheme = "mem://"
	if len(url) > len(scheme) && url[:len(scheme)] == scheme {
		return url[len(scheme):]
	}
	return url
}
