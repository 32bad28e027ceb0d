package kvstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore keeps everything in process. Used by tests and by
// KV_BACKEND=memory.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[Scope]map[string]json.RawMessage
	watchers map[Scope][]chan Change
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[Scope]map[string]json.RawMessage),
		watchers: make(map[Scope][]chan Change),
	}
}

func (m *MemoryStore) Load(_ context.Context, scope Scope, dst any) error {
	if err := validScope(scope); err != nil {
		return err
	}
	m.mu.RLock()
	snapshot := make(map[string]json.RawMessage, len(m.data[scope]))
	for k, v := range m.data[scope] {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	return decodeInto(snapshot, dst)
}

func (m *MemoryStore) Set(_ context.Context, scope Scope, values map[string]any) error {
	if err := validScope(scope); err != nil {
		return err
	}
	encoded, keys, err := encodeValues(values)
	if err != nil {
		return err
	}
	sort.Strings(keys)

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.data[scope]
	if !ok {
		bucket = make(map[string]json.RawMessage, len(encoded))
		m.data[scope] = bucket
	}
	for k, v := range encoded {
		bucket[k] = v
	}
	m.notify(Change{Scope: scope, Keys: keys})
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, scope Scope) error {
	if err := validScope(scope); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, scope)
	m.notify(Change{Scope: scope, Cleared: true})
	return nil
}

func (m *MemoryStore) Watch(ctx context.Context, scope Scope) (<-chan Change, error) {
	if err := validScope(scope); err != nil {
		return nil, err
	}
	ch := make(chan Change, 16)

	m.mu.Lock()
	m.watchers[scope] = append(m.watchers[scope], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.watchers[scope]
		for i, c := range list {
			if c == ch {
				m.watchers[scope] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// notify must be called with m.mu held. Slow watchers miss changes.
func (m *MemoryStore) notify(change Change) {
	for _, ch := range m.watchers[change.Scope] {
		select {
		case ch <- change:
		default:
		}
	}
}
