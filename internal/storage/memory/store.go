package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/Dan9191/budget-service/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
// Values are copied on the way in and out so callers cannot alias internal state.
type Store struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{data: make(map[string]json.RawMessage)}
}

func (m *Store) Get(_ context.Context, key string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.get(key), nil
}

func (m *Store) get(key string) json.RawMessage {
	v, ok := m.data[key]
	if !ok {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}

func (m *Store) Set(_ context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append(json.RawMessage(nil), value...)
	return nil
}

// Incr increments the integer stored at key.
func (m *Store) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	if v, ok := m.data[key]; ok {
		if err := json.Unmarshal(v, &n); err != nil {
			return 0, fmt.Errorf("value at %q is not an integer: %w", key, err)
		}
	}
	n++
	m.data[key] = json.RawMessage(strconv.FormatInt(n, 10))
	return n, nil
}

// Update holds the store lock for the duration of fn and commits its writes
// only when fn succeeds.
func (m *Store) Update(ctx context.Context, fn func(tx storage.KeyValueStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := storage.NewStaged(func(_ context.Context, key string) (json.RawMessage, error) {
		return m.get(key), nil
	})
	if err := fn(staged); err != nil {
		return err
	}
	return staged.Each(func(key string, value json.RawMessage) error {
		m.data[key] = append(json.RawMessage(nil), value...)
		return nil
	})
}

// Compile-time check: ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)
