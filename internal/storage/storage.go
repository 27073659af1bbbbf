// Package storage defines the flat key-value persistence used by the ledger.
//
// Values are JSON documents addressed by string keys. Backends live in the
// memory, redis and postgres subpackages; every backend failure wraps
// ErrUnavailable so callers can tell storage outages from domain errors.
package storage

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable is wrapped by every error caused by the underlying store.
var ErrUnavailable = errors.New("storage unavailable")

// KeyValueStore maps string keys to JSON values.
type KeyValueStore interface {
	// Get returns nil, nil when the key does not exist.
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
}

// Counter is implemented by stores that can increment an integer key atomically.
// A missing key counts as 0, so the first call returns 1.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// Transactional is implemented by stores that can apply several reads and
// writes as one unit. Writes made through tx become visible together when fn
// returns nil and are discarded otherwise.
type Transactional interface {
	Update(ctx context.Context, fn func(tx KeyValueStore) error) error
}

// Store is a backend offering every capability.
type Store interface {
	KeyValueStore
	Counter
	Transactional
}

// Staged buffers writes on top of a read function. Backends use it to
// implement Update: reads see earlier staged writes, and Writes hands the
// buffered set to the commit step.
type Staged struct {
	read   func(ctx context.Context, key string) (json.RawMessage, error)
	writes map[string]json.RawMessage
	order  []string
}

// NewStaged returns a staging area reading through read.
func NewStaged(read func(ctx context.Context, key string) (json.RawMessage, error)) *Staged {
	return &Staged{read: read, writes: make(map[string]json.RawMessage)}
}

func (s *Staged) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if v, ok := s.writes[key]; ok {
		return v, nil
	}
	return s.read(ctx, key)
}

func (s *Staged) Set(_ context.Context, key string, value json.RawMessage) error {
	if _, ok := s.writes[key]; !ok {
		s.order = append(s.order, key)
	}
	s.writes[key] = value
	return nil
}

// Each calls fn for every staged write in first-write order.
func (s *Staged) Each(fn func(key string, value json.RawMessage) error) error {
	for _, key := range s.order {
		if err := fn(key, s.writes[key]); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of distinct keys written.
func (s *Staged) Len() int { return len(s.order) }
