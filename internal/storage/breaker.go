package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit breaker placed in front of a store.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32        // consecutive failures before opening
	OpenTimeout      time.Duration // time spent open before probing again
	OnStateChange    func(name string, from, to gobreaker.State)
}

// DefaultBreakerSettings returns the settings used by the service.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{Name: name, FailureThreshold: 5, OpenTimeout: 30 * time.Second}
}

// BreakerStore fails fast with ErrUnavailable while the backend keeps failing.
// Only errors wrapping ErrUnavailable count as failures.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next with a circuit breaker
func NewBreakerStore(next Store, settings BreakerSettings, log *logrus.Logger) *BreakerStore {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("Storage circuit breaker changed state")
			if settings.OnStateChange != nil {
				settings.OnStateChange(name, from, to)
			}
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

// State exposes the breaker state for health reporting.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func (b *BreakerStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return v, err
}

func (b *BreakerStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	v, err := b.execute(func() (interface{}, error) { return b.next.Get(ctx, key) })
	if err != nil {
		return nil, err
	}
	raw, _ := v.(json.RawMessage)
	return raw, nil
}

func (b *BreakerStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	_, err := b.execute(func() (interface{}, error) { return nil, b.next.Set(ctx, key, value) })
	return err
}

func (b *BreakerStore) Incr(ctx context.Context, key string) (int64, error) {
	v, err := b.execute(func() (interface{}, error) { return b.next.Incr(ctx, key) })
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *BreakerStore) Update(ctx context.Context, fn func(tx KeyValueStore) error) error {
	_, err := b.execute(func() (interface{}, error) { return nil, b.next.Update(ctx, fn) })
	return err
}

var _ Store = (*BreakerStore)(nil)
