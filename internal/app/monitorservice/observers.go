package monitorservice

import (
	"context"
	"fmt"
	"sync"

	"sales-dashboard/internal/shared/logger"
)

// Subscription identifies a registered handler. The zero value matches nothing.
type Subscription uint64

type handlerEntry[T any] struct {
	id Subscription
	fn func(T)
}

// handlerSet is a small registry of callbacks. Notification iterates over a
// copy, so handlers may add or remove handlers while being called.
type handlerSet[T any] struct {
	mu      sync.Mutex
	next    Subscription
	entries []handlerEntry[T]
}

func (s *handlerSet[T]) add(fn func(T)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	s.entries = append(s.entries, handlerEntry[T]{id: s.next, fn: fn})
	return s.next
}

// remove reports whether id was registered.
func (s *handlerSet[T]) remove(id Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *handlerSet[T]) snapshot() []handlerEntry[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]handlerEntry[T], len(s.entries))
	copy(out, s.entries)
	return out
}

// notify calls every handler with v. A panicking handler is logged and skipped.
func (s *handlerSet[T]) notify(ctx context.Context, log *logger.Logger, action string, v T) {
	for _, e := range s.snapshot() {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error(ctx, action, "Monitor handler panicked", fmt.Errorf("subscription %d: %v", e.id, rec))
				}
			}()
			e.fn(v)
		}()
	}
}
