// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package events

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"
)

type subscription struct {
	handler  Handler
	kind     Kind
	priority int
}

// Bus delivers events synchronously to subscribed handlers.
// Handlers with a higher priority run first; equal priorities run in subscription order.
type Bus struct {
	subs []subscription
	mu   sync.RWMutex
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for events of the given kind.
func (b *Bus) Subscribe(kind Kind, h Handler, priority int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = append(b.subs, subscription{handler: h, kind: kind, priority: priority})
	slices.SortStableFunc(b.subs, func(a, c subscription) int {
		return cmp.Compare(c.priority, a.priority)
	})
}

// Dispatch runs every handler subscribed to e's kind on the calling goroutine.
// The first handler error stops delivery and is returned unchanged.
func (b *Bus) Dispatch(ctx context.Context, e Event) error {
	b.mu.RLock()
	matching := lo.Filter(b.subs, func(s subscription, _ int) bool {
		return s.kind == e.Kind()
	})
	b.mu.RUnlock()

	for _, s := range matching {
		if err := s.handler.Handle(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// ListenerCount returns the number of subscriptions for kind.
func (b *Bus) ListenerCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return lo.CountBy(b.subs, func(s subscription) bool {
		return s.kind == kind
	})
}
