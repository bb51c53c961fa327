// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"codeberg.org/oliverandrich/authnotify/internal/events"
	"codeberg.org/oliverandrich/authnotify/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder appends its name to a shared log each time it handles an event.
func recorder(log *[]string, name string) events.HandlerFunc {
	return func(_ context.Context, _ events.Event) error {
		*log = append(*log, name)
		return nil
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     events.Kind
		expected string
	}{
		{events.KindLogin, "user.login"},
		{events.KindLogout, "user.logout"},
		{events.KindRegistered, "user.registered"},
		{events.KindResend, "user.resend"},
		{events.KindReset, "user.reset"},
		{events.Kind(0), "user.unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestEvent_Kind(t *testing.T) {
	user := &models.User{ID: 1}

	assert.Equal(t, events.KindLogin, events.Login{User: user}.Kind())
	assert.Equal(t, events.KindLogout, events.Logout{}.Kind())
	assert.Equal(t, events.KindRegistered, events.Registered{User: user}.Kind())
	assert.Equal(t, events.KindResend, events.Resend{User: user}.Kind())
	assert.Equal(t, events.KindReset, events.Reset{User: user, Code: "c"}.Kind())
}

func TestBus_DispatchOnlyMatchingKind(t *testing.T) {
	bus := events.NewBus()
	var log []string

	bus.Subscribe(events.KindLogin, recorder(&log, "login"), 10)
	bus.Subscribe(events.KindLogout, recorder(&log, "logout"), 10)

	err := bus.Dispatch(context.Background(), events.Logout{})

	require.NoError(t, err)
	assert.Equal(t, []string{"logout"}, log)
}

func TestBus_DispatchWithoutListeners(t *testing.T) {
	bus := events.NewBus()

	err := bus.Dispatch(context.Background(), events.Logout{})

	assert.NoError(t, err)
}

func TestBus_PriorityOrder(t *testing.T) {
	bus := events.NewBus()
	var log []string

	bus.Subscribe(events.KindLogin, recorder(&log, "low"), 1)
	bus.Subscribe(events.KindLogin, recorder(&log, "high"), 100)
	bus.Subscribe(events.KindLogin, recorder(&log, "mid-first"), 10)
	bus.Subscribe(events.KindLogin, recorder(&log, "mid-second"), 10)

	err := bus.Dispatch(context.Background(), events.Login{})

	require.NoError(t, err)
	assert.Equal(t, []string{"high", "mid-first", "mid-second", "low"}, log)
}

func TestBus_ErrorStopsDispatch(t *testing.T) {
	bus := events.NewBus()
	var log []string
	errBoom := errors.New("boom")

	bus.Subscribe(events.KindReset, events.HandlerFunc(func(_ context.Context, _ events.Event) error {
		return errBoom
	}), 20)
	bus.Subscribe(events.KindReset, recorder(&log, "after"), 10)

	err := bus.Dispatch(context.Background(), events.Reset{})

	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, log)
}

func TestBus_HandlerReceivesPayload(t *testing.T) {
	bus := events.NewBus()
	user := &models.User{ID: 7, Email: "a@example.com"}

	var got events.Event
	bus.Subscribe(events.KindRegistered, events.HandlerFunc(func(_ context.Context, e events.Event) error {
		got = e
		return nil
	}), 10)

	err := bus.Dispatch(context.Background(), events.Registered{User: user, Activated: true})

	require.NoError(t, err)
	registered, ok := got.(events.Registered)
	require.True(t, ok)
	assert.Same(t, user, registered.User)
	assert.True(t, registered.Activated)
}

func TestBus_ListenerCounts(t *testing.T) {
	bus := events.NewBus()
	var log []string

	assert.Zero(t, bus.ListenerCount(events.KindLogin))

	bus.Subscribe(events.KindLogin, recorder(&log, "a"), 10)
	bus.Subscribe(events.KindLogin, recorder(&log, "b"), 10)

	assert.Equal(t, 2, bus.ListenerCount(events.KindLogin))
	assert.Equal(t, 0, bus.ListenerCount(events.KindReset))
}

func TestBus_ConcurrentSubscribeAndDispatch(t *testing.T) {
	bus := events.NewBus()
	noop := events.HandlerFunc(func(_ context.Context, _ events.Event) error { return nil })

	var wg sync.WaitGroup
	const numGoroutines = 50

	for range numGoroutines {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Subscribe(events.KindLogin, noop, 10)
		}()
		go func() {
			defer wg.Done()
			_ = bus.Dispatch(context.Background(), events.Login{})
		}()
	}
	wg.Wait()

	assert.Equal(t, numGoroutines, bus.ListenerCount(events.KindLogin))
}
