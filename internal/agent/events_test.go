package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(zap.NewNop(), 4)
	defer bus.Shutdown()

	logs, unsubLogs := bus.Subscribe(EventLogAppended)
	defer unsubLogs()
	all, unsubAll := bus.Subscribe()
	defer unsubAll()

	bus.Publish(Event{Type: EventLogAppended, SessionID: "s1"})
	bus.Publish(Event{Type: EventStatusChanged, SessionID: "s1"})

	ev := <-logs
	assert.Equal(t, EventLogAppended, ev.Type)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())

	got := []EventType{(<-all).Type, (<-all).Type}
	assert.ElementsMatch(t, []EventType{EventLogAppended, EventStatusChanged}, got)

	select {
	case ev := <-logs:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestEventBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	core, observed := observer.New(zap.WarnLevel)
	bus := NewEventBus(zap.New(core), 1)
	defer bus.Shutdown()

	_, unsubscribe := bus.Subscribe(EventLogAppended)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			bus.Publish(Event{Type: EventLogAppended})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, 2, observed.FilterMessage("Dropping event for slow subscriber.").Len())
}

func TestEventBus_UnsubscribeAndShutdown(t *testing.T) {
	bus := NewEventBus(zap.NewNop(), 0)

	ch, unsubscribe := bus.Subscribe(EventSessionCreated, EventSessionDeleted)
	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	other, _ := bus.Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range other {
		}
	}()
	bus.Shutdown()
	bus.Shutdown()
	require.True(t, waitTimeout(&wg, time.Second), "shutdown must close subscriber channels")

	bus.Publish(Event{Type: EventSessionCreated})
	late, _ := bus.Subscribe()
	_, open = <-late
	assert.False(t, open)
}
