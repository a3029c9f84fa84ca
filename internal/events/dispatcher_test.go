package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_DeliversToSubscribedType(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()

	var received []Event
	dispatcher.Subscribe(EventTicketCreated, func(_ context.Context, event Event) error {
		received = append(received, event)
		return nil
	})

	err := dispatcher.Publish(context.Background(), Event{Type: EventTicketCreated, TenantID: "tenant-a"})
	require.NoError(t, err)
	err = dispatcher.Publish(context.Background(), Event{Type: EventTicketClosed, TenantID: "tenant-a"})
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, EventTicketCreated, received[0].Type)
}

func TestDispatcher_CatchAllSeesEverything(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()

	count := 0
	dispatcher.SubscribeAll(func(context.Context, Event) error {
		count++
		return nil
	})

	for _, eventType := range []EventType{EventTicketCreated, EventTicketUpdated, EventTicketClosed, EventTicketExpiryWarning, EventAgentReassigned} {
		require.NoError(t, dispatcher.Publish(context.Background(), Event{Type: eventType}))
	}
	assert.Equal(t, 5, count)
}

func TestDispatcher_FailingHandlerDoesNotStopDelivery(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()

	delivered := false
	dispatcher.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		return errors.New("handler broke")
	})
	dispatcher.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		delivered = true
		return nil
	})

	require.NoError(t, dispatcher.Publish(context.Background(), Event{Type: EventTicketClosed}))
	assert.True(t, delivered)
}
