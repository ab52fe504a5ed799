package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesLiveBroadcast(t *testing.T) {
	b := NewBroadcaster(0)
	ch, unsubscribe := b.Subscribe("s1", "")
	defer unsubscribe()

	ev := NewEvent(TypeAgentStarted, "s1", nil)
	b.Broadcast("s1", ev)

	select {
	case msg := <-ch:
		require.False(t, msg.Done)
		assert.Equal(t, ev.ID, msg.Event.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestSubscribeReplaysBufferedEventsAfterLastEventID(t *testing.T) {
	b := NewBroadcaster(0)
	// Ids from different seconds, so ev2 sorts strictly after ev1.
	ev1 := NewEvent(TypeAgentStarted, "s1", nil)
	ev1.ID = "20250101000000_ffffffff"
	ev2 := NewEvent(TypeAgentCompleted, "s1", nil)
	ev2.ID = "20250101000001_00000000"
	b.Broadcast("s1", ev1)
	b.Broadcast("s1", ev2)

	ch, unsubscribe := b.Subscribe("s1", ev1.ID)
	defer unsubscribe()

	select {
	case msg := <-ch:
		assert.Equal(t, ev2.ID, msg.Event.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replay")
	}
}

func TestCompleteSendsSentinelToSubscribers(t *testing.T) {
	b := NewBroadcaster(0)
	ch, unsubscribe := b.Subscribe("s1", "")
	defer unsubscribe()

	b.Complete("s1")

	select {
	case msg := <-ch:
		assert.True(t, msg.Done)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion sentinel")
	}
}

func TestSubscribeAfterCompleteGetsImmediateSentinel(t *testing.T) {
	b := NewBroadcaster(0)
	b.Complete("s1")

	ch, unsubscribe := b.Subscribe("s1", "")
	defer unsubscribe()

	select {
	case msg := <-ch:
		assert.True(t, msg.Done)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for immediate sentinel")
	}
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	b := NewBroadcaster(0)
	_, unsubscribe := b.Subscribe("s1", "")
	assert.Equal(t, 1, b.SubscriberCount("s1"))
	unsubscribe()
	assert.Equal(t, 0, b.SubscriberCount("s1"))
}
