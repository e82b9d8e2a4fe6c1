package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterReplaysMissedFrames(t *testing.T) {
	b := newBroadcaster()
	b.send(SSEEvent{Type: "container.created", Payload: map[string]string{"id": "a"}})
	b.send(SSEEvent{Type: "container.updated", Payload: map[string]string{"id": "a"}})

	ch, missed := b.subscribe(1)
	defer b.unsubscribe(ch)
	require.Len(t, missed, 1)
	assert.Contains(t, string(missed[0]), "id: 2\nevent: container.updated\ndata: ")

	b.send(SSEEvent{Type: "ingest.completed"})
	select {
	case f := <-ch:
		assert.Contains(t, string(f), "id: 3\nevent: ingest.completed\n")
	default:
		t.Fatal("live frame not delivered")
	}
	assert.Equal(t, 1, b.subscribers())
}

func TestBroadcasterBacklogIsBounded(t *testing.T) {
	b := newBroadcaster()
	for i := 0; i < backlogSize+10; i++ {
		b.send(SSEEvent{Type: "tick"})
	}
	ch, missed := b.subscribe(1)
	defer b.unsubscribe(ch)
	assert.Len(t, missed, backlogSize)

	_, none := b.subscribe(0)
	assert.Empty(t, none)
}

func TestBroadcasterDropsForSlowSubscriber(t *testing.T) {
	b := newBroadcaster()
	ch, _ := b.subscribe(0)
	defer b.unsubscribe(ch)
	for i := 0; i < cap(ch)+5; i++ {
		b.send(SSEEvent{Type: "tick"})
	}
	assert.Len(t, ch, cap(ch))
}
