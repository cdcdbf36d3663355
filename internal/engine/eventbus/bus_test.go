package eventbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeDeliversConnectedEvent(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe("exec-1")
	defer b.Unsubscribe(sub)

	select {
	case frame := <-sub.Send():
		var ev Event
		require.NoError(t, json.Unmarshal(frame, &ev))
		assert.Equal(t, EventConnected, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connected event")
	}
}

func TestBus_PublishFansOutToAllSubscribers(t *testing.T) {
	b := NewBus()
	sub1 := b.Subscribe("exec-1")
	sub2 := b.Subscribe("exec-1")
	<-sub1.Send()
	<-sub2.Send()

	b.Publish(Event{Type: EventNodeStarted, ExecutionID: "exec-1", NodeID: "n1"})

	for _, sub := range []*Subscriber{sub1, sub2} {
		select {
		case frame := <-sub.Send():
			var ev Event
			require.NoError(t, json.Unmarshal(frame, &ev))
			assert.Equal(t, EventNodeStarted, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fanned-out event")
		}
	}
}

func TestBus_TerminalEventClosesSubscriberAfterFlushWait(t *testing.T) {
	b := NewBus(WithTerminalFlushWait(10 * time.Millisecond))
	sub := b.Subscribe("exec-1")
	<-sub.Send()

	b.Publish(Event{Type: EventExecutionDone, ExecutionID: "exec-1"})

	select {
	case <-sub.Send():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for terminal event")
	}

	select {
	case <-sub.Closed():
	case <-time.After(time.Second):
		t.Fatal("subscriber was not closed after terminal flush wait")
	}
	assert.Equal(t, 0, b.SubscriberCount("exec-1"))
}

func TestBus_UnsubscribeRemovesSubscriber(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe("exec-1")
	<-sub.Send()
	assert.Equal(t, 1, b.SubscriberCount("exec-1"))

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount("exec-1"))

	select {
	case <-sub.Closed():
	default:
		t.Fatal("subscriber should be closed after Unsubscribe")
	}
}

func TestBus_PublishRawBypassesMarshaling(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe("exec-1")
	<-sub.Send()

	b.PublishRaw("exec-1", []byte(`{"type":"custom"}`))

	select {
	case frame := <-sub.Send():
		assert.JSONEq(t, `{"type":"custom"}`, string(frame))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for raw frame")
	}
}

func TestBus_FullSubscriberBufferDropsAndUnsubscribes(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe("exec-1")
	// Drain the eager "connected" event then saturate the buffer.
	<-sub.Send()
	for i := 0; i < 256; i++ {
		b.Publish(Event{Type: EventNodeStarted, ExecutionID: "exec-1"})
	}
	// One more publish should find the buffer full and drop the subscriber.
	b.Publish(Event{Type: EventNodeStarted, ExecutionID: "exec-1"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, b.SubscriberCount("exec-1"))
}
