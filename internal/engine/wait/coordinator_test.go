package wait

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoordinator_AwaitResolvesOnSignal(t *testing.T) {
	c := NewCoordinator()
	done := make(chan Outcome, 1)
	go func() {
		done <- c.Await(context.Background(), "exec-1", "n1", Spec{WaitType: "signal"})
	}()

	for c.PendingCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	delivered, _ := c.DeliverSignal("exec-1", "n1", map[string]interface{}{"ok": true})
	assert.True(t, delivered)

	select {
	case out := <-done:
		assert.True(t, out.Delivered)
		assert.Equal(t, map[string]interface{}{"ok": true}, out.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Await to resolve")
	}
}

func TestCoordinator_AwaitTimesOut(t *testing.T) {
	c := NewCoordinator()
	out := c.Await(context.Background(), "exec-1", "n1", Spec{WaitType: "timer", TimeoutMs: 10})
	assert.True(t, out.TimedOut)
}

func TestCoordinator_DeliverSignalForUnknownNodeFails(t *testing.T) {
	c := NewCoordinator()
	delivered, reason := c.DeliverSignal("exec-1", "ghost", nil)
	assert.False(t, delivered)
	assert.NotEmpty(t, reason)
}

func TestCoordinator_CancelAllResolvesPendingWaitsForExecution(t *testing.T) {
	c := NewCoordinator()
	done := make(chan Outcome, 1)
	go func() {
		done <- c.Await(context.Background(), "exec-1", "n1", Spec{WaitType: "signal"})
	}()
	for c.PendingCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	c.CancelAll("exec-1")

	select {
	case out := <-done:
		assert.True(t, out.Cancelled)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
}

func TestCoordinator_NotifyHookInvoked(t *testing.T) {
	c := NewCoordinator()
	notified := make(chan struct{}, 1)
	go func() {
		c.Await(context.Background(), "exec-1", "n1", Spec{
			WaitType:  "signal",
			TimeoutMs: 50,
			Notify: func(executionID, nodeID string) {
				notified <- struct{}{}
			},
		})
	}()

	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("notify hook was not called")
	}
}

func TestCoordinator_ContextCancellationResolvesAsCancelled(t *testing.T) {
	c := NewCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() {
		done <- c.Await(ctx, "exec-1", "n1", Spec{WaitType: "signal"})
	}()
	for c.PendingCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case out := <-done:
		assert.True(t, out.Cancelled)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for context cancellation")
	}
}
