package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 10)
	bus.Subscribe(TypeTaskProgress, received)

	bus.Publish(Event{
		Type:      TypeTaskProgress,
		TaskID:    "task-1",
		Timestamp: time.Now(),
		Data:      map[string]int{"processed": 5},
	})

	select {
	case evt := <-received:
		if evt.Type != TypeTaskProgress {
			t.Errorf("expected %s, got %s", TypeTaskProgress, evt.Type)
		}
		if evt.TaskID != "task-1" {
			t.Errorf("expected task-1, got %s", evt.TaskID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch1 := make(chan Event, 10)
	ch2 := make(chan Event, 10)
	bus.Subscribe(TypeTaskDone, ch1)
	bus.Subscribe(TypeTaskDone, ch2)

	bus.Publish(Event{Type: TypeTaskDone, TaskID: "task-2"})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := New()
	defer bus.Close()

	progressCh := make(chan Event, 10)
	matchCh := make(chan Event, 10)
	bus.Subscribe(TypeTaskProgress, progressCh)
	bus.Subscribe(TypeKeywordMatch, matchCh)

	bus.Publish(Event{Type: TypeTaskProgress, TaskID: "task-3"})

	select {
	case <-progressCh:
	case <-time.After(time.Second):
		t.Fatal("progress subscriber did not receive event")
	}

	select {
	case <-matchCh:
		t.Fatal("keyword subscriber should NOT receive progress event")
	case <-time.After(50 * time.Millisecond):
		// good
	}
}

func TestBus_PublishBatch(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 100)
	bus.Subscribe(TypeTaskProgress, received)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Event{Type: TypeTaskProgress, TaskID: "task-batch"})
		}()
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)
	if len(received) != 50 {
		t.Errorf("expected 50 events, got %d", len(received))
	}
}
