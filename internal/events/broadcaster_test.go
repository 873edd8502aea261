package events

import (
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	initial := SubscriberCount()

	sub1 := Subscribe()
	if SubscriberCount() != initial+1 {
		t.Errorf("expected %d subscribers after first subscribe, got %d", initial+1, SubscriberCount())
	}

	sub2 := Subscribe()
	if SubscriberCount() != initial+2 {
		t.Errorf("expected %d subscribers after second subscribe, got %d", initial+2, SubscriberCount())
	}

	Unsubscribe(sub1)
	Unsubscribe(sub2)
	if SubscriberCount() != initial {
		t.Errorf("expected %d subscribers after all unsubscribed, got %d", initial, SubscriberCount())
	}

	// A second unsubscribe must not panic on the closed channel.
	Unsubscribe(sub1)
}

func TestBroadcastToSubscribers(t *testing.T) {
	sub := Subscribe()
	defer Unsubscribe(sub)

	Emit("info", "node.started", "", map[string]interface{}{"node_id": "llm-1", "run_id": "r1"})

	select {
	case e := <-sub:
		if e.Name != "node.started" {
			t.Errorf("expected event name 'node.started', got '%s'", e.Name)
		}
		if e.Fields["node_id"] != "llm-1" {
			t.Errorf("expected node_id 'llm-1', got '%v'", e.Fields["node_id"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for broadcast event")
	}
}

func TestRecentEvents(t *testing.T) {
	Clear()

	for i := 0; i < 10; i++ {
		Emit("info", "node.completed", "", map[string]interface{}{"i": i})
	}

	recent := RecentEvents(5)
	if len(recent) != 5 {
		t.Errorf("expected 5 recent events, got %d", len(recent))
	}
	if recent[0].Fields["i"] != 5 {
		t.Errorf("expected first recent event i=5, got %v", recent[0].Fields["i"])
	}

	if all := RecentEvents(100); len(all) != 10 {
		t.Errorf("expected 10 events when requesting 100, got %d", len(all))
	}
	if zero := RecentEvents(0); len(zero) != 10 {
		t.Errorf("expected 10 events when requesting 0, got %d", len(zero))
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	CloseAllSubscribers()

	sub1 := Subscribe()
	sub2 := Subscribe()
	if SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", SubscriberCount())
	}

	CloseAllSubscribers()

	_, ok1 := <-sub1
	_, ok2 := <-sub2
	if ok1 || ok2 {
		t.Error("expected all channels to be closed")
	}
	if SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after CloseAllSubscribers, got %d", SubscriberCount())
	}
}

func TestSubscribeRunFiltersEvents(t *testing.T) {
	sub := SubscribeRun("r2")
	defer Unsubscribe(sub)

	Emit("info", "node.started", "", map[string]interface{}{"run_id": "r1", "node_id": "a"})
	Emit("info", "system.startup", "", nil)
	Emit("info", "node.started", "", map[string]interface{}{"run_id": "r2", "node_id": "b"})

	select {
	case e := <-sub:
		if e.RunID() != "r2" || e.Fields["node_id"] != "b" {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for run event")
	}
	select {
	case e := <-sub:
		t.Errorf("received event of another run: %+v", e)
	default:
	}
}

func TestRunEvents(t *testing.T) {
	Clear()

	for i := 0; i < 6; i++ {
		run := "r1"
		if i%2 == 1 {
			run = "r2"
		}
		Emit("info", "node.completed", "", map[string]interface{}{"run_id": run, "i": i})
	}

	got := RunEvents("r2", 0)
	if len(got) != 3 || got[0].Fields["i"] != 1 || got[2].Fields["i"] != 5 {
		t.Errorf("RunEvents(r2) = %+v", got)
	}
	if last := RunEvents("r1", 1); len(last) != 1 || last[0].Fields["i"] != 4 {
		t.Errorf("RunEvents(r1, 1) = %+v", last)
	}
	if all := RunEvents("", 0); len(all) != 6 {
		t.Errorf("expected 6 events without a run filter, got %d", len(all))
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := newHistory(3)
	for i := 0; i < 5; i++ {
		h.add(Event{Name: "node.completed", Fields: map[string]interface{}{"i": i}})
	}

	got := h.tail(0, "")
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for j, want := range []int{2, 3, 4} {
		if got[j].Fields["i"] != want {
			t.Errorf("event %d: i = %v, want %d", j, got[j].Fields["i"], want)
		}
	}

	h.reset()
	if n := len(h.tail(0, "")); n != 0 {
		t.Errorf("expected empty history after reset, got %d", n)
	}
}
