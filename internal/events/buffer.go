package events

import "sync"

// history keeps the newest events in emission order and evicts the oldest
// once it is full.
type history struct {
	mu    sync.RWMutex
	slots []Event
	next  int // slot the next event goes into
	count int
}

func newHistory(capacity int) *history {
	return &history{slots: make([]Event, capacity)}
}

func (h *history) add(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.slots[h.next] = e
	h.next = (h.next + 1) % len(h.slots)
	if h.count < len(h.slots) {
		h.count++
	}
}

// tail returns up to n of the newest events of runID, oldest first.
// n <= 0 means no limit and an empty runID matches every event.
func (h *history) tail(n int, runID string) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Event, 0, h.count)
	start := (h.next - h.count + len(h.slots)) % len(h.slots)
	for i := 0; i < h.count; i++ {
		e := h.slots[(start+i)%len(h.slots)]
		if runID == "" || e.RunID() == runID {
			out = append(out, e)
		}
	}
	if n > 0 && n < len(out) {
		out = out[len(out)-n:]
	}
	return out
}

func (h *history) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clear(h.slots)
	h.next, h.count = 0, 0
}
