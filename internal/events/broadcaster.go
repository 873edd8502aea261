package events

import "sync"

// Subscriber receives events as they are emitted.
type Subscriber chan Event

// subscriberBuffer is how far a subscriber may fall behind before events
// are dropped for it.
const subscriberBuffer = 64

// fanout hands every emitted event to the live subscribers. Each subscriber
// carries a run filter; an empty filter takes everything.
type fanout struct {
	mu   sync.RWMutex
	subs map[Subscriber]string
}

var subscribers = &fanout{subs: make(map[Subscriber]string)}

// Subscribe registers a subscriber for every event.
func Subscribe() Subscriber {
	return SubscribeRun("")
}

// SubscribeRun registers a subscriber that only sees the node and run events
// of runID. An empty runID behaves like Subscribe.
func SubscribeRun(runID string) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	subscribers.mu.Lock()
	subscribers.subs[ch] = runID
	subscribers.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown
// subscribers are ignored.
func Unsubscribe(sub Subscriber) {
	subscribers.mu.Lock()
	defer subscribers.mu.Unlock()

	if _, ok := subscribers.subs[sub]; !ok {
		return
	}
	delete(subscribers.subs, sub)
	close(sub)
}

// broadcast never blocks Emit: a subscriber whose buffer is full misses the event.
func broadcast(e Event) {
	runID := e.RunID()

	subscribers.mu.RLock()
	defer subscribers.mu.RUnlock()

	for sub, filter := range subscribers.subs {
		if filter != "" && filter != runID {
			continue
		}
		select {
		case sub <- e:
		default:
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func SubscriberCount() int {
	subscribers.mu.RLock()
	defer subscribers.mu.RUnlock()
	return len(subscribers.subs)
}

// RecentEvents returns up to n of the newest buffered events, oldest first.
// n <= 0 returns everything buffered.
func RecentEvents(n int) []Event {
	return buffer.tail(n, "")
}

// RunEvents is RecentEvents restricted to one run.
func RunEvents(runID string, n int) []Event {
	return buffer.tail(n, runID)
}

// CloseAllSubscribers closes and removes every subscriber on shutdown.
func CloseAllSubscribers() {
	subscribers.mu.Lock()
	defer subscribers.mu.Unlock()

	for sub := range subscribers.subs {
		close(sub)
		delete(subscribers.subs, sub)
	}
}
