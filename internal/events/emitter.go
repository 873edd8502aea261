package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var buffer = newHistory(256)

var totalCount atomic.Int64

// Store persists events. Implemented by the Postgres client.
type Store interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, runID string) error
}

var (
	store            Store
	storeMu          sync.RWMutex
	storeErrorLogged bool
)

// Publisher forwards serialized events to an external bus (MQTT).
type Publisher interface {
	PublishEvent(name string, payload []byte) error
}

var (
	publisher   Publisher
	publisherMu sync.RWMutex
)

// SetStore sets the store used for event persistence. nil disables persistence.
func SetStore(s Store) {
	storeMu.Lock()
	store = s
	storeErrorLogged = false
	storeMu.Unlock()
}

// SetPublisher sets the bus every emitted event is forwarded to. nil disables forwarding.
func SetPublisher(p Publisher) {
	publisherMu.Lock()
	publisher = p
	publisherMu.Unlock()
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// RunID returns the run the event belongs to, or "" for engine-level events.
func (e Event) RunID() string {
	id, _ := e.Fields["run_id"].(string)
	return id
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.add(e)
	totalCount.Add(1)
	broadcast(e)

	persist(ts, e)

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	publisherMu.RLock()
	pub := publisher
	publisherMu.RUnlock()
	if pub != nil {
		if err := pub.PublishEvent(name, b); err != nil {
			buffer.add(systemError("event publish failed", err))
		}
	}

	return b, nil
}

// persist appends the event to the store. Failures are reported once, straight
// into the ring buffer, so a broken database cannot recurse through Emit.
func persist(ts time.Time, e Event) {
	storeMu.RLock()
	s := store
	storeMu.RUnlock()

	if s == nil {
		return
	}

	runID, _ := e.Fields["run_id"].(string)
	if err := s.Append(ts, e.Level, e.Name, e.Message, e.Fields, runID); err != nil {
		storeMu.Lock()
		first := !storeErrorLogged
		storeErrorLogged = true
		storeMu.Unlock()
		if first {
			buffer.add(systemError("event store append failed", err))
		}
	}
}

func systemError(msg string, err error) Event {
	return Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   msg,
		Fields: map[string]interface{}{
			"error": err.Error(),
		},
	}
}

// Snapshot returns every buffered event, oldest first.
func Snapshot() []Event {
	return buffer.tail(0, "")
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() int64 {
	return totalCount.Load()
}

// Clear drops every buffered event.
func Clear() {
	buffer.reset()
}
