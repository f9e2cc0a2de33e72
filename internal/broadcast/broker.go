package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const subscriberBufSize = 256

// Topics published by the companion.
const (
	TopicToken     = "token"
	TopicSession   = "session"
	TopicTheme     = "theme"
	TopicLocale    = "locale"
	TopicWatchlist = "watchlist"
	TopicETL       = "etl"
	TopicReport    = "report"
)

// Event is a single state change notification.
type Event struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// NewEvent builds an event, encoding payload as JSON.
func NewEvent(topic string, payload any) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Debug("broadcast payload marshal failed", "topic", topic, "error", err)
		raw = json.RawMessage("null")
	}
	return Event{ID: uuid.NewString(), Topic: topic, Payload: raw, At: time.Now().UTC()}
}

// Publisher is the write side of a Broker.
type Publisher interface {
	Publish(evt Event)
}

// Broker fans out events to all subscribed stream clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers will have
// events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Non-blocking: slow clients
// have events dropped.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			slog.Debug("broadcast subscriber full, dropping event", "subscriber", id, "topic", evt.Topic)
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(Event) {}
