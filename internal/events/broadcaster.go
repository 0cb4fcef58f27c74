// Package events broadcasts session lifecycle and stats events to local
// consumers, primarily the SSE endpoint of the control API.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/nimbus/internal/models"
)

// Event types delivered to subscribers.
const (
	EventTypePhase = "phase"
	EventTypeStats = "stats"
)

// Event is a single broadcast item.
type Event struct {
	Type      string              `json:"type"`
	FromPhase models.Phase        `json:"from_phase,omitempty"`
	ToPhase   models.Phase        `json:"to_phase,omitempty"`
	Stats     *models.StatsSample `json:"stats,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Subscriber represents one consumer of the event stream.
type Subscriber struct {
	ID     string
	Events chan *Event
}

// Broadcaster fans events out to subscribers. Slow subscribers drop
// events instead of blocking the publisher; the stream carries transient
// state, not history.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	logger      *slog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
		logger:      logger.With(slog.String("component", "events")),
	}
}

// Subscribe registers a new subscriber with a buffered channel.
func (b *Broadcaster) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:     ulid.Make().String(),
		Events: make(chan *Event, 100),
	}
	b.subscribers[sub.ID] = sub

	b.logger.Debug("subscriber added", slog.String("subscriber_id", sub.ID))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[subscriberID]; ok {
		close(sub.Events)
		delete(b.subscribers, subscriberID)
		b.logger.Debug("subscriber removed", slog.String("subscriber_id", subscriberID))
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// PublishPhase broadcasts a phase transition.
func (b *Broadcaster) PublishPhase(from, to models.Phase) {
	b.publish(&Event{
		Type:      EventTypePhase,
		FromPhase: from,
		ToPhase:   to,
		Timestamp: time.Now(),
	})
}

// PublishStats broadcasts a stats sample.
func (b *Broadcaster) PublishStats(sample models.StatsSample) {
	b.publish(&Event{
		Type:      EventTypeStats,
		Stats:     &sample,
		Timestamp: time.Now(),
	})
}

// Close removes all subscribers, closing their channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

func (b *Broadcaster) publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.Events <- event:
		default:
			// Channel full, skip this event.
			b.logger.Warn("subscriber event channel full, dropping event",
				slog.String("subscriber_id", sub.ID),
				slog.String("event_type", event.Type))
		}
	}
}
