package events

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/interfaces"
	"github.com/ternarybob/auditmysite/internal/models"
)

// subscription pairs a handler with its registration id so delivery order
// follows registration order
type subscription struct {
	id      int
	handler interfaces.EventHandler
}

// Service implements EventService with synchronous ordered delivery.
// Publish runs every matching handler in the emitter's goroutine, in
// registration order, before returning. A panicking handler is recovered
// and logged; remaining handlers still run.
type Service struct {
	subscribers map[models.EventType][]subscription
	all         []subscription
	nextID      int
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subscribers: make(map[models.EventType][]subscription),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType models.EventType, handler interfaces.EventHandler) int {
	if handler == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subscribers[eventType] = append(s.subscribers[eventType], subscription{id: id, handler: handler})

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return id
}

// SubscribeAll registers a handler for every event type
func (s *Service) SubscribeAll(handler interfaces.EventHandler) int {
	if handler == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.all = append(s.all, subscription{id: id, handler: handler})

	s.logger.Debug().
		Int("subscriber_count", len(s.all)).
		Msg("Wildcard event handler subscribed")

	return id
}

// Unsubscribe removes a subscription by id
func (s *Service) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for eventType, subs := range s.subscribers {
		for i, sub := range subs {
			if sub.id == id {
				s.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
	for i, sub := range s.all {
		if sub.id == id {
			s.all = append(s.all[:i], s.all[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to all matching handlers before returning.
// Typed and wildcard subscriptions are interleaved by registration order.
func (s *Service) Publish(event models.Event) {
	s.mu.RLock()
	subs := make([]subscription, 0, len(s.subscribers[event.Type])+len(s.all))
	subs = append(subs, s.subscribers[event.Type]...)
	subs = append(subs, s.all...)
	s.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })

	for _, sub := range subs {
		s.deliver(sub, event)
	}
}

// deliver invokes one handler with panic recovery
func (s *Service) deliver(sub subscription, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("event_type", string(event.Type)).
				Int("subscription_id", sub.id).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Event handler panicked")
		}
	}()

	sub.handler(event)
}

// Close drops all subscriptions
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[models.EventType][]subscription)
	s.all = nil
	s.logger.Debug().Msg("Event service closed")
}
