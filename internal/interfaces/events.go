package interfaces

import "github.com/ternarybob/auditmysite/internal/models"

// EventHandler processes a single event. Handlers run synchronously in the
// emitter's goroutine; long work should be handed off by the subscriber.
type EventHandler func(event models.Event)

// EventService is the engine-wide publish/subscribe bus
type EventService interface {
	// Subscribe registers a handler for one event type and returns a
	// subscription id usable with Unsubscribe
	Subscribe(eventType models.EventType, handler EventHandler) int

	// SubscribeAll registers a handler for every event type
	SubscribeAll(handler EventHandler) int

	// Unsubscribe removes a subscription by id
	Unsubscribe(id int)

	// Publish delivers an event to all matching handlers in registration
	// order before returning
	Publish(event models.Event)

	// Close drops all subscriptions
	Close()
}
