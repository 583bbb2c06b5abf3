package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/common"
	"github.com/ternarybob/auditmysite/internal/models"
)

func newTestBus() *Service {
	return NewService(arbor.NewLogger())
}

func TestPublish_SynchronousOrderedDelivery(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var order []string
	bus.Subscribe(models.EventURLStarted, func(event models.Event) {
		order = append(order, "first")
	})
	bus.Subscribe(models.EventURLStarted, func(event models.Event) {
		order = append(order, "second")
	})
	bus.SubscribeAll(func(event models.Event) {
		order = append(order, "wildcard")
	})

	bus.Publish(models.Event{Type: models.EventURLStarted, Timestamp: time.Now()})

	// Delivery completes before Publish returns, in registration order
	assert.Equal(t, []string{"first", "second", "wildcard"}, order)
}

func TestPublish_TypeFiltering(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	started := 0
	completed := 0
	bus.Subscribe(models.EventURLStarted, func(event models.Event) { started++ })
	bus.Subscribe(models.EventURLCompleted, func(event models.Event) { completed++ })

	bus.Publish(models.Event{Type: models.EventURLStarted})
	bus.Publish(models.Event{Type: models.EventURLStarted})
	bus.Publish(models.Event{Type: models.EventURLCompleted})

	assert.Equal(t, 2, started)
	assert.Equal(t, 1, completed)
}

func TestPublish_PanickingHandlerIsContained(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var after []string
	bus.Subscribe(models.EventProgress, func(event models.Event) {
		panic("handler exploded")
	})
	bus.Subscribe(models.EventProgress, func(event models.Event) {
		after = append(after, "survived")
	})

	// Must not panic, and the second handler still runs
	assert.NotPanics(t, func() {
		bus.Publish(models.Event{Type: models.EventProgress})
	})
	assert.Equal(t, []string{"survived"}, after)
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	calls := 0
	id := bus.Subscribe(models.EventQueueEmpty, func(event models.Event) { calls++ })

	bus.Publish(models.Event{Type: models.EventQueueEmpty})
	bus.Unsubscribe(id)
	bus.Publish(models.Event{Type: models.EventQueueEmpty})

	assert.Equal(t, 1, calls)
}

func TestSubscribe_NilHandlerIgnored(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	assert.Equal(t, 0, bus.Subscribe(models.EventProgress, nil))
	assert.Equal(t, 0, bus.SubscribeAll(nil))
	assert.NotPanics(t, func() {
		bus.Publish(models.Event{Type: models.EventProgress})
	})
}

func TestAdaptLegacyCallbacks(t *testing.T) {
	t.Setenv("CI", "")
	t.Setenv("AUDITMYSITE_SUPPRESS_DEPRECATIONS", "")
	t.Setenv("AUDITMYSITE_ENV", "")
	common.ResetDeprecations()
	defer common.ResetDeprecations()

	bus := newTestBus()
	defer bus.Close()

	var startedURLs []string
	var completedResults []*models.PageResult
	var failedURLs []string
	var progressCount int

	ids := AdaptLegacyCallbacks(bus, LegacyCallbacks{
		OnURLStarted:   func(url string) { startedURLs = append(startedURLs, url) },
		OnURLCompleted: func(r *models.PageResult) { completedResults = append(completedResults, r) },
		OnURLFailed:    func(url, errMsg string) { failedURLs = append(failedURLs, url) },
		OnProgress:     func(stats models.QueueStats) { progressCount++ },
	}, arbor.NewLogger())
	require.Len(t, ids, 4)

	bus.Publish(models.Event{
		Type:    models.EventURLStarted,
		Payload: models.URLStartedPayload{URL: "https://example.com/a", Attempt: 1},
	})
	bus.Publish(models.Event{
		Type:    models.EventURLCompleted,
		Payload: models.URLCompletedPayload{Result: &models.PageResult{URL: "https://example.com/a"}},
	})

	// Non-terminal failures do not reach the legacy error callback
	bus.Publish(models.Event{
		Type:    models.EventURLFailed,
		Payload: models.URLFailedPayload{URL: "https://example.com/b", Error: "timeout", Attempt: 1, Terminal: false},
	})
	bus.Publish(models.Event{
		Type:    models.EventURLFailed,
		Payload: models.URLFailedPayload{URL: "https://example.com/b", Error: "timeout", Attempt: 3, Terminal: true},
	})
	bus.Publish(models.Event{
		Type:    models.EventProgress,
		Payload: models.ProgressPayload{Stats: models.QueueStats{Total: 2}},
	})

	assert.Equal(t, []string{"https://example.com/a"}, startedURLs)
	require.Len(t, completedResults, 1)
	assert.Equal(t, "https://example.com/a", completedResults[0].URL)
	assert.Equal(t, []string{"https://example.com/b"}, failedURLs)
	assert.Equal(t, 1, progressCount)
}
