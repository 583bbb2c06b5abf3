package events

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/common"
	"github.com/ternarybob/auditmysite/internal/models"
)

// LegacyCallbacks is the pre-bus per-operation callback surface. New code
// should subscribe to the event bus instead.
type LegacyCallbacks struct {
	OnURLStarted   func(url string)
	OnURLCompleted func(result *models.PageResult)
	OnURLFailed    func(url string, errMsg string)
	OnProgress     func(stats models.QueueStats)
}

// AdaptLegacyCallbacks bridges a callback block onto the bus. Each non-nil
// callback logs a one-time deprecation notice when first invoked. Returns
// the subscription ids so callers can unsubscribe.
func AdaptLegacyCallbacks(bus *Service, cb LegacyCallbacks, logger arbor.ILogger) []int {
	var ids []int

	if cb.OnURLStarted != nil {
		ids = append(ids, bus.Subscribe(models.EventURLStarted, func(event models.Event) {
			common.WarnDeprecated(logger, "callbacks.onURLStarted", "subscribe to the url-started event instead")
			if p, ok := event.Payload.(models.URLStartedPayload); ok {
				cb.OnURLStarted(p.URL)
			}
		}))
	}

	if cb.OnURLCompleted != nil {
		ids = append(ids, bus.Subscribe(models.EventURLCompleted, func(event models.Event) {
			common.WarnDeprecated(logger, "callbacks.onURLCompleted", "subscribe to the url-completed event instead")
			if p, ok := event.Payload.(models.URLCompletedPayload); ok {
				cb.OnURLCompleted(p.Result)
			}
		}))
	}

	if cb.OnURLFailed != nil {
		ids = append(ids, bus.Subscribe(models.EventURLFailed, func(event models.Event) {
			common.WarnDeprecated(logger, "callbacks.onURLFailed", "subscribe to the url-failed event instead")
			if p, ok := event.Payload.(models.URLFailedPayload); ok && p.Terminal {
				cb.OnURLFailed(p.URL, p.Error)
			}
		}))
	}

	if cb.OnProgress != nil {
		ids = append(ids, bus.Subscribe(models.EventProgress, func(event models.Event) {
			common.WarnDeprecated(logger, "callbacks.onProgress", "subscribe to the progress event instead")
			if p, ok := event.Payload.(models.ProgressPayload); ok {
				cb.OnProgress(p.Stats)
			}
		}))
	}

	return ids
}
