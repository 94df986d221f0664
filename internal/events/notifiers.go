package events

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/piragazh/feasto/internal/obs"
)

// LogNotifier writes every event to the structured log at debug level.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Debug().
		Str("event_id", event.ID.String()).
		Str("topic", event.Topic).
		Str("session_id", event.SessionID.String()).
		RawJSON("payload", event.Payload).
		Time("occurred_at", event.OccurredAt).
		Msg("engine event")
	return nil
}

// MetricsNotifier feeds the Prometheus discount counters from the event
// stream so the engine core stays free of metrics plumbing.
type MetricsNotifier struct{}

// Notify implements Notifier.
func (MetricsNotifier) Notify(_ context.Context, event Event) error {
	switch event.Topic {
	case TopicDiscountApplied:
		var payload struct {
			Manual bool `json:"manual"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err == nil && !payload.Manual {
			if obs.AutoApplyTotal != nil {
				obs.AutoApplyTotal.Inc()
			}
		}
	case TopicDiscountEvicted:
		if obs.DiscountEvictedTotal != nil {
			obs.DiscountEvictedTotal.Inc()
		}
	}
	return nil
}
