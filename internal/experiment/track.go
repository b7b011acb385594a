package experiment

import (
	"context"

	"github.com/splitlab/splitlab/internal/cache"
	"github.com/splitlab/splitlab/internal/store"
)

type EventType string

const (
	EventImpression EventType = "impression"
	EventConversion EventType = "conversion"
	EventRevenue    EventType = "revenue"
	EventEngagement EventType = "engagement"
)

// Event is one tracked occurrence. Amount is only read for revenue events
// and defaults to 0.
type Event struct {
	Type   EventType `json:"type"`
	Amount float64   `json:"amount,omitempty"`
}

func (e Event) metric() (store.Metric, float64, error) {
	switch e.Type {
	case EventImpression:
		return store.MetricImpressions, 1, nil
	case EventConversion:
		return store.MetricConversions, 1, nil
	case EventRevenue:
		return store.MetricRevenue, e.Amount, nil
	case EventEngagement:
		return store.MetricEngagements, 1, nil
	default:
		return "", 0, validationf("unknown event type %q", e.Type)
	}
}

// TrackEvent records an event against the user's assignment and mirrors the
// increment onto the experiment's denormalized counters. Tracking against
// an experiment that is not running is a no-op returning nil, not an error:
// a page loaded while the experiment ran may still fire events after a
// pause, and instrumentation must not break that client flow.
//
// The two counter representations are updated by independent atomic
// increments and may diverge briefly under concurrent writers; they
// converge once in-flight increments land.
func (s *Service) TrackEvent(ctx context.Context, userID, experimentID string, ev Event) (*store.Assignment, error) {
	metric, delta, err := ev.metric()
	if err != nil {
		return nil, err
	}

	exp, err := s.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusRunning {
		s.log.Debug("event dropped, experiment not running",
			"experiment", experimentID, "status", exp.Status, "event", ev.Type)
		return nil, nil
	}

	a, err := s.ensureAssignment(ctx, exp, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.store.IncrementAssignmentMetric(ctx, exp.ID, userID, metric, delta, now); err != nil {
		return nil, storeErr(err, "assignment", userID)
	}
	if err := s.store.IncrementResultCounter(ctx, exp.ID, metric, a.Variant, delta); err != nil {
		return nil, &StoreUnavailableError{Err: err}
	}

	s.cache.Invalidate(ctx, cache.AssignmentKey(exp.ID, userID), cache.DetailKey(exp.ID))

	a, err = s.store.GetAssignment(ctx, exp.ID, userID)
	if err != nil {
		return nil, storeErr(err, "assignment", userID)
	}
	s.cacheAssignment(ctx, a)
	return a, nil
}
