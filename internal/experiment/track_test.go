package experiment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/store"
)

func TestTrackEvent_NotRunningIsNoOp(t *testing.T) {
	engine, s := newTestEngine(t, newFakeClock(), &seqRandom{values: []float64{10}})
	ctx := context.Background()

	exp := createABExperiment(t, engine, "droppable")

	a, err := engine.TrackEvent(ctx, "u1", exp.ID, experiment.Event{Type: experiment.EventImpression})
	if err != nil {
		t.Fatalf("tracking on draft experiment should not error: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil assignment for dropped event, got %+v", a)
	}
	if _, err := s.GetAssignment(ctx, exp.ID, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("dropped event must not create an assignment, got %v", err)
	}

	startExperiment(t, engine, exp.ID)
	if _, err := engine.PauseExperiment(ctx, exp.ID); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	a, err = engine.TrackEvent(ctx, "u1", exp.ID, experiment.Event{Type: experiment.EventConversion})
	if err != nil || a != nil {
		t.Errorf("tracking on paused experiment should be a no-op, got (%+v, %v)", a, err)
	}
}

func TestTrackEvent_UnknownType(t *testing.T) {
	engine, _ := newTestEngine(t, newFakeClock(), &seqRandom{values: []float64{10}})

	exp := createABExperiment(t, engine, "bad-event")
	startExperiment(t, engine, exp.ID)

	_, err := engine.TrackEvent(context.Background(), "u1", exp.ID, experiment.Event{Type: "pageview"})
	var validationErr *experiment.ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("expected ValidationError for unknown event type, got %v", err)
	}
}

func TestTrackEvent_IncrementsCounters(t *testing.T) {
	clk := newFakeClock()
	engine, _ := newTestEngine(t, clk, &seqRandom{values: []float64{10}})
	ctx := context.Background()

	exp := createABExperiment(t, engine, "counters")
	startExperiment(t, engine, exp.ID)

	if _, err := engine.TrackEvent(ctx, "u1", exp.ID, experiment.Event{Type: experiment.EventImpression}); err != nil {
		t.Fatalf("track failed: %v", err)
	}
	if _, err := engine.TrackEvent(ctx, "u1", exp.ID, experiment.Event{Type: experiment.EventImpression}); err != nil {
		t.Fatalf("track failed: %v", err)
	}
	if _, err := engine.TrackEvent(ctx, "u1", exp.ID, experiment.Event{Type: experiment.EventConversion}); err != nil {
		t.Fatalf("track failed: %v", err)
	}
	if _, err := engine.TrackEvent(ctx, "u1", exp.ID, experiment.Event{Type: experiment.EventEngagement}); err != nil {
		t.Fatalf("track failed: %v", err)
	}

	clk.advance(2 * time.Hour)
	a, err := engine.TrackEvent(ctx, "u1", exp.ID, experiment.Event{Type: experiment.EventRevenue, Amount: 19.99})
	if err != nil {
		t.Fatalf("track failed: %v", err)
	}

	if a.Impressions != 2 {
		t.Errorf("expected 2 impressions, got %d", a.Impressions)
	}
	if a.Conversions != 1 {
		t.Errorf("expected 1 conversion, got %d", a.Conversions)
	}
	if a.Engagements != 1 {
		t.Errorf("expected 1 engagement, got %d", a.Engagements)
	}
	if a.Revenue != 19.99 {
		t.Errorf("expected revenue 19.99, got %f", a.Revenue)
	}
	if !a.LastActivity.Equal(clk.now) {
		t.Errorf("expected lastActivity %v, got %v", clk.now, a.LastActivity)
	}
}

func TestTrackEvent_MirrorsExperimentCounters(t *testing.T) {
	engine, _ := newTestEngine(t, newFakeClock(), &seqRandom{values: []float64{10}})
	ctx := context.Background()

	exp := createABExperiment(t, engine, "mirror")
	startExperiment(t, engine, exp.ID)

	if _, err := engine.TrackEvent(ctx, "u1", exp.ID, experiment.Event{Type: experiment.EventImpression}); err != nil {
		t.Fatalf("track failed: %v", err)
	}
	if _, err := engine.TrackEvent(ctx, "u1", exp.ID, experiment.Event{Type: experiment.EventRevenue, Amount: 5.50}); err != nil {
		t.Fatalf("track failed: %v", err)
	}

	// The detail cache was invalidated by tracking, so this read sees the
	// mirrored counters.
	fresh, err := engine.GetExperiment(ctx, exp.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got := fresh.Results[store.MetricImpressions]["A"]; got != 1 {
		t.Errorf("expected experiment-level impressions 1 for A, got %f", got)
	}
	if got := fresh.Results[store.MetricRevenue]["A"]; got != 5.50 {
		t.Errorf("expected experiment-level revenue 5.50 for A, got %f", got)
	}
	if got := fresh.Results[store.MetricImpressions]["B"]; got != 0 {
		t.Errorf("expected experiment-level impressions 0 for B, got %f", got)
	}
}

func TestTrackEvent_CreatesAssignment(t *testing.T) {
	engine, _ := newTestEngine(t, newFakeClock(), &seqRandom{values: []float64{75}})
	ctx := context.Background()

	exp := createABExperiment(t, engine, "implicit-assign")
	startExperiment(t, engine, exp.ID)

	a, err := engine.TrackEvent(ctx, "u1", exp.ID, experiment.Event{Type: experiment.EventImpression})
	if err != nil {
		t.Fatalf("track failed: %v", err)
	}
	if a.Variant != "B" {
		t.Errorf("expected first event to assign variant B, got %s", a.Variant)
	}

	// The implicit assignment is as sticky as an explicit one.
	again, err := engine.GetOrCreateAssignment(ctx, "u1", exp.ID)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if again.Variant != "B" {
		t.Errorf("expected sticky variant B, got %s", again.Variant)
	}
}
