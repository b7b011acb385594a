package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/splitlab/splitlab/internal/store"
	"github.com/splitlab/splitlab/internal/testutil"
)

func testExperiment(id, name string) *store.Experiment {
	now := time.Unix(1700000000, 0)
	return &store.Experiment{
		ID:     id,
		Name:   name,
		Type:   store.TypeHomepage,
		Status: store.StatusDraft,
		Variants: []store.Variant{
			{Name: "A", Description: "control", TrafficAllocation: 50, Config: map[string]interface{}{"color": "blue"}},
			{Name: "B", TrafficAllocation: 50},
		},
		TargetAudience: store.TargetAudience{Type: "all"},
		Goals:          store.Goals{Primary: store.GoalConversion},
		Results:        store.ZeroResults(nil),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCreateAndGetExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	exp := testExperiment("exp-1", "homepage-cta")
	if err := s.CreateExperiment(ctx, exp); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := s.GetExperiment(ctx, "exp-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "homepage-cta" || got.Type != store.TypeHomepage || got.Status != store.StatusDraft {
		t.Errorf("unexpected experiment: %+v", got)
	}
	if len(got.Variants) != 2 || got.Variants[0].Config["color"] != "blue" {
		t.Errorf("variants did not round-trip: %+v", got.Variants)
	}
	if got.Goals.Primary != store.GoalConversion {
		t.Errorf("goals did not round-trip: %+v", got.Goals)
	}
	if got.StartDate != nil || got.EndDate != nil || got.Winner != nil {
		t.Errorf("expected null dates and winner on a fresh experiment")
	}

	// Result counters are initialized to zero for every metric and variant.
	for _, m := range store.Metrics {
		for _, v := range []string{"A", "B"} {
			if got.Results[m][v] != 0 {
				t.Errorf("expected zero counter for %s/%s, got %f", m, v, got.Results[m][v])
			}
		}
	}
}

func TestCreateExperiment_DuplicateName(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	if err := s.CreateExperiment(ctx, testExperiment("exp-1", "dup")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	err := s.CreateExperiment(ctx, testExperiment("exp-2", "dup"))
	if !errors.Is(err, store.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestGetExperiment_NotFound(t *testing.T) {
	s := testutil.SetupTestStore(t)

	_, err := s.GetExperiment(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListExperiments_Filter(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	a := testExperiment("exp-1", "one")
	b := testExperiment("exp-2", "two")
	b.Status = store.StatusRunning
	b.Type = store.TypeCheckout
	for _, exp := range []*store.Experiment{a, b} {
		if err := s.CreateExperiment(ctx, exp); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	all, err := s.ListExperiments(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 experiments, got %d", len(all))
	}

	running, err := s.ListExperiments(ctx, store.Filter{Status: store.StatusRunning})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(running) != 1 || running[0].ID != "exp-2" {
		t.Errorf("expected only exp-2 running, got %+v", running)
	}

	checkout, err := s.ListExperiments(ctx, store.Filter{Status: store.StatusRunning, Type: store.TypeCheckout})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(checkout) != 1 {
		t.Errorf("expected 1 checkout experiment, got %d", len(checkout))
	}
}

func TestUpdateExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	exp := testExperiment("exp-1", "before")
	if err := s.CreateExperiment(ctx, exp); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	now := time.Unix(1700001000, 0)
	winner := "B"
	exp.Name = "after"
	exp.Status = store.StatusCompleted
	exp.StartDate = &now
	exp.EndDate = &now
	exp.Winner = &winner
	exp.UpdatedAt = now
	if err := s.UpdateExperiment(ctx, exp); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := s.GetExperiment(ctx, "exp-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "after" || got.Status != store.StatusCompleted {
		t.Errorf("update did not stick: %+v", got)
	}
	if got.StartDate == nil || got.StartDate.Unix() != now.Unix() {
		t.Errorf("start date did not round-trip: %v", got.StartDate)
	}
	if got.Winner == nil || *got.Winner != "B" {
		t.Errorf("winner did not round-trip: %v", got.Winner)
	}
}

func TestUpdateExperiment_NotFound(t *testing.T) {
	s := testutil.SetupTestStore(t)

	err := s.UpdateExperiment(context.Background(), testExperiment("ghost", "ghost"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertAssignment_RaceLoserSeesWinner(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	if err := s.CreateExperiment(ctx, testExperiment("exp-1", "race")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	now := time.Unix(1700000000, 0)
	first := &store.Assignment{ExperimentID: "exp-1", UserID: "u1", Variant: "A", LastActivity: now, CreatedAt: now}
	inserted, err := s.InsertAssignment(ctx, first)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	if first.ID == 0 {
		t.Error("expected assignment id to be set")
	}

	// Second writer for the same (experiment, user) must lose and re-read.
	second := &store.Assignment{ExperimentID: "exp-1", UserID: "u1", Variant: "B", LastActivity: now, CreatedAt: now}
	inserted, err = s.InsertAssignment(ctx, second)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if inserted {
		t.Error("expected second insert to report a lost race")
	}

	got, err := s.GetAssignment(ctx, "exp-1", "u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Variant != "A" {
		t.Errorf("stored variant should be the first writer's, got %s", got.Variant)
	}
}

func TestIncrementAssignmentMetric(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	if err := s.CreateExperiment(ctx, testExperiment("exp-1", "inc")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	now := time.Unix(1700000000, 0)
	a := &store.Assignment{ExperimentID: "exp-1", UserID: "u1", Variant: "A", LastActivity: now, CreatedAt: now}
	if _, err := s.InsertAssignment(ctx, a); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	later := time.Unix(1700000500, 0)
	if err := s.IncrementAssignmentMetric(ctx, "exp-1", "u1", store.MetricImpressions, 1, later); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := s.IncrementAssignmentMetric(ctx, "exp-1", "u1", store.MetricImpressions, 1, later); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := s.IncrementAssignmentMetric(ctx, "exp-1", "u1", store.MetricRevenue, 19.99, later); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	got, err := s.GetAssignment(ctx, "exp-1", "u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Impressions != 2 {
		t.Errorf("expected 2 impressions, got %d", got.Impressions)
	}
	if got.Revenue != 19.99 {
		t.Errorf("expected revenue 19.99, got %f", got.Revenue)
	}
	if got.LastActivity.Unix() != later.Unix() {
		t.Errorf("expected last activity %v, got %v", later, got.LastActivity)
	}
}

func TestIncrementAssignmentMetric_Missing(t *testing.T) {
	s := testutil.SetupTestStore(t)

	err := s.IncrementAssignmentMetric(context.Background(), "exp-1", "ghost", store.MetricConversions, 1, time.Now())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementResultCounter(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	if err := s.CreateExperiment(ctx, testExperiment("exp-1", "counters")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := s.IncrementResultCounter(ctx, "exp-1", store.MetricConversions, "A", 1); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := s.IncrementResultCounter(ctx, "exp-1", store.MetricConversions, "A", 1); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	results, err := s.GetResults(ctx, "exp-1")
	if err != nil {
		t.Fatalf("get results failed: %v", err)
	}
	if results[store.MetricConversions]["A"] != 2 {
		t.Errorf("expected 2 conversions for A, got %f", results[store.MetricConversions]["A"])
	}
	if results[store.MetricConversions]["B"] != 0 {
		t.Errorf("expected 0 conversions for B, got %f", results[store.MetricConversions]["B"])
	}
}

func TestVariantTotals(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	if err := s.CreateExperiment(ctx, testExperiment("exp-1", "totals")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	now := time.Unix(1700000000, 0)
	for i, tc := range []struct {
		user    string
		variant string
	}{
		{"u1", "A"}, {"u2", "A"}, {"u3", "B"},
	} {
		a := &store.Assignment{ExperimentID: "exp-1", UserID: tc.user, Variant: tc.variant, LastActivity: now, CreatedAt: now}
		if _, err := s.InsertAssignment(ctx, a); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
		if err := s.IncrementAssignmentMetric(ctx, "exp-1", tc.user, store.MetricImpressions, 1, now); err != nil {
			t.Fatalf("increment %d failed: %v", i, err)
		}
	}
	if err := s.IncrementAssignmentMetric(ctx, "exp-1", "u1", store.MetricConversions, 1, now); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	totals, err := s.VariantTotals(ctx, "exp-1")
	if err != nil {
		t.Fatalf("totals failed: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("expected totals for 2 variants, got %d", len(totals))
	}
	if totals[0].Variant != "A" || totals[0].Users != 2 || totals[0].Impressions != 2 || totals[0].Conversions != 1 {
		t.Errorf("unexpected totals for A: %+v", totals[0])
	}
	if totals[1].Variant != "B" || totals[1].Users != 1 || totals[1].Impressions != 1 {
		t.Errorf("unexpected totals for B: %+v", totals[1])
	}
}

func TestDeleteExperiment_Cascades(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	if err := s.CreateExperiment(ctx, testExperiment("exp-1", "cascade")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	now := time.Unix(1700000000, 0)
	a := &store.Assignment{ExperimentID: "exp-1", UserID: "u1", Variant: "A", LastActivity: now, CreatedAt: now}
	if _, err := s.InsertAssignment(ctx, a); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := s.DeleteExperiment(ctx, "exp-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := s.GetExperiment(ctx, "exp-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected experiment gone, got %v", err)
	}
	if _, err := s.GetAssignment(ctx, "exp-1", "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected assignment gone, got %v", err)
	}

	if err := s.DeleteExperiment(ctx, "exp-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}
