package experiment_test

import (
	"context"
	"testing"
	"time"

	"github.com/splitlab/splitlab/internal/cache"
	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/logger"
	"github.com/splitlab/splitlab/internal/store"
	"github.com/splitlab/splitlab/internal/testutil"
)

// fakeClock returns a fixed time that tests can advance.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// seqRandom replays a fixed sequence of draws, cycling when exhausted.
type seqRandom struct {
	values []float64
	i      int
}

func (r *seqRandom) Next() float64 {
	v := r.values[r.i%len(r.values)]
	r.i++
	return v
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func newTestEngine(t *testing.T, clk experiment.Clock, rnd experiment.RandomSource) (*experiment.Service, *store.SQLiteStore) {
	t.Helper()
	s := testutil.SetupTestStore(t)
	engine := experiment.New(s, cache.NewMemory(), clk, rnd, logger.Nop())
	return engine, s
}

func createABExperiment(t *testing.T, engine *experiment.Service, name string) *store.Experiment {
	t.Helper()
	exp, err := engine.CreateExperiment(context.Background(), experiment.CreateParams{
		Name: name,
		Type: store.TypeHomepage,
		Variants: []store.Variant{
			{Name: "A", TrafficAllocation: 50, Config: map[string]interface{}{"headline": "Ship Faster"}},
			{Name: "B", TrafficAllocation: 50, Config: map[string]interface{}{"headline": "Build Better"}},
		},
		Goals: store.Goals{Primary: store.GoalConversion},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return exp
}

func startExperiment(t *testing.T, engine *experiment.Service, id string) *store.Experiment {
	t.Helper()
	exp, err := engine.StartExperiment(context.Background(), id)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return exp
}
