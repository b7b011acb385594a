package experiment

import (
	"context"

	"github.com/splitlab/splitlab/internal/stats"
	"github.com/splitlab/splitlab/internal/store"
)

// ExperimentResults is the full current standing of an experiment: one row
// per variant plus the significance verdict. Winner is the recorded winner
// of a completed experiment, not the significance test's pick.
type ExperimentResults struct {
	ExperimentID string                 `json:"experimentId"`
	Name         string                 `json:"name"`
	Status       store.ExperimentStatus `json:"status"`
	PrimaryGoal  store.Goal             `json:"primaryGoal"`
	Variants     []stats.VariantResult  `json:"variants"`
	Significance stats.Significance     `json:"significance"`
	Winner       *string                `json:"winner"`
}

// GetResults aggregates assignment rows into per-variant totals and runs
// the significance test. The authoritative per-user rows are scanned here,
// not the denormalized counters, so a read sees converged numbers.
func (s *Service) GetResults(ctx context.Context, experimentID string) (*ExperimentResults, error) {
	exp, err := s.loadExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	totals, err := s.store.VariantTotals(ctx, exp.ID)
	if err != nil {
		return nil, &StoreUnavailableError{Err: err}
	}

	rows := stats.Aggregate(exp.Variants, totals)
	return &ExperimentResults{
		ExperimentID: exp.ID,
		Name:         exp.Name,
		Status:       exp.Status,
		PrimaryGoal:  exp.Goals.Primary,
		Variants:     rows,
		Significance: stats.CalculateSignificance(rows),
		Winner:       exp.Winner,
	}, nil
}
