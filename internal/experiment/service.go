// Package experiment implements the experimentation engine: lifecycle
// management, sticky weighted variant assignment, event tracking with
// dual-representation counters, results aggregation and significance
// testing.
package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"github.com/google/uuid"

	"github.com/splitlab/splitlab/internal/cache"
	"github.com/splitlab/splitlab/internal/logger"
	"github.com/splitlab/splitlab/internal/store"
)

type Service struct {
	store  store.Store
	cache  cache.Cache
	clock  Clock
	random RandomSource
	log    *logger.Logger
}

func New(st store.Store, c cache.Cache, clk Clock, rnd RandomSource, log *logger.Logger) *Service {
	return &Service{store: st, cache: c, clock: clk, random: rnd, log: log}
}

// CreateParams describes a new experiment. Status, dates, results and
// winner are engine-owned and cannot be supplied here.
type CreateParams struct {
	Name           string               `json:"name"`
	Type           store.ExperimentType `json:"type"`
	Variants       []store.Variant      `json:"variants"`
	TargetAudience store.TargetAudience `json:"targetAudience"`
	Goals          store.Goals          `json:"goals"`
}

// Patch carries the caller-updatable fields. Results and winner have no
// representation here: attempts to set them through an update are silently
// dropped because those fields belong to the lifecycle manager.
type Patch struct {
	Name           *string               `json:"name"`
	Type           *store.ExperimentType `json:"type"`
	Variants       []store.Variant       `json:"variants"`
	TargetAudience *store.TargetAudience `json:"targetAudience"`
	Goals          *store.Goals          `json:"goals"`
}

func (s *Service) CreateExperiment(ctx context.Context, params CreateParams) (*store.Experiment, error) {
	if params.Name == "" {
		return nil, validationf("experiment name is required")
	}
	if err := validateVariants(params.Variants); err != nil {
		return nil, err
	}
	if params.Type == "" {
		params.Type = store.TypeOther
	}
	if err := validateType(params.Type); err != nil {
		return nil, err
	}
	if params.Goals.Primary == "" {
		params.Goals.Primary = store.GoalConversion
	}
	if err := validateGoals(params.Goals); err != nil {
		return nil, err
	}

	if _, err := s.store.GetExperimentByName(ctx, params.Name); err == nil {
		return nil, validationf("experiment %q already exists", params.Name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, &StoreUnavailableError{Err: err}
	}

	now := s.clock.Now()
	exp := &store.Experiment{
		ID:             uuid.NewString(),
		Name:           params.Name,
		Type:           params.Type,
		Status:         store.StatusDraft,
		Variants:       params.Variants,
		TargetAudience: params.TargetAudience,
		Goals:          params.Goals,
		Results:        store.ZeroResults(params.Variants),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.CreateExperiment(ctx, exp); err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			return nil, validationf("experiment %q already exists", params.Name)
		}
		return nil, &StoreUnavailableError{Err: err}
	}

	s.invalidateExperiment(ctx, exp.ID)
	s.log.Info("experiment created", "id", exp.ID, "name", exp.Name)
	return exp, nil
}

// GetExperiment reads through the per-experiment detail cache.
func (s *Service) GetExperiment(ctx context.Context, id string) (*store.Experiment, error) {
	if data, ok := s.cache.Get(ctx, cache.DetailKey(id)); ok {
		var exp store.Experiment
		if err := json.Unmarshal(data, &exp); err == nil {
			return &exp, nil
		}
		s.log.Warn("dropping undecodable cache entry", "key", cache.DetailKey(id))
	}

	exp, err := s.loadExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(exp); err == nil {
		s.cache.Set(ctx, cache.DetailKey(id), data, cache.DetailTTL)
	}
	return exp, nil
}

// ListExperiments returns experiments matching the filter. The running-only
// listing is the hot path for assignment fan-out and is cached.
func (s *Service) ListExperiments(ctx context.Context, filter store.Filter) ([]*store.Experiment, error) {
	cacheable := filter.Status == store.StatusRunning && filter.Type == ""
	if cacheable {
		if data, ok := s.cache.Get(ctx, cache.ActiveListKey()); ok {
			var experiments []*store.Experiment
			if err := json.Unmarshal(data, &experiments); err == nil {
				return experiments, nil
			}
		}
	}

	experiments, err := s.store.ListExperiments(ctx, filter)
	if err != nil {
		return nil, &StoreUnavailableError{Err: err}
	}

	if cacheable {
		if data, err := json.Marshal(experiments); err == nil {
			s.cache.Set(ctx, cache.ActiveListKey(), data, cache.ActiveListTTL)
		}
	}
	return experiments, nil
}

func (s *Service) UpdateExperiment(ctx context.Context, id string, patch Patch) (*store.Experiment, error) {
	exp, err := s.loadExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status == store.StatusCompleted {
		return nil, stateConflictf("cannot update completed experiment %q", id)
	}

	if patch.Name != nil && *patch.Name != exp.Name {
		if *patch.Name == "" {
			return nil, validationf("experiment name is required")
		}
		if _, err := s.store.GetExperimentByName(ctx, *patch.Name); err == nil {
			return nil, validationf("experiment %q already exists", *patch.Name)
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, &StoreUnavailableError{Err: err}
		}
		exp.Name = *patch.Name
	}
	if patch.Type != nil {
		if err := validateType(*patch.Type); err != nil {
			return nil, err
		}
		exp.Type = *patch.Type
	}
	if patch.Variants != nil {
		if err := validateVariants(patch.Variants); err != nil {
			return nil, err
		}
		exp.Variants = patch.Variants
	}
	if patch.TargetAudience != nil {
		exp.TargetAudience = *patch.TargetAudience
	}
	if patch.Goals != nil {
		if err := validateGoals(*patch.Goals); err != nil {
			return nil, err
		}
		exp.Goals = *patch.Goals
	}

	exp.UpdatedAt = s.clock.Now()
	if err := s.saveExperiment(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *Service) StartExperiment(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := s.loadExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	switch exp.Status {
	case store.StatusRunning:
		return nil, stateConflictf("experiment %q is already running", id)
	case store.StatusCompleted:
		return nil, stateConflictf("cannot start completed experiment %q", id)
	}

	now := s.clock.Now()
	exp.Status = store.StatusRunning
	// The start date is overwritten on every start call, including a resume
	// from paused. Known quirk, kept on purpose.
	exp.StartDate = &now
	exp.UpdatedAt = now

	if err := s.saveExperiment(ctx, exp); err != nil {
		return nil, err
	}
	s.log.Info("experiment started", "id", exp.ID, "name", exp.Name)
	return exp, nil
}

func (s *Service) PauseExperiment(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := s.loadExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusRunning {
		return nil, stateConflictf("cannot pause experiment %q in status %s", id, exp.Status)
	}

	exp.Status = store.StatusPaused
	exp.UpdatedAt = s.clock.Now()
	if err := s.saveExperiment(ctx, exp); err != nil {
		return nil, err
	}
	s.log.Info("experiment paused", "id", exp.ID, "name", exp.Name)
	return exp, nil
}

// CompleteExperiment freezes the experiment. Completion is allowed from any
// non-completed status. With no explicit winner the winner is derived from
// the primary goal metric; it stays null when no variant has a positive
// value for that metric.
func (s *Service) CompleteExperiment(ctx context.Context, id string, explicitWinner *string) (*store.Experiment, error) {
	exp, err := s.loadExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status == store.StatusCompleted {
		return nil, stateConflictf("experiment %q is already completed", id)
	}

	var winner *string
	if explicitWinner != nil {
		if exp.VariantByName(*explicitWinner) == nil {
			return nil, validationf("winner %q is not a variant of experiment %q", *explicitWinner, id)
		}
		winner = explicitWinner
	} else {
		totals, err := s.store.VariantTotals(ctx, exp.ID)
		if err != nil {
			return nil, &StoreUnavailableError{Err: err}
		}
		winner = autoWinner(exp.Goals.Primary, exp.Variants, totals)
	}

	now := s.clock.Now()
	exp.Status = store.StatusCompleted
	exp.EndDate = &now
	exp.Winner = winner
	exp.UpdatedAt = now

	if err := s.saveExperiment(ctx, exp); err != nil {
		return nil, err
	}
	if winner != nil {
		s.log.Info("experiment completed", "id", exp.ID, "winner", *winner)
	} else {
		s.log.Info("experiment completed with no winner", "id", exp.ID)
	}
	return exp, nil
}

func (s *Service) DeleteExperiment(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := s.loadExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status == store.StatusRunning {
		return nil, stateConflictf("cannot delete running experiment %q", id)
	}

	if err := s.store.DeleteExperiment(ctx, id); err != nil {
		return nil, storeErr(err, "experiment", id)
	}

	s.invalidateExperiment(ctx, id)
	s.cache.InvalidatePrefix(ctx, cache.AssignmentPrefix(id))
	s.log.Info("experiment deleted", "id", id, "name", exp.Name)
	return exp, nil
}

// loadExperiment reads the store directly, bypassing the cache. Mutating
// operations must see current state.
func (s *Service) loadExperiment(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := s.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, storeErr(err, "experiment", id)
	}
	return exp, nil
}

// saveExperiment persists a mutated experiment and invalidates the cache
// entries the mutation could have made stale, before success is reported.
func (s *Service) saveExperiment(ctx context.Context, exp *store.Experiment) error {
	if err := s.store.UpdateExperiment(ctx, exp); err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			return validationf("experiment %q already exists", exp.Name)
		}
		return storeErr(err, "experiment", exp.ID)
	}
	s.invalidateExperiment(ctx, exp.ID)
	return nil
}

func (s *Service) invalidateExperiment(ctx context.Context, id string) {
	s.cache.Invalidate(ctx, cache.ActiveListKey(), cache.DetailKey(id))
}

func validateVariants(variants []store.Variant) error {
	if len(variants) < 2 {
		return validationf("experiment needs at least 2 variants, got %d", len(variants))
	}

	seen := make(map[string]bool, len(variants))
	sum := 0.0
	for _, v := range variants {
		if v.Name == "" {
			return validationf("variant name is required")
		}
		if seen[v.Name] {
			return validationf("duplicate variant name %q", v.Name)
		}
		seen[v.Name] = true
		if v.TrafficAllocation < 0 || v.TrafficAllocation > 100 {
			return validationf("variant %q traffic allocation %.2f out of range 0-100", v.Name, v.TrafficAllocation)
		}
		sum += v.TrafficAllocation
	}
	if math.Abs(sum-100) > 1e-9 {
		return validationf("traffic allocations must sum to 100, got %.2f", sum)
	}
	return nil
}

func validateType(t store.ExperimentType) error {
	switch t {
	case store.TypeProduct, store.TypeCategory, store.TypeCheckout, store.TypeHomepage, store.TypeOther:
		return nil
	}
	return validationf("unknown experiment type %q", t)
}

func validateGoals(goals store.Goals) error {
	if err := validateGoal(goals.Primary); err != nil {
		return err
	}
	for _, g := range goals.Secondary {
		if err := validateGoal(g); err != nil {
			return err
		}
	}
	return nil
}

func validateGoal(g store.Goal) error {
	switch g {
	case store.GoalConversion, store.GoalRevenue, store.GoalEngagement, store.GoalRetention, store.GoalOther:
		return nil
	}
	return validationf("unknown goal %q", g)
}
