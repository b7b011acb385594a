package experiment

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/splitlab/splitlab/internal/cache"
	"github.com/splitlab/splitlab/internal/store"
)

// GetOrCreateAssignment returns the user's sticky assignment for a running
// experiment, drawing and persisting a variant on first contact. A variant
// never changes once assigned.
func (s *Service) GetOrCreateAssignment(ctx context.Context, userID, experimentID string) (*store.Assignment, error) {
	exp, err := s.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return s.ensureAssignment(ctx, exp, userID)
}

// UserVariant is an assignment augmented with the variant's static config,
// as handed to clients rendering the experiment.
type UserVariant struct {
	ExperimentID   string                 `json:"experimentId"`
	ExperimentName string                 `json:"experimentName"`
	Variant        string                 `json:"variant"`
	Config         map[string]interface{} `json:"config,omitempty"`
	Assignment     *store.Assignment      `json:"assignment"`
}

// ListUserAssignments resolves the user's variant for every running
// experiment, creating assignments as needed. An experiment whose
// assignment fails is logged and skipped so one bad experiment cannot take
// down the whole listing.
func (s *Service) ListUserAssignments(ctx context.Context, userID string) ([]UserVariant, error) {
	running, err := s.ListExperiments(ctx, store.Filter{Status: store.StatusRunning})
	if err != nil {
		return nil, err
	}

	out := make([]UserVariant, 0, len(running))
	for _, exp := range running {
		a, err := s.ensureAssignment(ctx, exp, userID)
		if err != nil {
			s.log.Warn("skipping assignment", "experiment", exp.ID, "user", userID, "error", err)
			continue
		}
		uv := UserVariant{
			ExperimentID:   exp.ID,
			ExperimentName: exp.Name,
			Variant:        a.Variant,
			Assignment:     a,
		}
		if v := exp.VariantByName(a.Variant); v != nil {
			uv.Config = v.Config
		}
		out = append(out, uv)
	}
	return out, nil
}

func (s *Service) ensureAssignment(ctx context.Context, exp *store.Experiment, userID string) (*store.Assignment, error) {
	if exp.Status != store.StatusRunning {
		return nil, stateConflictf("experiment %q is not running", exp.ID)
	}

	if data, ok := s.cache.Get(ctx, cache.AssignmentKey(exp.ID, userID)); ok {
		var a store.Assignment
		if err := json.Unmarshal(data, &a); err == nil {
			return &a, nil
		}
	}

	a, err := s.store.GetAssignment(ctx, exp.ID, userID)
	if err == nil {
		s.cacheAssignment(ctx, a)
		return a, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, &StoreUnavailableError{Err: err}
	}

	now := s.clock.Now()
	a = &store.Assignment{
		ExperimentID: exp.ID,
		UserID:       userID,
		Variant:      s.drawVariant(exp.Variants),
		LastActivity: now,
		CreatedAt:    now,
	}

	inserted, err := s.store.InsertAssignment(ctx, a)
	if err != nil {
		return nil, &StoreUnavailableError{Err: err}
	}
	if !inserted {
		// A concurrent request won the insert; its variant is the sticky one.
		a, err = s.store.GetAssignment(ctx, exp.ID, userID)
		if err != nil {
			return nil, storeErr(err, "assignment", userID)
		}
	} else {
		s.log.Debug("assignment created", "experiment", exp.ID, "user", userID, "variant", a.Variant)
	}

	s.cacheAssignment(ctx, a)
	return a, nil
}

// drawVariant walks the variants in declaration order, accumulating traffic
// allocations until the uniform draw falls inside a variant's slice.
func (s *Service) drawVariant(variants []store.Variant) string {
	r := s.random.Next()
	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.TrafficAllocation
		if r <= cumulative {
			return v.Name
		}
	}
	// Allocations sum to 100 and r < 100, so only floating-point drift can
	// land here.
	return variants[0].Name
}

func (s *Service) cacheAssignment(ctx context.Context, a *store.Assignment) {
	if data, err := json.Marshal(a); err == nil {
		s.cache.Set(ctx, cache.AssignmentKey(a.ExperimentID, a.UserID), data, cache.AssignmentTTL)
	}
}
