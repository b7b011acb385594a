package store

import (
	"context"
	"time"
)

// Store defines the interface for experiment and assignment storage.
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	GetExperimentByName(ctx context.Context, name string) (*Experiment, error)
	ListExperiments(ctx context.Context, filter Filter) ([]*Experiment, error)
	UpdateExperiment(ctx context.Context, exp *Experiment) error
	DeleteExperiment(ctx context.Context, id string) error

	// Assignment operations
	GetAssignment(ctx context.Context, experimentID, userID string) (*Assignment, error)
	// InsertAssignment stores a new assignment unless one already exists for
	// the (experiment, user) pair. Returns false when a concurrent writer got
	// there first; the caller must re-read and use the stored row.
	InsertAssignment(ctx context.Context, a *Assignment) (bool, error)
	// IncrementAssignmentMetric applies an atomic in-place increment to one
	// counter column and bumps last_activity.
	IncrementAssignmentMetric(ctx context.Context, experimentID, userID string, metric Metric, delta float64, at time.Time) error

	// Denormalized counter operations
	IncrementResultCounter(ctx context.Context, experimentID string, metric Metric, variant string, delta float64) error
	GetResults(ctx context.Context, experimentID string) (Results, error)
	VariantTotals(ctx context.Context, experimentID string) ([]VariantTotals, error)

	// Lifecycle
	Close() error
}
