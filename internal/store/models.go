package store

import "time"

type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
)

type ExperimentType string

const (
	TypeProduct  ExperimentType = "product"
	TypeCategory ExperimentType = "category"
	TypeCheckout ExperimentType = "checkout"
	TypeHomepage ExperimentType = "homepage"
	TypeOther    ExperimentType = "other"
)

type Goal string

const (
	GoalConversion Goal = "conversion"
	GoalRevenue    Goal = "revenue"
	GoalEngagement Goal = "engagement"
	GoalRetention  Goal = "retention"
	GoalOther      Goal = "other"
)

// Metric names the four per-assignment counters. Revenue is the only
// fractional one.
type Metric string

const (
	MetricImpressions Metric = "impressions"
	MetricConversions Metric = "conversions"
	MetricRevenue     Metric = "revenue"
	MetricEngagements Metric = "engagements"
)

// Metrics lists every counter, in the order result maps are initialized.
var Metrics = []Metric{MetricImpressions, MetricConversions, MetricRevenue, MetricEngagements}

// Variant is one arm of an experiment. TrafficAllocation is a percentage;
// allocations must sum to exactly 100 across an experiment's variants.
type Variant struct {
	Name              string                 `json:"name"`
	Description       string                 `json:"description,omitempty"`
	TrafficAllocation float64                `json:"trafficAllocation"`
	Config            map[string]interface{} `json:"config,omitempty"`
}

// TargetAudience is an informational filter; enforcement is a caller
// concern, not the engine's.
type TargetAudience struct {
	Type    string   `json:"type"` // all|newUsers|returningUsers|specificUsers
	UserIDs []string `json:"userIds,omitempty"`
}

type Goals struct {
	Primary   Goal   `json:"primary"`
	Secondary []Goal `json:"secondary,omitempty"`
}

// Results is the denormalized per-experiment counter map:
// metric -> variant name -> value. It mirrors the per-assignment counters
// and is maintained by the same atomic increments; see the engine for the
// eventual-consistency contract.
type Results map[Metric]map[string]float64

// ZeroResults returns an all-zero result map covering every metric and
// variant.
func ZeroResults(variants []Variant) Results {
	r := make(Results, len(Metrics))
	for _, m := range Metrics {
		byVariant := make(map[string]float64, len(variants))
		for _, v := range variants {
			byVariant[v.Name] = 0
		}
		r[m] = byVariant
	}
	return r
}

type Experiment struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Type           ExperimentType   `json:"type"`
	Status         ExperimentStatus `json:"status"`
	StartDate      *time.Time       `json:"startDate"`
	EndDate        *time.Time       `json:"endDate"`
	Variants       []Variant        `json:"variants"`
	TargetAudience TargetAudience   `json:"targetAudience"`
	Goals          Goals            `json:"goals"`
	Results        Results          `json:"results"`
	Winner         *string          `json:"winner"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// VariantByName returns the declared variant with the given name, or nil.
func (e *Experiment) VariantByName(name string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].Name == name {
			return &e.Variants[i]
		}
	}
	return nil
}

// Assignment is the sticky mapping of one user to one variant within one
// experiment. The (ExperimentID, UserID) pair is unique; the variant never
// changes once stored.
type Assignment struct {
	ID           int64     `json:"id"`
	ExperimentID string    `json:"experimentId"`
	UserID       string    `json:"userId"`
	Variant      string    `json:"variant"`
	Impressions  int       `json:"impressions"`
	Conversions  int       `json:"conversions"`
	Revenue      float64   `json:"revenue"`
	Engagements  int       `json:"engagements"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}

// VariantTotals is the per-variant aggregate over all assignment rows.
type VariantTotals struct {
	Variant     string
	Users       int
	Impressions int
	Conversions int
	Revenue     float64
	Engagements int
}

// Filter narrows ListExperiments. Zero values match everything.
type Filter struct {
	Status ExperimentStatus
	Type   ExperimentType
}
