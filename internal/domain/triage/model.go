// Package triage implements severity classification for intake encounters:
// a pure discriminator-cascade engine and a model-backed classifier that
// uses the engine's result as a safety floor.
package triage

import "errors"

// Category is one of the five ordered urgency tiers. Lower priority number
// means more urgent.
type Category string

const (
	CategoryImmediate  Category = "IMMEDIATE"
	CategoryVeryUrgent Category = "VERY_URGENT"
	CategoryUrgent     Category = "URGENT"
	CategoryStandard   Category = "STANDARD"
	CategoryNonUrgent  Category = "NON_URGENT"
)

// Categories returns all tiers in protocol order, most urgent first.
func Categories() []Category {
	return []Category{
		CategoryImmediate,
		CategoryVeryUrgent,
		CategoryUrgent,
		CategoryStandard,
		CategoryNonUrgent,
	}
}

// Valid reports whether c is one of the five known tiers.
func (c Category) Valid() bool {
	switch c {
	case CategoryImmediate, CategoryVeryUrgent, CategoryUrgent, CategoryStandard, CategoryNonUrgent:
		return true
	}
	return false
}

// Priority returns c's numeric rank, 1 (most urgent) through 5. The mapping
// is a bijection over the five tiers; unknown values return 0.
func (c Category) Priority() int {
	switch c {
	case CategoryImmediate:
		return 1
	case CategoryVeryUrgent:
		return 2
	case CategoryUrgent:
		return 3
	case CategoryStandard:
		return 4
	case CategoryNonUrgent:
		return 5
	}
	return 0
}

// MaxWaitMinutes returns the protocol's target time-to-clinician for c.
func (c Category) MaxWaitMinutes() int {
	switch c {
	case CategoryImmediate:
		return 0
	case CategoryVeryUrgent:
		return 10
	case CategoryUrgent:
		return 60
	case CategoryStandard:
		return 120
	case CategoryNonUrgent:
		return 240
	}
	return 60
}

// Display returns the human-readable tier name.
func (c Category) Display() string {
	switch c {
	case CategoryImmediate:
		return "Immediate"
	case CategoryVeryUrgent:
		return "Very Urgent"
	case CategoryUrgent:
		return "Urgent"
	case CategoryStandard:
		return "Standard"
	case CategoryNonUrgent:
		return "Non-Urgent"
	}
	return string(c)
}

// MoreUrgent returns the more urgent of a and b.
func MoreUrgent(a, b Category) Category {
	if !b.Valid() {
		return a
	}
	if !a.Valid() {
		return b
	}
	if b.Priority() < a.Priority() {
		return b
	}
	return a
}

// Source identifies which path produced an assessment.
type Source string

const (
	// SourceModel means the text-reasoning model produced the category,
	// floor-checked against the rules engine.
	SourceModel Source = "model"
	// SourceRules means the pure discriminator cascade produced the
	// category without model involvement.
	SourceRules Source = "rules"
	// SourceFallback means a safe default was substituted after both the
	// model and the cascade failed to produce a category.
	SourceFallback Source = "fallback"
)

// Assessment is the outcome of classifying one encounter.
type Assessment struct {
	Category             Category `json:"category"`
	Priority             int      `json:"priority"`
	MaxWaitMinutes       int      `json:"max_wait_minutes"`
	Confidence           float64  `json:"confidence"`
	Reasoning            string   `json:"reasoning"`
	Discriminators       []string `json:"discriminators,omitempty"`
	RequiresManualReview bool     `json:"requires_manual_review"`
	Source               Source   `json:"source"`
	RawModelResponse     string   `json:"raw_model_response,omitempty"`
	ParseFailed          bool     `json:"parse_failed,omitempty"`
}

// ErrIndeterminate is returned by the rules engine when no discriminator
// matches at all. The orchestrator maps it to an Urgent default with the
// manual-review flag set; it never becomes a least-urgent category.
var ErrIndeterminate = errors.New("classification indeterminate: no discriminator matched")
