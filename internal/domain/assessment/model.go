// Package assessment is the reviewer-facing surface: it runs the pipeline
// for submitted encounters, persists each result, and records reviewer
// overrides alongside (never over) the original assessment.
package assessment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/triage/triage/internal/domain/triage"
)

// Record maps to the assessment table: one row per pipeline run.
type Record struct {
	ID                   uuid.UUID       `db:"id" json:"id"`
	RunID                string          `db:"run_id" json:"run_id"`
	ChiefComplaint       string          `db:"chief_complaint" json:"chief_complaint"`
	Category             triage.Category `db:"category" json:"category"`
	Priority             int             `db:"priority" json:"priority"`
	Confidence           float64         `db:"confidence" json:"confidence"`
	Reasoning            string          `db:"reasoning" json:"reasoning"`
	Source               triage.Source   `db:"source" json:"source"`
	RequiresManualReview bool            `db:"requires_manual_review" json:"requires_manual_review"`
	Stages               json.RawMessage `db:"stages" json:"stages,omitempty"`
	Bundle               json.RawMessage `db:"bundle" json:"bundle,omitempty"`
	RecordError          *string         `db:"record_error" json:"record_error,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

// Override maps to the assessment_override table. Overrides accumulate; the
// original AI assessment row is never modified.
type Override struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	AssessmentID uuid.UUID       `db:"assessment_id" json:"assessment_id"`
	Category     triage.Category `db:"category" json:"category"`
	Reviewer     string          `db:"reviewer" json:"reviewer"`
	Note         *string         `db:"note" json:"note,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
