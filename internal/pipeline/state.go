// Package pipeline implements the encounter orchestrator: an explicit
// finite-state machine that sequences intake, optional image evaluation,
// classification and documentation, with conditional routing decided once
// from input shape and graceful degradation on stage failure.
package pipeline

import (
	"fmt"
	"time"

	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/domain/imaging"
	"github.com/triage/triage/internal/domain/triage"
	"github.com/triage/triage/internal/platform/fhir"
)

// Phase is the orchestrator's position in the state machine.
type Phase string

const (
	PhaseStarted        Phase = "STARTED"
	PhaseIntaken        Phase = "INTAKEN"
	PhaseImageEvaluated Phase = "IMAGE_EVALUATED"
	PhaseClassified     Phase = "CLASSIFIED"
	PhaseDocumented     Phase = "DOCUMENTED"
	PhaseCompleted      Phase = "COMPLETED"
	// PhaseAborted is terminal and reachable only from input validation
	// failure or cooperative cancellation between stages.
	PhaseAborted Phase = "ABORTED"
)

// Stage names the four pipeline stages.
type Stage string

const (
	StageIntake          Stage = "intake"
	StageImageEvaluation Stage = "image_evaluation"
	StageClassification  Stage = "classification"
	StageDocumentation   Stage = "documentation"
)

// StageStatus is the per-stage outcome recorded in state.
type StageStatus string

const (
	StatusOK StageStatus = "ok"
	// StatusDegraded means the stage ran with reduced confidence or
	// substituted data.
	StatusDegraded StageStatus = "degraded"
	StatusFailed   StageStatus = "failed"
	// StatusSkipped marks the image stage when no image was supplied.
	StatusSkipped StageStatus = "skipped"
)

// State is the accumulating pipeline record. It has exactly one writer, the
// Runner that owns the run; stages receive it read-only and return
// incremental updates.
type State struct {
	Input      *encounter.Input   `json:"input"`
	VitalFlags []string           `json:"vital_flags,omitempty"`
	Finding    *imaging.Finding   `json:"finding,omitempty"`
	Assessment *triage.Assessment `json:"assessment,omitempty"`
	Record     *fhir.Bundle       `json:"record,omitempty"`
	// RecordError carries the documentation failure summary when the
	// bundle could not be built; the assessment is still present.
	RecordError string                `json:"record_error,omitempty"`
	Stages      map[Stage]StageStatus `json:"stages"`
	Phase       Phase                 `json:"phase"`
}

func newState(in *encounter.Input) *State {
	return &State{
		Input:  in,
		Stages: map[Stage]StageStatus{},
		Phase:  PhaseStarted,
	}
}

// markStage records a stage outcome. Statuses are write-once; a retry is
// resolved inside the stage before the single final status is recorded, so
// a second write for the same stage indicates an orchestrator bug.
func (s *State) markStage(stage Stage, status StageStatus) {
	if prev, ok := s.Stages[stage]; ok {
		panic(fmt.Sprintf("pipeline: stage %s already marked %s", stage, prev))
	}
	s.Stages[stage] = status
}

// Event is one audit entry, emitted per stage transition.
type Event struct {
	Stage    Stage         `json:"stage"`
	Status   StageStatus   `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result wraps the final state and the audit trail of one run.
type Result struct {
	State  *State  `json:"state"`
	Events []Event `json:"events"`
}

// RequiresManualReview reports whether the run's assessment is flagged for
// a human check. Always false before classification.
func (r *Result) RequiresManualReview() bool {
	return r.State.Assessment != nil && r.State.Assessment.RequiresManualReview
}
