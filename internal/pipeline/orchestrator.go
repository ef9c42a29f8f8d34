package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/domain/imaging"
	"github.com/triage/triage/internal/domain/record"
	"github.com/triage/triage/internal/domain/triage"
)

// Runner drives one encounter through the state machine. A Runner is safe
// for concurrent use; each Run owns its state exclusively and shares
// nothing with other runs beyond the injected collaborators.
type Runner struct {
	analyzer   *imaging.Analyzer
	classifier *triage.Classifier
	builder    *record.Builder
	policy     Policy
	log        zerolog.Logger
}

func NewRunner(analyzer *imaging.Analyzer, classifier *triage.Classifier, builder *record.Builder, policy Policy, log zerolog.Logger) *Runner {
	return &Runner{
		analyzer:   analyzer,
		classifier: classifier,
		builder:    builder,
		policy:     policy,
		log:        log,
	}
}

// Run executes the pipeline for one encounter. Only input validation is a
// hard failure; every downstream stage failure is absorbed into the state's
// stage statuses and the manual-review flag, so the caller always receives
// a concrete triage suggestion for any valid input. Cancellation is
// honored cooperatively between stages.
func (r *Runner) Run(ctx context.Context, in *encounter.Input) (*Result, error) {
	state := newState(in)
	res := &Result{State: state}

	if err := in.Validate(); err != nil {
		state.Phase = PhaseAborted
		state.markStage(StageIntake, StatusFailed)
		res.Events = append(res.Events, Event{Stage: StageIntake, Status: StatusFailed, Error: err.Error()})
		r.log.Warn().Err(err).Msg("encounter input rejected")
		return res, err
	}

	// The only conditional edge: decided once, from input shape, before
	// any model output exists.
	hasImage := in.HasImage()

	state.markStage(StageIntake, StatusOK)
	state.Phase = PhaseIntaken
	r.emit(res, Event{Stage: StageIntake, Status: StatusOK})

	if err := r.checkpoint(ctx, state); err != nil {
		return res, err
	}

	// Vitals pre-scan and image evaluation are independent; run them in
	// parallel and join before classification.
	if hasImage {
		type imageOutcome struct {
			finding *imaging.Finding
			err     error
		}
		imageCh := make(chan imageOutcome, 1)
		imageStart := time.Now()
		go func() {
			imgCtx, cancel := context.WithTimeout(ctx, r.policy.ImageTimeout)
			defer cancel()
			f, err := r.analyzer.Analyze(imgCtx, in)
			imageCh <- imageOutcome{finding: f, err: err}
		}()

		state.VitalFlags = triage.VitalFindings(in)
		out := <-imageCh
		elapsed := time.Since(imageStart)

		switch {
		case out.err != nil:
			// Degradation: classification proceeds on text signals
			// alone. Review is forced later only when the complaint
			// implies the image mattered.
			state.markStage(StageImageEvaluation, StatusFailed)
			r.emit(res, Event{Stage: StageImageEvaluation, Status: StatusFailed, Duration: elapsed, Error: out.err.Error()})
		case out.finding.ParseFailed:
			state.Finding = out.finding
			state.markStage(StageImageEvaluation, StatusDegraded)
			r.emit(res, Event{Stage: StageImageEvaluation, Status: StatusDegraded, Duration: elapsed, Error: "model response unparseable"})
		default:
			state.Finding = out.finding
			state.markStage(StageImageEvaluation, StatusOK)
			r.emit(res, Event{Stage: StageImageEvaluation, Status: StatusOK, Duration: elapsed})
		}
		state.Phase = PhaseImageEvaluated
	} else {
		state.VitalFlags = triage.VitalFindings(in)
		state.markStage(StageImageEvaluation, StatusSkipped)
		r.emit(res, Event{Stage: StageImageEvaluation, Status: StatusSkipped})
	}

	if err := r.checkpoint(ctx, state); err != nil {
		return res, err
	}

	r.classify(ctx, res)
	state.Phase = PhaseClassified

	if err := r.checkpoint(ctx, state); err != nil {
		return res, err
	}

	docStart := time.Now()
	bundle, err := r.builder.Build(in, state.Finding, state.Assessment)
	if err != nil {
		// The assessment always survives a documentation failure.
		state.RecordError = err.Error()
		state.Assessment.RequiresManualReview = true
		state.markStage(StageDocumentation, StatusFailed)
		r.emit(res, Event{Stage: StageDocumentation, Status: StatusFailed, Duration: time.Since(docStart), Error: err.Error()})
	} else {
		state.Record = bundle
		state.markStage(StageDocumentation, StatusOK)
		r.emit(res, Event{Stage: StageDocumentation, Status: StatusOK, Duration: time.Since(docStart)})
	}
	state.Phase = PhaseDocumented

	state.Phase = PhaseCompleted
	return res, nil
}

// classify runs the classification stage with the full degradation ladder:
// model attempt, one retry on timeout with a shorter deadline, rules-only
// cascade, and finally the safe Urgent default when even the cascade is
// indeterminate.
func (r *Runner) classify(ctx context.Context, res *Result) {
	state := res.State
	start := time.Now()

	a, err := r.classifyWithTimeout(ctx, state, r.policy.InferenceTimeout)
	if err != nil {
		r.log.Warn().Err(err).Msg("classification inference failed, retrying with shorter deadline")
		a, err = r.classifyWithTimeout(ctx, state, r.policy.RetryTimeout)
	}
	elapsed := time.Since(start)

	switch {
	case err == nil:
		status := StatusOK
		if a.ParseFailed || a.Source != triage.SourceModel {
			status = StatusDegraded
		}
		state.Assessment = a
		state.markStage(StageClassification, status)
		r.emit(res, Event{Stage: StageClassification, Status: status, Duration: elapsed})
	default:
		a, rulesErr := r.classifier.RulesOnly(state.Input, state.Finding)
		if rulesErr != nil {
			a = fallbackAssessment(rulesErr)
		}
		state.Assessment = a
		state.markStage(StageClassification, StatusDegraded)
		r.emit(res, Event{Stage: StageClassification, Status: StatusDegraded, Duration: elapsed, Error: err.Error()})
	}

	// An image stage failure forces review only when the complaint
	// implied the image was clinically relevant.
	if state.Stages[StageImageEvaluation] == StatusFailed &&
		imaging.ComplaintSuggestsImaging(state.Input.ChiefComplaint) {
		state.Assessment.RequiresManualReview = true
	}
}

// classifyWithTimeout runs one bounded classification attempt. An
// indeterminate result is mapped to the safe Urgent default here, so only
// inference failures surface to the retry ladder.
func (r *Runner) classifyWithTimeout(ctx context.Context, state *State, timeout time.Duration) (*triage.Assessment, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	a, err := r.classifier.Classify(attemptCtx, state.Input, state.Finding)
	if errors.Is(err, triage.ErrIndeterminate) {
		return fallbackAssessment(err), nil
	}
	return a, err
}

// fallbackAssessment is the safe default when no classification path
// produced a category: Urgent, flagged for review, never the least urgent
// tier.
func fallbackAssessment(cause error) *triage.Assessment {
	cat := triage.CategoryUrgent
	return &triage.Assessment{
		Category:             cat,
		Priority:             cat.Priority(),
		MaxWaitMinutes:       cat.MaxWaitMinutes(),
		Confidence:           0.2,
		Reasoning:            fmt.Sprintf("no discriminator matched (%v); defaulting to a timely assessment", cause),
		RequiresManualReview: true,
		Source:               triage.SourceFallback,
	}
}

// checkpoint implements cooperative cancellation between stages.
func (r *Runner) checkpoint(ctx context.Context, state *State) error {
	select {
	case <-ctx.Done():
		state.Phase = PhaseAborted
		r.log.Warn().Msg("pipeline canceled between stages")
		return ctx.Err()
	default:
		return nil
	}
}

func (r *Runner) emit(res *Result, ev Event) {
	res.Events = append(res.Events, ev)
	r.log.Info().
		Str("stage", string(ev.Stage)).
		Str("status", string(ev.Status)).
		Dur("duration", ev.Duration).
		Str("error", ev.Error).
		Msg("pipeline stage")
}
