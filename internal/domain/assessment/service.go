package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/domain/record"
	"github.com/triage/triage/internal/domain/triage"
	"github.com/triage/triage/internal/pipeline"
)

// ErrNoBundle is returned when an assessment exists but its structured
// record could not be built during the run.
var ErrNoBundle = errors.New("structured record unavailable for assessment")

type Service struct {
	repo   Repository
	runner *pipeline.Runner
	log    zerolog.Logger
}

func NewService(repo Repository, runner *pipeline.Runner, log zerolog.Logger) *Service {
	return &Service{repo: repo, runner: runner, log: log}
}

// Triage runs the pipeline for one encounter and persists the outcome.
// Persistence failure is logged but never withholds the assessment from the
// caller; the reviewer always sees a concrete suggestion.
func (s *Service) Triage(ctx context.Context, in *encounter.Input) (*Record, *pipeline.Result, error) {
	res, err := s.runner.Run(ctx, in)
	if err != nil {
		return nil, res, err
	}

	rec, err := recordFromResult(res)
	if err != nil {
		return nil, res, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("run_id", rec.RunID).Msg("failed to persist assessment")
	}
	return rec, res, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, pendingOnly bool, limit, offset int) ([]*Record, int, error) {
	if pendingOnly {
		return s.repo.ListPendingReview(ctx, limit, offset)
	}
	return s.repo.List(ctx, limit, offset)
}

// Bundle returns the structured record of an assessment.
func (s *Service) Bundle(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(rec.Bundle) == 0 {
		return nil, ErrNoBundle
	}
	return rec.Bundle, nil
}

// Override records a reviewer's category decision alongside the original
// assessment. The original row is never modified.
func (s *Service) Override(ctx context.Context, id uuid.UUID, cat triage.Category, reviewer, note string) (*Override, error) {
	if !cat.Valid() {
		return nil, fmt.Errorf("invalid category %q", cat)
	}
	if reviewer == "" {
		return nil, fmt.Errorf("reviewer is required")
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	o := &Override{AssessmentID: id, Category: cat, Reviewer: reviewer}
	if note != "" {
		o.Note = &note
	}
	if err := s.repo.AddOverride(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Overrides(ctx context.Context, id uuid.UUID) ([]*Override, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListOverrides(ctx, id)
}

func recordFromResult(res *pipeline.Result) (*Record, error) {
	state := res.State
	a := state.Assessment

	stages, err := json.Marshal(state.Stages)
	if err != nil {
		return nil, fmt.Errorf("marshal stage statuses: %w", err)
	}
	runID, err := record.RunID(state.Input)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		RunID:                runID.String(),
		ChiefComplaint:       state.Input.ChiefComplaint,
		Category:             a.Category,
		Priority:             a.Priority,
		Confidence:           a.Confidence,
		Reasoning:            a.Reasoning,
		Source:               a.Source,
		RequiresManualReview: a.RequiresManualReview,
		Stages:               stages,
	}
	if state.Record != nil {
		bundle, err := json.Marshal(state.Record)
		if err != nil {
			return nil, fmt.Errorf("marshal bundle: %w", err)
		}
		rec.Bundle = bundle
	}
	if state.RecordError != "" {
		e := state.RecordError
		rec.RecordError = &e
	}
	return rec, nil
}
