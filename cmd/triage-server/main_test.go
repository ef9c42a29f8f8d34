package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/config"
	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/pipeline"
)

func TestNewRunner_FakeGateway(t *testing.T) {
	cfg := &config.Config{
		InferenceFake:         true,
		InferenceTimeout:      30 * time.Second,
		InferenceRetryTimeout: 10 * time.Second,
	}

	runner := newRunner(cfg, zerolog.Nop())

	hr := 88
	in := &encounter.Input{
		ChiefComplaint: "sprained ankle after fall",
		Vitals:         &encounter.VitalSigns{HeartRate: &hr},
		RecordedAt:     time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
	}

	res, err := runner.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State.Phase != pipeline.PhaseCompleted {
		t.Errorf("phase = %s, want %s", res.State.Phase, pipeline.PhaseCompleted)
	}
	if res.State.Assessment == nil {
		t.Fatal("expected an assessment")
	}
	if res.State.Record == nil {
		t.Error("expected a documented record")
	}
}
