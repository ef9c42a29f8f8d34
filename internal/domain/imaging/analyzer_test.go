package imaging

import (
	"context"
	"errors"
	"testing"

	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/platform/inference"
)

type scriptedGateway struct {
	response string
	err      error
	lastReq  inference.ImageRequest
}

func (g *scriptedGateway) GenerateText(_ context.Context, _, _ string) (string, error) {
	return "", errors.New("not used")
}

func (g *scriptedGateway) AnalyzeImage(_ context.Context, req inference.ImageRequest) (string, error) {
	g.lastReq = req
	return g.response, g.err
}

func imageInput(complaint string) *encounter.Input {
	return &encounter.Input{
		ChiefComplaint: complaint,
		Image:          &encounter.Image{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"},
	}
}

func TestAnalyze_ParsesJSON(t *testing.T) {
	gw := &scriptedGateway{response: `Findings below.
{"modality": "photo", "description": "deep laceration on forearm", "suspected_conditions": ["laceration"], "severity": "SEVERE", "key_observations": ["active bleeding"], "confidence": 0.85}`}

	f, err := NewAnalyzer(gw).Analyze(context.Background(), imageInput("deep cut on arm"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Severity != SeveritySevere {
		t.Errorf("expected SEVERE, got %s", f.Severity)
	}
	if f.Modality != "photo" {
		t.Errorf("expected photo modality, got %q", f.Modality)
	}
	if f.ParseFailed {
		t.Error("expected clean parse")
	}
	if f.RelevanceNote == "" {
		t.Error("expected relevance note for a wound complaint")
	}
	if gw.lastReq.MIMEType != "image/jpeg" {
		t.Errorf("expected mime type forwarded, got %q", gw.lastReq.MIMEType)
	}
}

func TestAnalyze_SeverityWordFallback(t *testing.T) {
	gw := &scriptedGateway{response: "The image shows a moderate soft-tissue injury. Overall assessment: MODERATE concern."}

	f, err := NewAnalyzer(gw).Analyze(context.Background(), imageInput("hurt leg"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Severity != SeverityModerate {
		t.Errorf("expected MODERATE, got %s", f.Severity)
	}
	if f.ParseFailed {
		t.Error("severity fallback should not mark parse failed")
	}
}

func TestAnalyze_ParseFailedDefaultsModerate(t *testing.T) {
	gw := &scriptedGateway{response: "I am unable to interpret this picture."}

	f, err := NewAnalyzer(gw).Analyze(context.Background(), imageInput("hurt leg"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Severity != SeverityModerate {
		t.Errorf("expected conservative MODERATE, got %s", f.Severity)
	}
	if !f.ParseFailed {
		t.Error("expected parse-failed flag")
	}
}

func TestAnalyze_GatewayError(t *testing.T) {
	gw := &scriptedGateway{err: inference.ErrTimeout}

	_, err := NewAnalyzer(gw).Analyze(context.Background(), imageInput("rash"))
	if !errors.Is(err, inference.ErrTimeout) {
		t.Fatalf("expected timeout to propagate, got %v", err)
	}
}

func TestComplaintSuggestsImaging(t *testing.T) {
	tests := []struct {
		complaint string
		want      bool
	}{
		{"open wound on leg", true},
		{"itchy rash spreading", true},
		{"twisted ankle, mild swelling", true},
		{"persistent headache", false},
		{"medication refill", false},
	}
	for _, tt := range tests {
		if got := ComplaintSuggestsImaging(tt.complaint); got != tt.want {
			t.Errorf("ComplaintSuggestsImaging(%q) = %v, want %v", tt.complaint, got, tt.want)
		}
	}
}

func TestFindingSummary(t *testing.T) {
	f := &Finding{
		Modality:            "X-ray",
		Description:         "simple distal radius fracture",
		SuspectedConditions: []string{"fracture"},
		Severity:            SeverityModerate,
		KeyObservations:     []string{"no displacement"},
	}
	got := f.Summary()
	want := "[X-ray] simple distal radius fracture | Suspected: fracture | Severity: MODERATE | Observations: no displacement"
	if got != want {
		t.Errorf("unexpected summary:\n got %q\nwant %q", got, want)
	}
}
