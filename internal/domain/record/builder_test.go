package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/domain/imaging"
	"github.com/triage/triage/internal/domain/triage"
	"github.com/triage/triage/internal/platform/fhir"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func sampleInput() *encounter.Input {
	return &encounter.Input{
		ChiefComplaint: "crushing chest pain, diaphoresis",
		Symptoms:       []string{"sweating", "nausea"},
		Onset:          "1 hour ago",
		PainScale:      intPtr(8),
		Sex:            "male",
		Age:            intPtr(58),
		Vitals: &encounter.VitalSigns{
			HeartRate:        intPtr(110),
			BloodPressureSys: intPtr(145),
			BloodPressureDia: intPtr(92),
			OxygenSaturation: floatPtr(94),
			Temperature:      floatPtr(36.9),
		},
		RecordedAt: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func sampleAssessment() *triage.Assessment {
	return &triage.Assessment{
		Category:       triage.CategoryVeryUrgent,
		Priority:       2,
		MaxWaitMinutes: 10,
		Confidence:     0.82,
		Reasoning:      "chest pain with borderline oxygen saturation",
		Source:         triage.SourceModel,
	}
}

func TestBuildBundleShape(t *testing.T) {
	b := NewBuilder()
	bundle, err := b.Build(sampleInput(), nil, sampleAssessment())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Type != "collection" {
		t.Errorf("bundle type = %q, want collection", bundle.Type)
	}
	if bundle.Timestamp == nil || !bundle.Timestamp.Equal(time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("bundle timestamp should come from the encounter, got %v", bundle.Timestamp)
	}

	for _, rt := range []string{"Patient", "Encounter", "Condition", "Observation", "RiskAssessment"} {
		if bundle.FindResource(rt) == nil {
			t.Errorf("bundle missing %s entry", rt)
		}
	}
	// HR, BP panel, SpO2, temperature, plus the triage observation.
	if got := len(bundle.FindResources("Observation")); got != 5 {
		t.Errorf("expected 5 observations, got %d", got)
	}

	var enc fhir.Encounter
	if err := json.Unmarshal(bundle.FindResource("Encounter"), &enc); err != nil {
		t.Fatalf("unmarshal encounter: %v", err)
	}
	if enc.Class == nil || enc.Class.Code != "EMER" {
		t.Errorf("encounter class should be EMER, got %+v", enc.Class)
	}
	if enc.Priority == nil || enc.Priority.Coding[0].Code != string(triage.CategoryVeryUrgent) {
		t.Errorf("encounter priority should carry the triage category, got %+v", enc.Priority)
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder()
	first, err := b.Build(sampleInput(), nil, sampleAssessment())
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := b.Build(sampleInput(), nil, sampleAssessment())
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	fj, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal first: %v", err)
	}
	sj, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal second: %v", err)
	}
	if !bytes.Equal(fj, sj) {
		t.Error("two builds of identical input must be byte-identical")
	}

	// A different complaint must yield different identifiers.
	other := sampleInput()
	other.ChiefComplaint = "different complaint"
	third, err := b.Build(other, nil, sampleAssessment())
	if err != nil {
		t.Fatalf("third build: %v", err)
	}
	if third.ID == first.ID {
		t.Error("different inputs must not share a run identifier")
	}
}

func TestBuildRoundTrip(t *testing.T) {
	in := sampleInput()
	bundle, err := NewBuilder().Build(in, nil, sampleAssessment())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.ChiefComplaint != in.ChiefComplaint {
		t.Errorf("chief complaint = %q, want %q", parsed.ChiefComplaint, in.ChiefComplaint)
	}
	if parsed.Category != triage.CategoryVeryUrgent || parsed.Priority != 2 {
		t.Errorf("triage coding = %s/%d, want VERY_URGENT/2", parsed.Category, parsed.Priority)
	}
	v := parsed.Vitals
	if v.HeartRate == nil || *v.HeartRate != 110 {
		t.Errorf("heart rate lost in round trip: %v", v.HeartRate)
	}
	if v.BloodPressureSys == nil || *v.BloodPressureSys != 145 {
		t.Errorf("systolic BP lost in round trip: %v", v.BloodPressureSys)
	}
	if v.BloodPressureDia == nil || *v.BloodPressureDia != 92 {
		t.Errorf("diastolic BP lost in round trip: %v", v.BloodPressureDia)
	}
	if v.OxygenSaturation == nil || *v.OxygenSaturation != 94 {
		t.Errorf("oxygen saturation lost in round trip: %v", v.OxygenSaturation)
	}
	if v.Temperature == nil || *v.Temperature != 36.9 {
		t.Errorf("temperature lost in round trip: %v", v.Temperature)
	}
}

func TestBuildImagingEntryOnlyWithFinding(t *testing.T) {
	in := sampleInput()
	finding := &imaging.Finding{
		Modality:    "photo",
		Description: "deep laceration",
		Severity:    imaging.SeveritySevere,
	}

	withImage, err := NewBuilder().Build(in, finding, sampleAssessment())
	if err != nil {
		t.Fatalf("build with finding: %v", err)
	}
	withoutImage, err := NewBuilder().Build(in, nil, sampleAssessment())
	if err != nil {
		t.Fatalf("build without finding: %v", err)
	}

	count := func(b *fhir.Bundle) int { return len(b.FindResources("Observation")) }
	if count(withImage) != count(withoutImage)+1 {
		t.Errorf("imaging finding should add exactly one observation: %d vs %d",
			count(withImage), count(withoutImage))
	}

	data, err := json.Marshal(withImage)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.ImagingSummary == "" {
		t.Error("imaging summary lost in round trip")
	}
}

func TestBuildRequiresAssessment(t *testing.T) {
	_, err := NewBuilder().Build(sampleInput(), nil, nil)
	if !errors.Is(err, ErrBuild) {
		t.Fatalf("expected ErrBuild, got %v", err)
	}
	_, err = NewBuilder().Build(nil, nil, sampleAssessment())
	if !errors.Is(err, ErrBuild) {
		t.Fatalf("expected ErrBuild for missing input, got %v", err)
	}
}
