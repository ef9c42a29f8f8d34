package triage

import (
	"fmt"
	"strings"

	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/domain/imaging"
)

// Engine is the pure rule cascade. It evaluates discriminators in fixed
// protocol order over the encounter text, pain score, vitals and any image
// finding, and never calls out to a model. The model-backed Classifier uses
// its result as a safety floor, and the degradation policy falls back to it
// when inference is unavailable.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// keyword tiers, most urgent first. A discriminator matches when its phrase
// appears anywhere in the combined complaint/symptom/notes text.
var keywordTiers = []struct {
	category Category
	phrases  []string
}{
	{CategoryImmediate, []string{
		"choking", "cannot speak", "can't speak", "not breathing", "stopped breathing",
		"unresponsive", "unconscious", "no pulse", "cardiac arrest",
		"anaphylaxis", "turning blue", "airway",
	}},
	{CategoryVeryUrgent, []string{
		"chest pain", "chest pressure", "severe bleeding", "uncontrolled bleeding",
		"hemorrhage", "coughing blood", "vomiting blood", "difficulty breathing",
		"shortness of breath", "stroke", "face drooping", "slurred speech",
		"severe allergic", "overdose", "suicidal",
	}},
	{CategoryUrgent, []string{
		"headache", "abdominal pain", "stomach pain", "vomiting", "dehydration",
		"fever", "dizziness", "fainted", "confusion", "broken", "fracture",
		"deep cut", "laceration",
	}},
	{CategoryStandard, []string{
		"sprain", "sprained", "twist", "twisted", "mild", "minor", "rash",
		"sore throat", "cough", "earache", "back pain", "small cut", "bruise",
	}},
	{CategoryNonUrgent, []string{
		"refill", "prescription renewal", "medical certificate", "sick note",
		"form", "vaccination", "follow-up", "follow up", "test results",
		"no acute",
	}},
}

// Classify runs the cascade. It returns ErrIndeterminate when no
// discriminator matches at all; callers must map that to a safe default,
// never to the least urgent tier.
func (e *Engine) Classify(in *encounter.Input, finding *imaging.Finding) (*Assessment, error) {
	matched := map[Category][]string{}

	text := corpus(in)
	for _, tier := range keywordTiers {
		for _, phrase := range tier.phrases {
			if strings.Contains(text, phrase) {
				matched[tier.category] = append(matched[tier.category], fmt.Sprintf("complaint mentions %q", phrase))
			}
		}
	}

	if in.PainScale != nil {
		switch p := *in.PainScale; {
		case p >= 8:
			matched[CategoryVeryUrgent] = append(matched[CategoryVeryUrgent], fmt.Sprintf("severe uncontrolled pain (%d/10)", p))
		case p >= 4:
			matched[CategoryUrgent] = append(matched[CategoryUrgent], fmt.Sprintf("moderate pain (%d/10)", p))
		case p >= 1:
			matched[CategoryStandard] = append(matched[CategoryStandard], fmt.Sprintf("mild pain (%d/10)", p))
		}
	}

	for cat, reasons := range vitalDiscriminators(in) {
		matched[cat] = append(matched[cat], reasons...)
	}

	if finding != nil {
		if cat, ok := imageCategory(finding.Severity); ok {
			matched[cat] = append(matched[cat], fmt.Sprintf("image finding graded %s", finding.Severity))
		}
	}

	// Life-threat discriminators win unconditionally and are never
	// softened by ambiguity handling.
	if reasons := matched[CategoryImmediate]; len(reasons) > 0 {
		return newAssessment(CategoryImmediate, 0.95, reasons, false), nil
	}

	var (
		result       Category
		tiersMatched int
	)
	for _, cat := range Categories() {
		if len(matched[cat]) == 0 {
			continue
		}
		tiersMatched++
		if result == "" {
			result = cat
		}
	}
	if result == "" {
		return nil, ErrIndeterminate
	}

	reasons := matched[result]
	// Signals spanning multiple tiers: keep the more urgent pick but
	// require a human to confirm it.
	ambiguous := tiersMatched > 1
	conf := confidence(len(reasons))
	return newAssessment(result, conf, reasons, ambiguous), nil
}

// VitalFindings lists the vital-sign discriminators the cascade would
// match for in, most urgent first. The orchestrator computes this during
// intake, in parallel with image evaluation, for the audit trail.
func VitalFindings(in *encounter.Input) []string {
	matched := vitalDiscriminators(in)
	var out []string
	for _, cat := range Categories() {
		out = append(out, matched[cat]...)
	}
	return out
}

// vitalDiscriminators grades captured vitals against the protocol's red-flag
// and caution thresholds. Red flags (very urgent): HR > 120 or < 50,
// RR > 30 or < 10, SpO2 < 92%, systolic BP < 90 or > 200, temperature
// < 35 or > 40 C, glucose < 60 or > 400 mg/dL. Values outside normal but
// short of a red flag grade Urgent, with fever in vulnerable age groups
// (under 5 or over 75) promoted to Urgent at 38.5 C.
func vitalDiscriminators(in *encounter.Input) map[Category][]string {
	out := map[Category][]string{}
	v := in.Vitals
	if v == nil {
		return out
	}

	if hr := v.HeartRate; hr != nil {
		switch {
		case *hr > 120:
			out[CategoryVeryUrgent] = append(out[CategoryVeryUrgent], fmt.Sprintf("severe tachycardia (HR %d > 120)", *hr))
		case *hr < 50:
			out[CategoryVeryUrgent] = append(out[CategoryVeryUrgent], fmt.Sprintf("bradycardia (HR %d < 50)", *hr))
		case *hr > 100:
			out[CategoryUrgent] = append(out[CategoryUrgent], fmt.Sprintf("tachycardia (HR %d > 100)", *hr))
		}
	}
	if rr := v.RespiratoryRate; rr != nil {
		switch {
		case *rr > 30:
			out[CategoryVeryUrgent] = append(out[CategoryVeryUrgent], fmt.Sprintf("severe tachypnea (RR %d > 30)", *rr))
		case *rr < 10:
			out[CategoryVeryUrgent] = append(out[CategoryVeryUrgent], fmt.Sprintf("bradypnea (RR %d < 10)", *rr))
		case *rr > 24:
			out[CategoryUrgent] = append(out[CategoryUrgent], fmt.Sprintf("tachypnea (RR %d > 24)", *rr))
		}
	}
	if spo2 := v.OxygenSaturation; spo2 != nil {
		switch {
		case *spo2 < 92:
			out[CategoryVeryUrgent] = append(out[CategoryVeryUrgent], fmt.Sprintf("hypoxia (SpO2 %.0f%% < 92%%)", *spo2))
		case *spo2 < 95:
			out[CategoryUrgent] = append(out[CategoryUrgent], fmt.Sprintf("borderline oxygen saturation (SpO2 %.0f%%)", *spo2))
		}
	}
	if sbp := v.BloodPressureSys; sbp != nil {
		switch {
		case *sbp < 90:
			out[CategoryVeryUrgent] = append(out[CategoryVeryUrgent], fmt.Sprintf("hypotension (SBP %d < 90)", *sbp))
		case *sbp > 200:
			out[CategoryVeryUrgent] = append(out[CategoryVeryUrgent], fmt.Sprintf("hypertensive crisis (SBP %d > 200)", *sbp))
		case *sbp > 180:
			out[CategoryUrgent] = append(out[CategoryUrgent], fmt.Sprintf("severe hypertension (SBP %d > 180)", *sbp))
		}
	}
	if t := v.Temperature; t != nil {
		switch {
		case *t > 40:
			out[CategoryVeryUrgent] = append(out[CategoryVeryUrgent], fmt.Sprintf("hyperpyrexia (%.1f C > 40)", *t))
		case *t < 35:
			out[CategoryVeryUrgent] = append(out[CategoryVeryUrgent], fmt.Sprintf("hypothermia (%.1f C < 35)", *t))
		case *t >= 38.5 && vulnerableAge(in.Age):
			out[CategoryUrgent] = append(out[CategoryUrgent], fmt.Sprintf("high fever (%.1f C) in vulnerable age group", *t))
		case *t >= 39:
			out[CategoryUrgent] = append(out[CategoryUrgent], fmt.Sprintf("high fever (%.1f C)", *t))
		}
	}
	if g := v.Glucose; g != nil {
		switch {
		case *g < 60:
			out[CategoryVeryUrgent] = append(out[CategoryVeryUrgent], fmt.Sprintf("hypoglycemia (%.0f mg/dL < 60)", *g))
		case *g > 400:
			out[CategoryVeryUrgent] = append(out[CategoryVeryUrgent], fmt.Sprintf("severe hyperglycemia (%.0f mg/dL > 400)", *g))
		}
	}
	return out
}

func imageCategory(s imaging.Severity) (Category, bool) {
	switch s {
	case imaging.SeverityCritical:
		return CategoryImmediate, true
	case imaging.SeveritySevere:
		return CategoryVeryUrgent, true
	case imaging.SeverityModerate:
		return CategoryUrgent, true
	case imaging.SeverityMild:
		return CategoryStandard, true
	}
	return "", false
}

func vulnerableAge(age *int) bool {
	return age != nil && (*age < 5 || *age > 75)
}

// confidence grows with the number of matched discriminators and never
// shrinks as matches accumulate.
func confidence(matches int) float64 {
	c := 0.6 + 0.08*float64(matches-1)
	if c > 0.9 {
		c = 0.9
	}
	return c
}

func newAssessment(cat Category, conf float64, discriminators []string, review bool) *Assessment {
	return &Assessment{
		Category:             cat,
		Priority:             cat.Priority(),
		MaxWaitMinutes:       cat.MaxWaitMinutes(),
		Confidence:           conf,
		Reasoning:            strings.Join(discriminators, "; "),
		Discriminators:       discriminators,
		RequiresManualReview: review,
		Source:               SourceRules,
	}
}

func corpus(in *encounter.Input) string {
	parts := append([]string{in.ChiefComplaint}, in.Symptoms...)
	if in.Notes != "" {
		parts = append(parts, in.Notes)
	}
	return strings.ToLower(strings.Join(parts, " "))
}
