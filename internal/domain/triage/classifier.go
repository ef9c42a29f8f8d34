package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/domain/imaging"
	"github.com/triage/triage/internal/platform/inference"
)

const classifySystemPrompt = `You are a clinical triage assistant supporting emergency department nurses. You assist the triage nurse - you never replace their judgment.

Assign exactly one urgency category:
- IMMEDIATE (priority 1, seen now): airway compromise, absent or inadequate breathing, no pulse, severe hemodynamic instability, unresponsive
- VERY_URGENT (priority 2, within 10 min): chest pain, significant hemorrhage, acute severe respiratory distress, severe uncontrolled pain, critical vital signs
- URGENT (priority 3, within 60 min): moderate pain, abnormal but non-critical vitals, high fever in the very young or elderly
- STANDARD (priority 4, within 120 min): mild symptoms, stable vitals, minor injuries
- NON_URGENT (priority 5, within 240 min): administrative requests, refills, no acute complaint

When in doubt between two categories, always choose the more urgent one.

Respond ONLY with valid JSON (no markdown, no backticks):
{
  "category": "IMMEDIATE|VERY_URGENT|URGENT|STANDARD|NON_URGENT",
  "confidence": 0.0-1.0,
  "reasoning": "brief clinical justification",
  "recommended_action": "next step for the nurse"
}`

// Classifier combines the text-reasoning model with the pure rules Engine.
// The engine's category is a safety floor: the final assessment is never
// less urgent than what the cascade derives from the same signals.
type Classifier struct {
	gw     inference.Gateway
	engine *Engine
}

func NewClassifier(gw inference.Gateway, engine *Engine) *Classifier {
	return &Classifier{gw: gw, engine: engine}
}

// Classify asks the model for a category and merges it with the rules
// result. Gateway errors (including timeouts) propagate to the caller so
// the degradation policy can retry or fall back to RulesOnly.
func (c *Classifier) Classify(ctx context.Context, in *encounter.Input, finding *imaging.Finding) (*Assessment, error) {
	rules, rulesErr := c.engine.Classify(in, finding)

	raw, err := c.gw.GenerateText(ctx, buildPrompt(in, finding), classifySystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("classification inference: %w", err)
	}

	model := parseClassification(raw)
	if model == nil {
		// Unusable model output: the cascade result stands, flagged for
		// a human to confirm.
		if rulesErr != nil {
			return nil, ErrIndeterminate
		}
		rules.RequiresManualReview = true
		rules.ParseFailed = true
		rules.RawModelResponse = raw
		return rules, nil
	}

	if rulesErr == nil {
		return merge(model, rules), nil
	}
	return model, nil
}

// RulesOnly classifies without the model. Used by the degradation policy
// when inference is unavailable; the result always carries the
// manual-review flag.
func (c *Classifier) RulesOnly(in *encounter.Input, finding *imaging.Finding) (*Assessment, error) {
	a, err := c.engine.Classify(in, finding)
	if err != nil {
		return nil, err
	}
	a.RequiresManualReview = true
	return a, nil
}

// merge applies the safety floor: if the cascade is more urgent than the
// model, the cascade's category wins and the disagreement is flagged.
func merge(model, rules *Assessment) *Assessment {
	if MoreUrgent(model.Category, rules.Category) == model.Category {
		return model
	}
	out := *rules
	out.Source = SourceModel
	out.RawModelResponse = model.RawModelResponse
	out.RequiresManualReview = true
	out.Reasoning = fmt.Sprintf("rule cascade (%s) overrode model suggestion (%s): %s",
		rules.Category, model.Category, rules.Reasoning)
	return &out
}

var categoryPattern = regexp.MustCompile(`\b(IMMEDIATE|VERY[ _-]?URGENT|NON[ _-]?URGENT|URGENT|STANDARD)\b`)

// parseClassification turns the model's raw text into an Assessment using
// the same three-tier strategy as image parsing: structured JSON, then a
// category-word scan, then nil.
func parseClassification(raw string) *Assessment {
	if js := extractJSONObject(raw); js != "" {
		var parsed struct {
			Category          string  `json:"category"`
			Confidence        float64 `json:"confidence"`
			Reasoning         string  `json:"reasoning"`
			RecommendedAction string  `json:"recommended_action"`
		}
		if err := json.Unmarshal([]byte(js), &parsed); err == nil {
			if cat := normalizeCategory(parsed.Category); cat.Valid() {
				reasoning := parsed.Reasoning
				if parsed.RecommendedAction != "" {
					reasoning += " Recommended: " + parsed.RecommendedAction
				}
				conf := parsed.Confidence
				if conf <= 0 || conf > 1 {
					conf = 0.5
				}
				return &Assessment{
					Category:         cat,
					Priority:         cat.Priority(),
					MaxWaitMinutes:   cat.MaxWaitMinutes(),
					Confidence:       conf,
					Reasoning:        strings.TrimSpace(reasoning),
					Source:           SourceModel,
					RawModelResponse: raw,
				}
			}
		}
	}

	if m := categoryPattern.FindString(strings.ToUpper(raw)); m != "" {
		cat := normalizeCategory(m)
		return &Assessment{
			Category:             cat,
			Priority:             cat.Priority(),
			MaxWaitMinutes:       cat.MaxWaitMinutes(),
			Confidence:           0.5,
			Reasoning:            "category recovered from unstructured model response",
			RequiresManualReview: true,
			Source:               SourceModel,
			RawModelResponse:     raw,
			ParseFailed:          true,
		}
	}
	return nil
}

func normalizeCategory(s string) Category {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return Category(s)
}

// extractJSONObject returns the first balanced {...} block in raw.
func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

// buildPrompt renders the encounter as a clinical presentation block for
// the model.
func buildPrompt(in *encounter.Input, finding *imaging.Finding) string {
	var b strings.Builder
	b.WriteString("Triage the following patient presentation.\n\n")
	fmt.Fprintf(&b, "Chief complaint: %s\n", in.ChiefComplaint)
	if len(in.Symptoms) > 0 {
		fmt.Fprintf(&b, "Symptoms: %s\n", strings.Join(in.Symptoms, ", "))
	}
	if in.Onset != "" {
		fmt.Fprintf(&b, "Onset: %s\n", in.Onset)
	}
	if in.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", in.Duration)
	}
	if in.PainScale != nil {
		fmt.Fprintf(&b, "Pain: %d/10\n", *in.PainScale)
	}
	if in.Age != nil {
		fmt.Fprintf(&b, "Age: %d\n", *in.Age)
	}
	if in.Sex != "" {
		fmt.Fprintf(&b, "Sex: %s\n", in.Sex)
	}
	if v := in.Vitals; !v.Empty() {
		b.WriteString("Vitals:")
		if v.HeartRate != nil {
			fmt.Fprintf(&b, " HR %d", *v.HeartRate)
		}
		if v.BloodPressureSys != nil && v.BloodPressureDia != nil {
			fmt.Fprintf(&b, " BP %d/%d", *v.BloodPressureSys, *v.BloodPressureDia)
		}
		if v.RespiratoryRate != nil {
			fmt.Fprintf(&b, " RR %d", *v.RespiratoryRate)
		}
		if v.Temperature != nil {
			fmt.Fprintf(&b, " Temp %.1fC", *v.Temperature)
		}
		if v.OxygenSaturation != nil {
			fmt.Fprintf(&b, " SpO2 %.0f%%", *v.OxygenSaturation)
		}
		if v.Glucose != nil {
			fmt.Fprintf(&b, " Glucose %.0f", *v.Glucose)
		}
		b.WriteString("\n")
	}
	if len(in.History) > 0 {
		fmt.Fprintf(&b, "History: %s\n", strings.Join(in.History, ", "))
	}
	if len(in.Medications) > 0 {
		fmt.Fprintf(&b, "Medications: %s\n", strings.Join(in.Medications, ", "))
	}
	if len(in.Allergies) > 0 {
		fmt.Fprintf(&b, "Allergies: %s\n", strings.Join(in.Allergies, ", "))
	}
	if finding != nil {
		fmt.Fprintf(&b, "Image analysis: %s\n", finding.Summary())
	}
	if in.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", in.Notes)
	}
	return b.String()
}
