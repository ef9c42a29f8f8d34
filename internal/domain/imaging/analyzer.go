package imaging

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/platform/inference"
)

const systemPrompt = `You are a medical image analysis assistant for an emergency department triage service. You assist triage nurses - you never replace them.

Severity levels:
- CRITICAL: immediate life threat (tension pneumothorax, open fracture with vascular compromise, large hemorrhage)
- SEVERE: urgent, needs prompt intervention (displaced fracture, deep wound, extensive burn)
- MODERATE: notable finding needing evaluation (simple fracture, moderate wound, rash with systemic signs)
- MILD: minor, low urgency (superficial wound, localized rash, small abrasion)
- NORMAL: no significant abnormality

When uncertain, err on the side of higher severity. It is safer to over-triage than to under-triage.

Respond ONLY with valid JSON (no markdown, no backticks):
{
  "modality": "X-ray|photo|CT|MRI|ultrasound|other",
  "description": "brief clinical description of what the image shows",
  "suspected_conditions": ["condition1", "condition2"],
  "severity": "CRITICAL|SEVERE|MODERATE|MILD|NORMAL",
  "key_observations": ["observation1", "observation2"],
  "confidence": 0.0-1.0
}`

// Analyzer runs the image-analysis stage against the inference gateway.
type Analyzer struct {
	gw inference.Gateway
}

func NewAnalyzer(gw inference.Gateway) *Analyzer {
	return &Analyzer{gw: gw}
}

// Analyze sends the encounter's image to the multimodal model and parses
// the response. The caller guarantees in.HasImage().
func (a *Analyzer) Analyze(ctx context.Context, in *encounter.Input) (*Finding, error) {
	prompt := "Analyze this medical image and provide structured findings."
	if in.ChiefComplaint != "" {
		prompt += "\n\nClinical context: " + in.ChiefComplaint
	}

	raw, err := a.gw.AnalyzeImage(ctx, inference.ImageRequest{
		Data:         in.Image.Data,
		MIMEType:     in.Image.MIMEType,
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("image analysis: %w", err)
	}

	f := parseResponse(raw)
	if ComplaintSuggestsImaging(in.ChiefComplaint) {
		f.RelevanceNote = "complaint suggests image is clinically relevant"
	}
	return f, nil
}

var severityPattern = regexp.MustCompile(`\b(CRITICAL|SEVERE|MODERATE|MILD|NORMAL)\b`)

// parseResponse turns the raw model text into a Finding using a three-tier
// strategy: structured JSON, then a severity-word scan, then a conservative
// MODERATE default with the parse-failed flag set.
func parseResponse(raw string) *Finding {
	if js := extractJSONObject(raw); js != "" {
		var parsed struct {
			Modality            string   `json:"modality"`
			Description         string   `json:"description"`
			SuspectedConditions []string `json:"suspected_conditions"`
			Severity            string   `json:"severity"`
			KeyObservations     []string `json:"key_observations"`
			Confidence          float64  `json:"confidence"`
		}
		if err := json.Unmarshal([]byte(js), &parsed); err == nil {
			sev := Severity(strings.ToUpper(strings.TrimSpace(parsed.Severity)))
			if sev.Valid() {
				return &Finding{
					Modality:            defaultStr(parsed.Modality, "unknown"),
					Description:         parsed.Description,
					SuspectedConditions: parsed.SuspectedConditions,
					Severity:            sev,
					KeyObservations:     parsed.KeyObservations,
					Confidence:          clamp01(parsed.Confidence),
				}
			}
		}
	}

	if m := severityPattern.FindString(strings.ToUpper(raw)); m != "" {
		return &Finding{
			Modality:    "unknown",
			Description: truncate(raw, 500),
			Severity:    Severity(m),
			Confidence:  0.5,
		}
	}

	return &Finding{
		Modality:    "unknown",
		Description: truncate(raw, 500),
		Severity:    SeverityModerate,
		Confidence:  0.3,
		ParseFailed: true,
	}
}

// extractJSONObject returns the first balanced {...} block in raw, handling
// nested objects by brace counting.
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

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
