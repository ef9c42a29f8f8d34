// Package inferencefake provides a deterministic, in-process stand-in for
// the inference gateway. It maps known keyword substrings in the prompt to
// fixed canned responses so classification and pipeline logic can be
// exercised without a live model. The keyword map is part of the public
// testing contract, not an implementation detail.
package inferencefake

import (
	"context"
	"strings"
	"sync"

	"github.com/triage/triage/internal/platform/inference"
)

type cannedResponse struct {
	keyword string
	body    string
}

// textResponses are matched in order against the lowercased prompt; the
// first keyword hit wins.
var textResponses = []cannedResponse{
	{"choking", `{"category": "IMMEDIATE", "confidence": 0.97, "reasoning": "airway compromise: patient choking and unable to speak", "recommended_action": "immediate airway intervention"}`},
	{"chest pain", `{"category": "VERY_URGENT", "confidence": 0.9, "reasoning": "chest pain with autonomic symptoms suggests acute coronary syndrome", "recommended_action": "ECG within 10 minutes"}`},
	{"sprained ankle", `{"category": "STANDARD", "confidence": 0.85, "reasoning": "isolated minor musculoskeletal injury with stable vitals", "recommended_action": "rest, ice, radiograph if weight-bearing impossible"}`},
	{"twisted ankle", `{"category": "STANDARD", "confidence": 0.85, "reasoning": "isolated minor musculoskeletal injury with stable vitals", "recommended_action": "rest, ice, radiograph if weight-bearing impossible"}`},
	{"headache", `{"category": "URGENT", "confidence": 0.75, "reasoning": "persistent headache without red-flag signs warrants timely assessment", "recommended_action": "physician assessment within the hour"}`},
	{"medication refill", `{"category": "NON_URGENT", "confidence": 0.95, "reasoning": "administrative request with no acute complaint", "recommended_action": "route to outpatient pharmacy desk"}`},
}

const genericTextResponse = `{"category": "URGENT", "confidence": 0.5, "reasoning": "presentation does not match a known pattern; defaulting to a timely assessment", "recommended_action": "nurse assessment"}`

var imageResponses = []cannedResponse{
	{"laceration", `{"modality": "photo", "description": "deep laceration with irregular edges", "suspected_conditions": ["laceration requiring closure"], "severity": "SEVERE", "key_observations": ["wound depth beyond dermis"], "confidence": 0.8}`},
	{"rash", `{"modality": "photo", "description": "localized erythematous rash without systemic signs", "suspected_conditions": ["contact dermatitis"], "severity": "MILD", "key_observations": ["no blistering", "well demarcated"], "confidence": 0.7}`},
	{"swelling", `{"modality": "photo", "description": "soft-tissue swelling around the lateral malleolus", "suspected_conditions": ["ankle sprain"], "severity": "MILD", "key_observations": ["no deformity", "no open wound"], "confidence": 0.75}`},
}

const genericImageResponse = `{"modality": "other", "description": "no acute abnormality identified", "suspected_conditions": [], "severity": "NORMAL", "key_observations": [], "confidence": 0.6}`

// Gateway is the deterministic inference double. The zero value is ready to
// use; failure injection fields may be set before handing it to a pipeline.
type Gateway struct {
	mu sync.Mutex

	// FailText, when set, is returned as the error of every GenerateText
	// call. Use inference.ErrTimeout to simulate a deadline.
	FailText error
	// FailTextTimes limits FailText to the first N calls; zero means
	// every call fails while FailText is set.
	FailTextTimes int
	// FailImage, when set, is returned as the error of every
	// AnalyzeImage call.
	FailImage error
	// RawText, when non-empty, is returned verbatim from GenerateText,
	// bypassing the keyword map. Useful for parse-failure tests.
	RawText string

	textCalls  int
	imageCalls int
}

var _ inference.Gateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{}
}

// GenerateText returns the canned classification payload whose keyword
// appears in the prompt, or the generic fallback.
func (g *Gateway) GenerateText(ctx context.Context, prompt, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.textCalls++

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.FailText != nil {
		if g.FailTextTimes == 0 || g.textCalls <= g.FailTextTimes {
			return "", g.FailText
		}
	}
	if g.RawText != "" {
		return g.RawText, nil
	}

	lower := strings.ToLower(prompt)
	for _, r := range textResponses {
		if strings.Contains(lower, r.keyword) {
			return r.body, nil
		}
	}
	return genericTextResponse, nil
}

// AnalyzeImage returns the canned finding whose keyword appears in the
// prompt, or a generic normal finding.
func (g *Gateway) AnalyzeImage(ctx context.Context, req inference.ImageRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.imageCalls++

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.FailImage != nil {
		return "", g.FailImage
	}

	lower := strings.ToLower(req.Prompt)
	for _, r := range imageResponses {
		if strings.Contains(lower, r.keyword) {
			return r.body, nil
		}
	}
	return genericImageResponse, nil
}

// TextCalls reports how many GenerateText calls the gateway has seen.
func (g *Gateway) TextCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.textCalls
}

// ImageCalls reports how many AnalyzeImage calls the gateway has seen.
func (g *Gateway) ImageCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.imageCalls
}
