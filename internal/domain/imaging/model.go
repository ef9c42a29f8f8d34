// Package imaging implements the optional image-analysis stage. It sends an
// attached medical image to the multimodal model and parses the response
// into a structured finding that feeds the classifier.
package imaging

import (
	"strings"
)

// Severity grades an image finding. Ordered from most to least severe.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeveritySevere   Severity = "SEVERE"
	SeverityModerate Severity = "MODERATE"
	SeverityMild     Severity = "MILD"
	SeverityNormal   Severity = "NORMAL"
)

// Valid reports whether s is one of the five known grades.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeveritySevere, SeverityModerate, SeverityMild, SeverityNormal:
		return true
	}
	return false
}

// Finding is the structured output of the image-analysis stage. Its absence
// never blocks downstream stages.
type Finding struct {
	Modality            string   `json:"modality"`
	Description         string   `json:"description"`
	SuspectedConditions []string `json:"suspected_conditions,omitempty"`
	Severity            Severity `json:"severity"`
	KeyObservations     []string `json:"key_observations,omitempty"`
	RelevanceNote       string   `json:"relevance_note,omitempty"`
	Confidence          float64  `json:"confidence"`
	ParseFailed         bool     `json:"parse_failed,omitempty"`
}

// Summary flattens the finding into a single clinical sentence for prompts
// and reasoning traces.
func (f *Finding) Summary() string {
	parts := []string{"[" + f.Modality + "] " + f.Description}
	if len(f.SuspectedConditions) > 0 {
		parts = append(parts, "Suspected: "+strings.Join(f.SuspectedConditions, ", "))
	}
	parts = append(parts, "Severity: "+string(f.Severity))
	if len(f.KeyObservations) > 0 {
		parts = append(parts, "Observations: "+strings.Join(f.KeyObservations, "; "))
	}
	return strings.Join(parts, " | ")
}

// visualComplaintTerms are chief-complaint fragments that suggest the
// encounter's image materially matters for triage. Used by the degradation
// policy to decide whether a failed image stage forces manual review.
var visualComplaintTerms = []string{
	"wound", "lesion", "rash", "burn", "cut", "laceration",
	"swelling", "swollen", "fracture", "bruis", "bleed", "ulcer", "bite",
}

// ComplaintSuggestsImaging reports whether the complaint text implies the
// attached image is clinically relevant.
func ComplaintSuggestsImaging(complaint string) bool {
	lower := strings.ToLower(complaint)
	for _, term := range visualComplaintTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
