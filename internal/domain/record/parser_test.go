package record

import (
	"strings"
	"testing"
)

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := Parse([]byte(`{"resourceType": "Bundle"`)); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestParseRejectsWrongResourceType(t *testing.T) {
	_, err := Parse([]byte(`{"resourceType": "Patient"}`))
	if err == nil {
		t.Fatal("expected error for non-bundle resource")
	}
	if !strings.Contains(err.Error(), "unexpected resourceType") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseRequiresTriageCoding(t *testing.T) {
	bundle := `{
		"resourceType": "Bundle",
		"id": "00000000-0000-0000-0000-000000000001",
		"type": "collection",
		"entry": [
			{
				"fullUrl": "urn:uuid:00000000-0000-0000-0000-000000000002",
				"resource": {"resourceType": "Patient", "id": "00000000-0000-0000-0000-000000000002"}
			}
		]
	}`
	_, err := Parse([]byte(bundle))
	if err == nil {
		t.Fatal("expected error for bundle without triage observation")
	}
	if !strings.Contains(err.Error(), "no triage coding") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseRecoversTriageAndComplaint(t *testing.T) {
	bundle := `{
		"resourceType": "Bundle",
		"id": "00000000-0000-0000-0000-000000000001",
		"type": "collection",
		"entry": [
			{
				"fullUrl": "urn:uuid:00000000-0000-0000-0000-000000000003",
				"resource": {
					"resourceType": "Condition",
					"id": "00000000-0000-0000-0000-000000000003",
					"code": {"text": "crushing chest pain"}
				}
			},
			{
				"fullUrl": "urn:uuid:00000000-0000-0000-0000-000000000004",
				"resource": {
					"resourceType": "Observation",
					"id": "00000000-0000-0000-0000-000000000004",
					"status": "final",
					"code": {
						"coding": [{"system": "http://loinc.org", "code": "56838-1"}],
						"text": "Triage category"
					},
					"valueCodeableConcept": {
						"coding": [{"system": "urn:triage:category", "code": "VERY_URGENT"}]
					},
					"component": [
						{"code": {"text": "priority"}, "valueQuantity": {"value": 2}}
					]
				}
			}
		]
	}`

	parsed, err := Parse([]byte(bundle))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.ChiefComplaint != "crushing chest pain" {
		t.Errorf("chief complaint = %q", parsed.ChiefComplaint)
	}
	if string(parsed.Category) != "VERY_URGENT" {
		t.Errorf("category = %s", parsed.Category)
	}
	if parsed.Priority != 2 {
		t.Errorf("priority = %d", parsed.Priority)
	}
	if parsed.RunID != "00000000-0000-0000-0000-000000000001" {
		t.Errorf("run id = %s", parsed.RunID)
	}
}
