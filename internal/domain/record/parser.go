package record

import (
	"encoding/json"
	"fmt"

	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/domain/triage"
	"github.com/triage/triage/internal/platform/fhir"
)

// Parsed is the clinically material content recovered from a serialized
// bundle: everything a downstream system needs to reproduce the triage
// decision context.
type Parsed struct {
	RunID          string
	ChiefComplaint string
	Category       triage.Category
	Priority       int
	Vitals         encounter.VitalSigns
	ImagingSummary string
}

// Parse recovers the material content from bundle JSON. Round-tripping a
// built bundle through Parse preserves chief complaint, vitals, and triage
// coding exactly.
func Parse(data []byte) (*Parsed, error) {
	var bundle fhir.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	if bundle.ResourceType != "Bundle" {
		return nil, fmt.Errorf("parse bundle: unexpected resourceType %q", bundle.ResourceType)
	}

	out := &Parsed{RunID: bundle.ID}

	if raw := bundle.FindResource("Condition"); raw != nil {
		var cond fhir.Condition
		if err := json.Unmarshal(raw, &cond); err != nil {
			return nil, fmt.Errorf("parse condition: %w", err)
		}
		if cond.Code != nil {
			out.ChiefComplaint = cond.Code.Text
		}
	}

	for _, raw := range bundle.FindResources("Observation") {
		var obs fhir.Observation
		if err := json.Unmarshal(raw, &obs); err != nil {
			return nil, fmt.Errorf("parse observation: %w", err)
		}
		switch {
		case hasCoding(obs.Code, LoincSystem, loincTriage):
			parseTriage(&obs, out)
		case hasCategory(obs, "imaging"):
			out.ImagingSummary = obs.ValueString
		case hasCategory(obs, "vital-signs"):
			parseVital(&obs, &out.Vitals)
		}
	}

	if !out.Category.Valid() {
		return nil, fmt.Errorf("parse bundle: no triage coding found")
	}
	return out, nil
}

func parseTriage(obs *fhir.Observation, out *Parsed) {
	if obs.ValueCodeableConcept != nil {
		for _, c := range obs.ValueCodeableConcept.Coding {
			if c.System == CategorySystem {
				out.Category = triage.Category(c.Code)
			}
		}
	}
	for _, comp := range obs.Component {
		if comp.Code.Text == "priority" && comp.ValueQuantity != nil {
			out.Priority = int(comp.ValueQuantity.Value)
		}
	}
}

func parseVital(obs *fhir.Observation, v *encounter.VitalSigns) {
	if hasCoding(obs.Code, LoincSystem, loincBloodPress) {
		for _, comp := range obs.Component {
			if comp.ValueQuantity == nil {
				continue
			}
			val := int(comp.ValueQuantity.Value)
			if hasCoding(comp.Code, LoincSystem, loincSystolic) {
				v.BloodPressureSys = &val
			}
			if hasCoding(comp.Code, LoincSystem, loincDiastolic) {
				v.BloodPressureDia = &val
			}
		}
		return
	}
	if obs.ValueQuantity == nil {
		return
	}
	val := obs.ValueQuantity.Value
	switch {
	case hasCoding(obs.Code, LoincSystem, loincHeartRate):
		i := int(val)
		v.HeartRate = &i
	case hasCoding(obs.Code, LoincSystem, loincRespRate):
		i := int(val)
		v.RespiratoryRate = &i
	case hasCoding(obs.Code, LoincSystem, loincTemperature):
		v.Temperature = &val
	case hasCoding(obs.Code, LoincSystem, loincOxygenSat):
		v.OxygenSaturation = &val
	case hasCoding(obs.Code, LoincSystem, loincGlucose):
		v.Glucose = &val
	}
}

func hasCoding(cc fhir.CodeableConcept, system, code string) bool {
	for _, c := range cc.Coding {
		if c.System == system && c.Code == code {
			return true
		}
	}
	return false
}

func hasCategory(obs fhir.Observation, code string) bool {
	for _, cat := range obs.Category {
		for _, c := range cat.Coding {
			if c.Code == code {
				return true
			}
		}
	}
	return false
}
