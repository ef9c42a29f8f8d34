// Package record assembles the final pipeline state into a FHIR collection
// bundle suitable for hand-off to a hospital information system. Building is
// pure and deterministic: identifiers derive from a stable hash of the
// encounter input, never from wall-clock randomness, so identical inputs
// produce byte-identical bundles.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/triage/triage/internal/domain/encounter"
	"github.com/triage/triage/internal/domain/imaging"
	"github.com/triage/triage/internal/domain/triage"
	"github.com/triage/triage/internal/platform/fhir"
)

// Coding systems used in emitted bundles. CategorySystem is the internal
// scheme for the five urgency tiers; downstream systems map it to their own
// terminology.
const (
	CategorySystem  = "urn:triage:category"
	LoincSystem     = "http://loinc.org"
	ActCodeSystem   = "http://terminology.hl7.org/CodeSystem/v3-ActCode"
	ObsCategorySys  = "http://terminology.hl7.org/CodeSystem/observation-category"
	ConditionStatus = "http://terminology.hl7.org/CodeSystem/condition-clinical"
)

// LOINC codes for emitted observations.
const (
	loincHeartRate   = "8867-4"
	loincRespRate    = "9279-1"
	loincOxygenSat   = "2708-6"
	loincBloodPress  = "85354-9"
	loincSystolic    = "8480-6"
	loincDiastolic   = "8462-4"
	loincTemperature = "8310-5"
	loincGlucose     = "2339-0"
	loincTriage      = "56838-1"
)

// idNamespace seeds deterministic identifier generation. Fixed forever;
// changing it changes every emitted identifier.
var idNamespace = uuid.MustParse("8c9d3f52-41aa-4c16-9d0e-5b7f2a6e8d31")

// ErrBuild marks a documentation failure. The orchestrator keeps the triage
// assessment and attaches the error summary instead of aborting.
var ErrBuild = errors.New("record build failed")

// Builder turns a completed pipeline state into a bundle.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// RunID derives the stable run identifier from the encounter input. Two
// builds of the same input share all identifiers.
func RunID(in *encounter.Input) (uuid.UUID, error) {
	canonical, err := json.Marshal(in)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: canonicalize input: %v", ErrBuild, err)
	}
	return uuid.NewSHA1(idNamespace, canonical), nil
}

// Build assembles the bundle: patient and encounter always, one observation
// per captured vital, a condition for the chief complaint, the coded triage
// observation, a risk assessment for the priority statement, and an imaging
// observation only when a finding exists.
func (b *Builder) Build(in *encounter.Input, finding *imaging.Finding, assessment *triage.Assessment) (*fhir.Bundle, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: encounter input missing", ErrBuild)
	}
	if assessment == nil || !assessment.Category.Valid() {
		return nil, fmt.Errorf("%w: triage assessment missing", ErrBuild)
	}

	run, err := RunID(in)
	if err != nil {
		return nil, err
	}
	patientID := entityID(run, "patient")
	encounterID := entityID(run, "encounter")
	patientRef := &fhir.Reference{Reference: "urn:uuid:" + patientID, Type: "Patient"}
	encounterRef := &fhir.Reference{Reference: "urn:uuid:" + encounterID, Type: "Encounter"}
	effective := in.RecordedAt

	resources := []interface{}{
		&fhir.Patient{
			ResourceType: "Patient",
			ID:           patientID,
			Gender:       gender(in.Sex),
		},
		&fhir.Encounter{
			ResourceType: "Encounter",
			ID:           encounterID,
			Status:       "triaged",
			Class:        &fhir.Coding{System: ActCodeSystem, Code: "EMER", Display: "emergency"},
			Subject:      patientRef,
			Priority:     categoryConcept(assessment.Category),
			ReasonCode:   []fhir.CodeableConcept{{Text: in.ChiefComplaint}},
			Period:       &fhir.Period{Start: &effective},
		},
	}

	for _, obs := range vitalObservations(in, run) {
		obs.Subject = patientRef
		obs.Encounter = encounterRef
		obs.EffectiveDateTime = &effective
		o := obs
		resources = append(resources, &o)
	}

	resources = append(resources, &fhir.Condition{
		ResourceType:   "Condition",
		ID:             entityID(run, "condition"),
		ClinicalStatus: &fhir.CodeableConcept{Coding: []fhir.Coding{{System: ConditionStatus, Code: "active"}}},
		Code:           &fhir.CodeableConcept{Text: in.ChiefComplaint},
		Subject:        patientRef,
		Encounter:      encounterRef,
		OnsetString:    in.Onset,
	})

	if finding != nil {
		resources = append(resources, imagingObservation(run, finding, patientRef, encounterRef, &effective))
	}

	resources = append(resources, triageObservation(run, assessment, patientRef, encounterRef, &effective))
	resources = append(resources, riskAssessment(run, assessment, patientRef, encounterRef))

	bundle, err := fhir.NewCollectionBundle(run.String(), &effective, resources...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuild, err)
	}
	return bundle, nil
}

func entityID(run uuid.UUID, kind string) string {
	return uuid.NewSHA1(run, []byte(kind)).String()
}

func gender(sex string) string {
	switch sex {
	case "male", "M", "m":
		return "male"
	case "female", "F", "f":
		return "female"
	case "":
		return ""
	}
	return "other"
}

func categoryConcept(cat triage.Category) *fhir.CodeableConcept {
	return &fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: CategorySystem, Code: string(cat), Display: cat.Display()}},
		Text:   cat.Display(),
	}
}

// vitalObservations emits one Observation per captured vital, blood
// pressure as a single panel with systolic/diastolic components.
func vitalObservations(in *encounter.Input, run uuid.UUID) []fhir.Observation {
	v := in.Vitals
	if v.Empty() {
		return nil
	}

	vitalCategory := []fhir.CodeableConcept{{
		Coding: []fhir.Coding{{System: ObsCategorySys, Code: "vital-signs", Display: "Vital Signs"}},
	}}
	base := func(kind, code, display string) fhir.Observation {
		return fhir.Observation{
			ResourceType: "Observation",
			ID:           entityID(run, kind),
			Status:       "final",
			Category:     vitalCategory,
			Code: fhir.CodeableConcept{
				Coding: []fhir.Coding{{System: LoincSystem, Code: code, Display: display}},
				Text:   display,
			},
		}
	}

	var out []fhir.Observation
	if v.HeartRate != nil {
		o := base("vital-heart-rate", loincHeartRate, "Heart rate")
		o.ValueQuantity = &fhir.Quantity{Value: float64(*v.HeartRate), Unit: "beats/minute", Code: "/min"}
		out = append(out, o)
	}
	if v.BloodPressureSys != nil || v.BloodPressureDia != nil {
		o := base("vital-blood-pressure", loincBloodPress, "Blood pressure panel")
		if v.BloodPressureSys != nil {
			o.Component = append(o.Component, fhir.ObservationComponent{
				Code:          fhir.CodeableConcept{Coding: []fhir.Coding{{System: LoincSystem, Code: loincSystolic, Display: "Systolic blood pressure"}}},
				ValueQuantity: &fhir.Quantity{Value: float64(*v.BloodPressureSys), Unit: "mmHg", Code: "mm[Hg]"},
			})
		}
		if v.BloodPressureDia != nil {
			o.Component = append(o.Component, fhir.ObservationComponent{
				Code:          fhir.CodeableConcept{Coding: []fhir.Coding{{System: LoincSystem, Code: loincDiastolic, Display: "Diastolic blood pressure"}}},
				ValueQuantity: &fhir.Quantity{Value: float64(*v.BloodPressureDia), Unit: "mmHg", Code: "mm[Hg]"},
			})
		}
		out = append(out, o)
	}
	if v.RespiratoryRate != nil {
		o := base("vital-respiratory-rate", loincRespRate, "Respiratory rate")
		o.ValueQuantity = &fhir.Quantity{Value: float64(*v.RespiratoryRate), Unit: "breaths/minute", Code: "/min"}
		out = append(out, o)
	}
	if v.Temperature != nil {
		o := base("vital-temperature", loincTemperature, "Body temperature")
		o.ValueQuantity = &fhir.Quantity{Value: *v.Temperature, Unit: "C", Code: "Cel"}
		out = append(out, o)
	}
	if v.OxygenSaturation != nil {
		o := base("vital-oxygen-saturation", loincOxygenSat, "Oxygen saturation")
		o.ValueQuantity = &fhir.Quantity{Value: *v.OxygenSaturation, Unit: "%", Code: "%"}
		out = append(out, o)
	}
	if v.Glucose != nil {
		o := base("vital-glucose", loincGlucose, "Glucose")
		o.ValueQuantity = &fhir.Quantity{Value: *v.Glucose, Unit: "mg/dL", Code: "mg/dL"}
		out = append(out, o)
	}
	return out
}

func imagingObservation(run uuid.UUID, f *imaging.Finding, subject, enc *fhir.Reference, effective *time.Time) *fhir.Observation {
	obs := &fhir.Observation{
		ResourceType: "Observation",
		ID:           entityID(run, "imaging-finding"),
		Status:       "preliminary",
		Category: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: ObsCategorySys, Code: "imaging", Display: "Imaging"}},
		}},
		Code: fhir.CodeableConcept{
			Text: "Medical image analysis",
		},
		Subject:           subject,
		Encounter:         enc,
		EffectiveDateTime: effective,
		ValueString:       f.Summary(),
	}
	if f.RelevanceNote != "" {
		obs.Note = append(obs.Note, fhir.Annotation{Text: f.RelevanceNote})
	}
	if f.ParseFailed {
		obs.Note = append(obs.Note, fhir.Annotation{Text: "model response could not be parsed; conservative default severity applied"})
	}
	return obs
}

func triageObservation(run uuid.UUID, a *triage.Assessment, subject, enc *fhir.Reference, effective *time.Time) *fhir.Observation {
	obs := &fhir.Observation{
		ResourceType: "Observation",
		ID:           entityID(run, "triage-category"),
		Status:       "final",
		Category: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: ObsCategorySys, Code: "survey", Display: "Survey"}},
		}},
		Code: fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: LoincSystem, Code: loincTriage, Display: "Emergency department triage"}},
			Text:   "Triage category",
		},
		Subject:              subject,
		Encounter:            enc,
		EffectiveDateTime:    effective,
		ValueCodeableConcept: categoryConcept(a.Category),
		Component: []fhir.ObservationComponent{
			{
				Code:          fhir.CodeableConcept{Text: "priority"},
				ValueQuantity: &fhir.Quantity{Value: float64(a.Priority)},
			},
			{
				Code:          fhir.CodeableConcept{Text: "max-wait-minutes"},
				ValueQuantity: &fhir.Quantity{Value: float64(a.MaxWaitMinutes), Unit: "min"},
			},
		},
	}
	if a.Reasoning != "" {
		obs.Note = append(obs.Note, fhir.Annotation{Text: a.Reasoning})
	}
	if a.RequiresManualReview {
		obs.Note = append(obs.Note, fhir.Annotation{Text: "requires manual review"})
	}
	return obs
}

func riskAssessment(run uuid.UUID, a *triage.Assessment, subject, enc *fhir.Reference) *fhir.RiskAssessment {
	confidence := a.Confidence
	return &fhir.RiskAssessment{
		ResourceType: "RiskAssessment",
		ID:           entityID(run, "risk-assessment"),
		Status:       "final",
		Subject:      subject,
		Encounter:    enc,
		Method: &fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: "urn:triage:source", Code: string(a.Source)}},
			Text:   "triage decision support",
		},
		Prediction: []fhir.RiskAssessmentPrediction{{
			Outcome:            categoryConcept(a.Category),
			ProbabilityDecimal: &confidence,
			Rationale:          a.Reasoning,
		}},
		Mitigation: fmt.Sprintf("to be seen within %d minutes", a.MaxWaitMinutes),
	}
}
