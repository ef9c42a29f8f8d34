// Package encounter defines the immutable patient-encounter input captured
// at intake. Everything downstream (image analysis, classification, record
// building) reads this struct and never mutates it.
package encounter

import (
	"fmt"
	"time"
)

// VitalSigns holds the vitals captured at intake. All fields optional.
type VitalSigns struct {
	HeartRate        *int     `json:"heart_rate,omitempty"`
	BloodPressureSys *int     `json:"blood_pressure_sys,omitempty"`
	BloodPressureDia *int     `json:"blood_pressure_dia,omitempty"`
	RespiratoryRate  *int     `json:"respiratory_rate,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	OxygenSaturation *float64 `json:"oxygen_saturation,omitempty"`
	Glucose          *float64 `json:"glucose,omitempty"`
}

// Empty reports whether no vital sign was captured at all.
func (v *VitalSigns) Empty() bool {
	if v == nil {
		return true
	}
	return v.HeartRate == nil && v.BloodPressureSys == nil && v.BloodPressureDia == nil &&
		v.RespiratoryRate == nil && v.Temperature == nil && v.OxygenSaturation == nil &&
		v.Glucose == nil
}

// Image is an optional attachment supplied with the encounter.
type Image struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
}

// Input is one patient encounter as captured at intake. Immutable once
// validated; the pipeline copies it into state and never writes back.
type Input struct {
	ChiefComplaint string      `json:"chief_complaint"`
	Symptoms       []string    `json:"symptoms,omitempty"`
	Onset          string      `json:"onset,omitempty"`
	Duration       string      `json:"duration,omitempty"`
	PainScale      *int        `json:"pain_scale,omitempty"`
	Vitals         *VitalSigns `json:"vitals,omitempty"`
	History        []string    `json:"history,omitempty"`
	Medications    []string    `json:"medications,omitempty"`
	Allergies      []string    `json:"allergies,omitempty"`
	Age            *int        `json:"age,omitempty"`
	Sex            string      `json:"sex,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	Image          *Image      `json:"image,omitempty"`
	RecordedAt     time.Time   `json:"recorded_at"`
}

// HasImage reports whether an image attachment is present. This is the
// pipeline's single conditional routing signal and is derived from input
// shape only.
func (in *Input) HasImage() bool {
	return in.Image != nil && len(in.Image.Data) > 0
}

// ValidationError reports a malformed or missing required encounter field.
// It is the only error kind the pipeline surfaces as a hard failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid encounter input: %s: %s", e.Field, e.Reason)
}

// Validate checks required fields and sane clinical ranges.
func (in *Input) Validate() error {
	if in.ChiefComplaint == "" {
		return &ValidationError{Field: "chief_complaint", Reason: "is required"}
	}
	if in.PainScale != nil && (*in.PainScale < 0 || *in.PainScale > 10) {
		return &ValidationError{Field: "pain_scale", Reason: "must be between 0 and 10"}
	}
	if in.Age != nil && (*in.Age < 0 || *in.Age > 130) {
		return &ValidationError{Field: "age", Reason: "must be between 0 and 130"}
	}
	if in.Image != nil {
		if len(in.Image.Data) == 0 {
			return &ValidationError{Field: "image.data", Reason: "is required when image is present"}
		}
		if in.Image.MIMEType == "" {
			return &ValidationError{Field: "image.mime_type", Reason: "is required when image is present"}
		}
	}
	if v := in.Vitals; v != nil {
		if v.HeartRate != nil && (*v.HeartRate < 0 || *v.HeartRate > 300) {
			return &ValidationError{Field: "vitals.heart_rate", Reason: "out of range"}
		}
		if v.BloodPressureSys != nil && (*v.BloodPressureSys < 0 || *v.BloodPressureSys > 350) {
			return &ValidationError{Field: "vitals.blood_pressure_sys", Reason: "out of range"}
		}
		if v.BloodPressureDia != nil && (*v.BloodPressureDia < 0 || *v.BloodPressureDia > 250) {
			return &ValidationError{Field: "vitals.blood_pressure_dia", Reason: "out of range"}
		}
		if v.RespiratoryRate != nil && (*v.RespiratoryRate < 0 || *v.RespiratoryRate > 120) {
			return &ValidationError{Field: "vitals.respiratory_rate", Reason: "out of range"}
		}
		if v.Temperature != nil && (*v.Temperature < 20 || *v.Temperature > 45) {
			return &ValidationError{Field: "vitals.temperature", Reason: "out of range"}
		}
		if v.OxygenSaturation != nil && (*v.OxygenSaturation < 0 || *v.OxygenSaturation > 100) {
			return &ValidationError{Field: "vitals.oxygen_saturation", Reason: "out of range"}
		}
		if v.Glucose != nil && (*v.Glucose < 0 || *v.Glucose > 2000) {
			return &ValidationError{Field: "vitals.glucose", Reason: "out of range"}
		}
	}
	return nil
}
