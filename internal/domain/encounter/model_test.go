package encounter

import (
	"errors"
	"testing"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestValidate_RequiresChiefComplaint(t *testing.T) {
	in := &Input{}
	err := in.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Field != "chief_complaint" {
		t.Errorf("expected chief_complaint, got %q", verr.Field)
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{
			name:  "pain scale above 10",
			in:    Input{ChiefComplaint: "headache", PainScale: intPtr(11)},
			field: "pain_scale",
		},
		{
			name:  "negative age",
			in:    Input{ChiefComplaint: "headache", Age: intPtr(-1)},
			field: "age",
		},
		{
			name:  "spo2 above 100",
			in:    Input{ChiefComplaint: "headache", Vitals: &VitalSigns{OxygenSaturation: floatPtr(101)}},
			field: "vitals.oxygen_saturation",
		},
		{
			name:  "heart rate out of range",
			in:    Input{ChiefComplaint: "headache", Vitals: &VitalSigns{HeartRate: intPtr(400)}},
			field: "vitals.heart_rate",
		},
		{
			name:  "image without mime type",
			in:    Input{ChiefComplaint: "wound", Image: &Image{Data: []byte{0x1}}},
			field: "image.mime_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestValidate_OK(t *testing.T) {
	in := Input{
		ChiefComplaint: "twisted ankle, mild swelling",
		PainScale:      intPtr(3),
		Vitals: &VitalSigns{
			HeartRate:        intPtr(78),
			BloodPressureSys: intPtr(120),
			BloodPressureDia: intPtr(80),
			Temperature:      floatPtr(36.5),
		},
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHasImage(t *testing.T) {
	in := Input{ChiefComplaint: "rash"}
	if in.HasImage() {
		t.Error("expected no image")
	}
	in.Image = &Image{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"}
	if !in.HasImage() {
		t.Error("expected image present")
	}
}

func TestVitalSignsEmpty(t *testing.T) {
	var v *VitalSigns
	if !v.Empty() {
		t.Error("nil vitals should be empty")
	}
	if !(&VitalSigns{}).Empty() {
		t.Error("zero vitals should be empty")
	}
	if (&VitalSigns{HeartRate: intPtr(60)}).Empty() {
		t.Error("vitals with heart rate should not be empty")
	}
}
