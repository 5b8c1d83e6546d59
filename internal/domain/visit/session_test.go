package visit

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carepath/portal/internal/platform/apperr"
)

func walkTo(t *testing.T, stage Stage) Session {
	t.Helper()
	s := NewSession(uuid.New(), false, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	var err error
	steps := []struct {
		at Stage
		fn func(Session) (Session, error)
	}{
		{StageExposure, func(s Session) (Session, error) { return s.SelectExposure("Chlamydia") }},
		{StagePartner, Session.AcknowledgePartner},
		{StageSymptoms, func(s Session) (Session, error) { return s.ConfirmSymptoms(false) }},
		{StageTreatmentLoading, Session.TreatmentReady},
		{StagePharmacy, func(s Session) (Session, error) { return s.ConfirmPharmacy("123 Main St") }},
	}
	for _, step := range steps {
		if s.Stage == stage {
			return s
		}
		if s.Stage != step.at {
			t.Fatalf("walk: at %s, expected %s", s.Stage, step.at)
		}
		if s, err = step.fn(s); err != nil {
			t.Fatalf("walk from %s: %v", step.at, err)
		}
	}
	if s.Stage != stage {
		t.Fatalf("walk ended at %s, wanted %s", s.Stage, stage)
	}
	return s
}

func TestNewSession(t *testing.T) {
	s := NewSession(uuid.New(), true, time.Now())
	if s.Stage != StageExposure {
		t.Errorf("expected EXPOSURE, got %s", s.Stage)
	}
	if s.Delivery != (DeliveryOptions{Email: true, Archive: true, NotifyPCP: false}) {
		t.Errorf("unexpected default delivery %+v", s.Delivery)
	}
	if !s.AllergyFlag {
		t.Error("expected allergy flag to be captured")
	}
}

func TestSession_LinearFlow(t *testing.T) {
	s := walkTo(t, StageSummary)
	if s.ExposureType != "Chlamydia" || !s.PartnerAcknowledged || s.PharmacyAddress != "123 Main St" {
		t.Errorf("unexpected session %+v", s)
	}
	if s.HasSymptoms == nil || *s.HasSymptoms {
		t.Error("expected symptom answer to be kept")
	}
}

func TestSession_TransitionsDoNotMutateReceiver(t *testing.T) {
	s := walkTo(t, StageExposure)
	next, err := s.SelectExposure("Syphilis")
	if err != nil {
		t.Fatal(err)
	}
	if s.Stage != StageExposure || s.ExposureType != "" {
		t.Error("receiver was modified")
	}
	if next.Stage != StagePartner {
		t.Errorf("expected PARTNER, got %s", next.Stage)
	}
}

func TestSession_SelectExposure_Unknown(t *testing.T) {
	s := walkTo(t, StageExposure)
	for _, bad := range []string{"", "chlamydia", "Flu"} {
		next, err := s.SelectExposure(bad)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%q: expected validation error, got %v", bad, err)
		}
		if next.Stage != StageExposure || next.ExposureType != "" {
			t.Errorf("%q: session changed on error", bad)
		}
	}
}

func TestSession_BothSymptomAnswersConverge(t *testing.T) {
	for _, has := range []bool{true, false} {
		s := walkTo(t, StageSymptoms)
		next, err := s.ConfirmSymptoms(has)
		if err != nil {
			t.Fatal(err)
		}
		if next.Stage != StageTreatmentLoading {
			t.Errorf("has=%v: expected TREATMENT_LOADING, got %s", has, next.Stage)
		}
	}
}

func TestSession_WrongStage(t *testing.T) {
	s := walkTo(t, StageExposure)
	if _, err := s.AcknowledgePartner(); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := s.ConfirmPharmacy("x"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := s.SetDelivery(DeliveryOptions{}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected delivery to be rejected before SUMMARY, got %v", err)
	}
	loading := walkTo(t, StageTreatmentLoading)
	if _, err := loading.ConfirmSymptoms(true); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected no input during loading, got %v", err)
	}
}

func TestSession_ConfirmPharmacy_Empty(t *testing.T) {
	s := walkTo(t, StagePharmacy)
	if _, err := s.ConfirmPharmacy("   "); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	next, err := s.ConfirmPharmacy("  9 Elm St ")
	if err != nil {
		t.Fatal(err)
	}
	if next.PharmacyAddress != "9 Elm St" {
		t.Errorf("expected trimmed address, got %q", next.PharmacyAddress)
	}
}

func TestSession_Back(t *testing.T) {
	s := walkTo(t, StagePartner)
	back, err := s.Back()
	if err != nil {
		t.Fatal(err)
	}
	if back.Stage != StageExposure || back.ExposureType != "" {
		t.Errorf("expected cleared exposure at EXPOSURE, got %+v", back)
	}

	s = walkTo(t, StageSymptoms)
	back, _ = s.Back()
	if back.Stage != StagePartner || back.PartnerAcknowledged {
		t.Errorf("expected PARTNER without ack, got %+v", back)
	}
	if back.ExposureType != "Chlamydia" {
		t.Error("exposure chosen before PARTNER should be kept")
	}

	s = walkTo(t, StagePharmacy)
	back, _ = s.Back()
	if back.Stage != StageSymptoms || back.HasSymptoms != nil {
		t.Errorf("expected SYMPTOMS with answer cleared, got %+v", back)
	}
}

func TestSession_Back_NotAllowed(t *testing.T) {
	for _, stage := range []Stage{StageExposure, StageTreatmentLoading, StageSummary} {
		s := walkTo(t, stage)
		if _, err := s.Back(); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%s: expected validation error, got %v", stage, err)
		}
	}
}

func TestSession_CancelTreatment(t *testing.T) {
	s := walkTo(t, StageTreatmentLoading)
	c := s.CancelTreatment()
	if c.Stage != StageSymptoms || c.HasSymptoms != nil {
		t.Errorf("expected SYMPTOMS with answer cleared, got %+v", c)
	}
	other := walkTo(t, StagePharmacy)
	if other.CancelTreatment().Stage != StagePharmacy {
		t.Error("cancel outside loading must be a no-op")
	}
}

func TestValidExposure(t *testing.T) {
	for _, e := range ExposureTypes {
		if !ValidExposure(e) {
			t.Errorf("%q should be valid", e)
		}
	}
	if ValidExposure("HIV") {
		t.Error("HIV is not in the closed set")
	}
}
