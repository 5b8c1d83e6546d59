package visit

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carepath/portal/internal/platform/apperr"
)

// DeliveryOptions are the finalize toggles chosen at SUMMARY.
type DeliveryOptions struct {
	Email     bool `json:"email"`
	Archive   bool `json:"archive"`
	NotifyPCP bool `json:"notify_pcp"`
}

func DefaultDeliveryOptions() DeliveryOptions {
	return DeliveryOptions{Email: true, Archive: true, NotifyPCP: false}
}

// Session is the in-progress state of one pass through the flow. Transitions
// are methods on the value: each returns the next Session and leaves the
// receiver untouched.
type Session struct {
	ID                  uuid.UUID       `json:"id"`
	UserID              uuid.UUID       `json:"user_id"`
	Stage               Stage           `json:"stage"`
	ExposureType        string          `json:"exposure_type,omitempty"`
	PartnerAcknowledged bool            `json:"partner_acknowledged"`
	HasSymptoms         *bool           `json:"has_symptoms,omitempty"`
	AllergyFlag         bool            `json:"allergy_flag"`
	PharmacyAddress     string          `json:"pharmacy_address,omitempty"`
	Delivery            DeliveryOptions `json:"delivery"`
	StartedAt           time.Time       `json:"started_at"`
}

// NewSession starts a flow at EXPOSURE. allergyFlag is captured here and is
// not re-derived for the life of the session.
func NewSession(userID uuid.UUID, allergyFlag bool, now time.Time) Session {
	return Session{
		ID:          uuid.New(),
		UserID:      userID,
		Stage:       StageExposure,
		AllergyFlag: allergyFlag,
		Delivery:    DefaultDeliveryOptions(),
		StartedAt:   now,
	}
}

func (s Session) expect(op string, stage Stage) error {
	if s.Stage != stage {
		return apperr.Validation(op, "not allowed at stage %s (expected %s)", s.Stage, stage)
	}
	return nil
}

func (s Session) SelectExposure(t string) (Session, error) {
	if err := s.expect("visit.exposure", StageExposure); err != nil {
		return s, err
	}
	if !ValidExposure(t) {
		return s, apperr.Validation("visit.exposure", "unknown exposure type %q", t)
	}
	s.ExposureType = t
	s.Stage = StagePartner
	return s, nil
}

func (s Session) AcknowledgePartner() (Session, error) {
	if err := s.expect("visit.partner", StagePartner); err != nil {
		return s, err
	}
	s.PartnerAcknowledged = true
	s.Stage = StageSymptoms
	return s, nil
}

// ConfirmSymptoms records the answer and moves to TREATMENT_LOADING. Both
// answers lead to the same treatment path.
func (s Session) ConfirmSymptoms(hasSymptoms bool) (Session, error) {
	if err := s.expect("visit.symptoms", StageSymptoms); err != nil {
		return s, err
	}
	s.HasSymptoms = &hasSymptoms
	s.Stage = StageTreatmentLoading
	return s, nil
}

// TreatmentReady ends the loading pause.
func (s Session) TreatmentReady() (Session, error) {
	if err := s.expect("visit.treatment", StageTreatmentLoading); err != nil {
		return s, err
	}
	s.Stage = StagePharmacy
	return s, nil
}

// CancelTreatment abandons the loading pause and returns to SYMPTOMS with the
// answer cleared.
func (s Session) CancelTreatment() Session {
	if s.Stage != StageTreatmentLoading {
		return s
	}
	s.HasSymptoms = nil
	s.Stage = StageSymptoms
	return s
}

func (s Session) ConfirmPharmacy(address string) (Session, error) {
	if err := s.expect("visit.pharmacy", StagePharmacy); err != nil {
		return s, err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return s, apperr.Validation("visit.pharmacy", "pharmacy address is required")
	}
	s.PharmacyAddress = address
	s.Stage = StageSummary
	return s, nil
}

func (s Session) SetDelivery(opts DeliveryOptions) (Session, error) {
	if err := s.expect("visit.delivery", StageSummary); err != nil {
		return s, err
	}
	s.Delivery = opts
	return s, nil
}

// Back steps to the previous stage and clears every answer collected at or
// after it. Going back to EXPOSURE clears the exposure type, so a fresh
// selection is required.
func (s Session) Back() (Session, error) {
	switch s.Stage {
	case StagePartner:
		s.ExposureType = ""
		s.PartnerAcknowledged = false
		s.HasSymptoms = nil
		s.PharmacyAddress = ""
		s.Stage = StageExposure
	case StageSymptoms:
		s.PartnerAcknowledged = false
		s.HasSymptoms = nil
		s.PharmacyAddress = ""
		s.Stage = StagePartner
	case StagePharmacy:
		s.HasSymptoms = nil
		s.PharmacyAddress = ""
		s.Stage = StageSymptoms
	default:
		return s, apperr.Validation("visit.back", "cannot go back from stage %s", s.Stage)
	}
	s.Delivery = DefaultDeliveryOptions()
	return s, nil
}
