package visit

import (
	"fmt"
	"strings"
	"time"

	"github.com/carepath/portal/internal/platform/apperr"
)

const (
	visitTypeLabel = "STD Exposure"
	providerLabel  = "CarePath Telehealth Provider"
	serviceDateFmt = "01/02/2006"

	adherenceInstruction  = "Take the medication exactly as directed and finish every dose, even if you feel better."
	abstinenceInstruction = "Abstain from sexual activity until 7 days after treatment is complete and until all partners have been treated."
	followUpText          = "Follow up with PCP within 3 days for STD screening."
)

// Patient is the demographic snapshot copied onto a summary and its record.
type Patient struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	DOB       string `json:"dob"`
	Email     string `json:"email"`
}

// Summary is the clinical visit document shown at SUMMARY and archived on
// finalize.
type Summary struct {
	Patient       Patient  `json:"patient"`
	DateOfService string   `json:"date_of_service"`
	VisitType     string   `json:"visit_type"`
	Provider      string   `json:"provider"`
	ExposureType  string   `json:"exposure_type"`
	Reason        string   `json:"reason"`
	Diagnosis     string   `json:"diagnosis"`
	Plan          Plan     `json:"plan"`
	Pharmacy      string   `json:"pharmacy"`
	Instructions  []string `json:"instructions"`
	FollowUp      string   `json:"follow_up"`
}

// Diagnosis is the diagnosis line for an exposure type.
func Diagnosis(exposureType string) string {
	return "Exposure to " + strings.ToLower(exposureType)
}

func reasonFor(exposureType string, hasSymptoms *bool) string {
	reason := fmt.Sprintf("Reported possible exposure to %s.", exposureType)
	if hasSymptoms == nil {
		return reason
	}
	if *hasSymptoms {
		return reason + " Patient reports symptoms."
	}
	return reason + " Patient reports no symptoms."
}

// BuildSummary assembles the summary for a session that has reached
// SUMMARY. It never fills in missing patient data.
func BuildSummary(s Session, p Patient, serviceDate time.Time) (*Summary, error) {
	if s.ExposureType == "" || s.PharmacyAddress == "" {
		return nil, apperr.Validation("visit.summary", "session is incomplete at stage %s", s.Stage)
	}
	var missing []string
	for _, f := range [][2]string{
		{"first_name", p.FirstName}, {"last_name", p.LastName}, {"dob", p.DOB}, {"email", p.Email},
	} {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("visit.summary", "profile is missing %s", strings.Join(missing, ", "))
	}

	plan := DerivePlan(s.AllergyFlag)
	return &Summary{
		Patient:       p,
		DateOfService: serviceDate.Format(serviceDateFmt),
		VisitType:     visitTypeLabel,
		Provider:      providerLabel,
		ExposureType:  s.ExposureType,
		Reason:        reasonFor(s.ExposureType, s.HasSymptoms),
		Diagnosis:     Diagnosis(s.ExposureType),
		Plan:          plan,
		Pharmacy:      s.PharmacyAddress,
		Instructions:  []string{adherenceInstruction, plan.Instruction, abstinenceInstruction},
		FollowUp:      followUpText,
	}, nil
}

// MedicationLine is the medication name followed by its directions.
func (s *Summary) MedicationLine() string {
	return s.Plan.MedicationName + ", " + s.Plan.Directions
}

// Text renders the summary as plain text. The same summary always renders
// to the same bytes.
func (s *Summary) Text() string {
	var b strings.Builder
	b.WriteString("CLINICAL VISIT SUMMARY\n\n")
	fmt.Fprintf(&b, "Patient: %s %s\n", s.Patient.FirstName, s.Patient.LastName)
	fmt.Fprintf(&b, "Date of Service: %s\n", s.DateOfService)
	fmt.Fprintf(&b, "DOB: %s\n", s.Patient.DOB)
	fmt.Fprintf(&b, "Visit Type: %s\n", s.VisitType)
	fmt.Fprintf(&b, "Provider: %s\n", s.Provider)

	b.WriteString("\nREASON FOR VISIT\n")
	b.WriteString(s.Reason + "\n")

	b.WriteString("\nDIAGNOSIS\n")
	b.WriteString(s.Diagnosis + "\n")

	b.WriteString("\nTREATMENT PROVIDED\n")
	fmt.Fprintf(&b, "Medication: %s\n", s.MedicationLine())
	fmt.Fprintf(&b, "Quantity: %s\n", s.Plan.Quantity)
	fmt.Fprintf(&b, "Sent to pharmacy: %s\n", s.Pharmacy)

	b.WriteString("\nINSTRUCTIONS\n")
	for _, line := range s.Instructions {
		b.WriteString("- " + line + "\n")
	}

	b.WriteString("\nFOLLOW-UP\n")
	b.WriteString(s.FollowUp + "\n")
	return b.String()
}
