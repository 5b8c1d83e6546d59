package visit

// Stage is one step of the STD exposure flow.
type Stage string

const (
	StageExposure         Stage = "EXPOSURE"
	StagePartner          Stage = "PARTNER"
	StageSymptoms         Stage = "SYMPTOMS"
	StageTreatmentLoading Stage = "TREATMENT_LOADING"
	StagePharmacy         Stage = "PHARMACY"
	StageSummary          Stage = "SUMMARY"

	// StageHistory is the visit history view. It sits outside the linear
	// sequence and never appears on a Session.
	StageHistory Stage = "HISTORY"
)

// ExposureTypes is the closed set offered at EXPOSURE, in display order.
var ExposureTypes = []string{"Chlamydia", "Gonorrhea", "Syphilis", "Trichomoniasis"}

// ValidExposure reports whether t is one of ExposureTypes. Matching is
// case-sensitive.
func ValidExposure(t string) bool {
	for _, e := range ExposureTypes {
		if e == t {
			return true
		}
	}
	return false
}
