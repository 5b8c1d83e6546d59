package visit

import "strings"

// Plan is the medication plan derived from the allergy flag.
type Plan struct {
	MedicationName string `json:"medication_name"`
	Directions     string `json:"directions"`
	Quantity       string `json:"quantity"`
	Instruction    string `json:"instruction"`
}

var (
	azithromycinPlan = Plan{
		MedicationName: "Azithromycin 1g",
		Directions:     "by mouth x 1 dose",
		Quantity:       "1 dose",
		Instruction:    "Complete the full course of treatment. This medication was selected due to reported allergies to standard treatments.",
	}
	doxycyclinePlan = Plan{
		MedicationName: "Doxycycline 100mg",
		Directions:     "twice daily x 7 days",
		Quantity:       "14 tablets, no refills",
		Instruction:    "Limit sun exposure; use shade to reduce direct sun exposure while taking Doxycycline to prevent sun allergy/sensitivity.",
	}
)

// DerivePlan picks Azithromycin when the patient reports a doxycycline
// allergy and Doxycycline otherwise.
func DerivePlan(allergyFlag bool) Plan {
	if allergyFlag {
		return azithromycinPlan
	}
	return doxycyclinePlan
}

// HasDoxycyclineAllergy reports whether the free-text allergy field mentions
// "doxy" in any case. An empty field means no allergy.
func HasDoxycyclineAllergy(allergies string) bool {
	return strings.Contains(strings.ToLower(allergies), "doxy")
}
