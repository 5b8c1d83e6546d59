package visit

import "testing"

func TestDerivePlan(t *testing.T) {
	a := DerivePlan(true)
	if a.MedicationName != "Azithromycin 1g" || a.Directions != "by mouth x 1 dose" || a.Quantity != "1 dose" {
		t.Errorf("unexpected allergy plan %+v", a)
	}
	d := DerivePlan(false)
	if d.MedicationName != "Doxycycline 100mg" || d.Directions != "twice daily x 7 days" || d.Quantity != "14 tablets, no refills" {
		t.Errorf("unexpected default plan %+v", d)
	}
	for i := 0; i < 10; i++ {
		if DerivePlan(true) != a || DerivePlan(false) != d {
			t.Fatal("plan is not deterministic")
		}
	}
}

func TestHasDoxycyclineAllergy(t *testing.T) {
	cases := map[string]bool{
		"":                       false,
		"Penicillin":             false,
		"Doxycycline":            true,
		"penicillin, DOXY":       true,
		"allergic to doxycyclin": true,
		"Dox":                    false,
	}
	for in, want := range cases {
		if got := HasDoxycyclineAllergy(in); got != want {
			t.Errorf("HasDoxycyclineAllergy(%q) = %v, want %v", in, got, want)
		}
	}
}
