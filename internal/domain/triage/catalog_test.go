package triage

import (
	"testing"

	"github.com/carepath/portal/internal/platform/apperr"
)

func TestLookup(t *testing.T) {
	for _, flow := range Flows() {
		c, err := Lookup(flow)
		if err != nil {
			t.Fatalf("%s: %v", flow, err)
		}
		if c.Flow != flow || c.Title == "" || len(c.Options) == 0 {
			t.Errorf("%s: incomplete catalog %+v", flow, c)
		}
	}
}

func TestLookup_STDExposureMatchesFlow(t *testing.T) {
	c, _ := Lookup(FlowSTDExposure)
	want := []string{"Chlamydia", "Gonorrhea", "Syphilis", "Trichomoniasis"}
	if len(c.Options) != len(want) {
		t.Fatalf("unexpected options %v", c.Options)
	}
	for i := range want {
		if c.Options[i] != want[i] {
			t.Errorf("option %d = %q, want %q", i, c.Options[i], want[i])
		}
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	c, _ := Lookup(FlowSickVisit)
	c.Options[0] = "changed"
	again, _ := Lookup(FlowSickVisit)
	if again.Options[0] == "changed" {
		t.Error("callers must not be able to modify the catalog")
	}
}

func TestLookup_Unknown(t *testing.T) {
	if _, err := Lookup("dental"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
