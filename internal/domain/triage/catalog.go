// Package triage serves the static option lists behind the home screen
// visit flows.
package triage

import (
	"sort"

	"github.com/carepath/portal/internal/domain/visit"
	"github.com/carepath/portal/internal/platform/apperr"
)

// Flow names accepted by Lookup.
const (
	FlowSickVisit   = "sick-visit"
	FlowRefill      = "medication-refill"
	FlowSTDExposure = "std-exposure"
	FlowEmergency   = "emergency"
)

type Catalog struct {
	Flow        string   `json:"flow"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

var catalogs = map[string]Catalog{
	FlowSickVisit: {
		Flow:        FlowSickVisit,
		Title:       "Sick Visit",
		Description: "Get care for common illnesses from a licensed provider.",
		Options: []string{
			"Cold or flu symptoms",
			"Sore throat",
			"Sinus infection",
			"Ear pain",
			"Pink eye",
			"Urinary tract infection",
			"Rash or skin irritation",
			"Nausea, vomiting or diarrhea",
		},
	},
	FlowRefill: {
		Flow:        FlowRefill,
		Title:       "Medication Refill",
		Description: "Request a refill of a medication you already take.",
		Options: []string{
			"Blood pressure",
			"Cholesterol",
			"Diabetes",
			"Thyroid",
			"Asthma inhaler",
			"Allergy",
			"Birth control",
		},
	},
	FlowSTDExposure: {
		Flow:        FlowSTDExposure,
		Title:       "STD Exposure",
		Description: "Confidential care and guidance in case of STD exposure.",
		Options:     visit.ExposureTypes,
	},
	FlowEmergency: {
		Flow:        FlowEmergency,
		Title:       "Emergency",
		Description: "If you are experiencing any of the following, call 911 or go to the nearest emergency room.",
		Options: []string{
			"Chest pain or pressure",
			"Difficulty breathing",
			"Sudden weakness, numbness or facial drooping",
			"Severe bleeding",
			"Loss of consciousness",
			"Severe allergic reaction",
			"Thoughts of harming yourself or others",
		},
	},
}

// Lookup returns a copy of the catalog for flow.
func Lookup(flow string) (Catalog, error) {
	c, ok := catalogs[flow]
	if !ok {
		return Catalog{}, apperr.NotFound("triage.lookup", "unknown flow "+flow)
	}
	c.Options = append([]string(nil), c.Options...)
	return c, nil
}

// Flows lists the known flow names in sorted order.
func Flows() []string {
	out := make([]string, 0, len(catalogs))
	for name := range catalogs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
