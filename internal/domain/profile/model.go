package profile

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the patient's demographic, medical and billing record.
type Profile struct {
	UserID                  uuid.UUID `json:"user_id"`
	FirstName               string    `json:"first_name"`
	LastName                string    `json:"last_name"`
	MiddleInitial           string    `json:"middle_initial"`
	DOB                     string    `json:"dob"`
	Gender                  string    `json:"gender"`
	Race                    string    `json:"race"`
	Address                 string    `json:"address"`
	City                    string    `json:"city"`
	State                   string    `json:"state"`
	Zip                     string    `json:"zip"`
	Email                   string    `json:"email"`
	Phone                   string    `json:"phone"`
	PrimaryCare             string    `json:"primary_care"`
	CurrentMedications      []string  `json:"current_medications"`
	Allergies               string    `json:"allergies"`
	Pharmacy                string    `json:"pharmacy"`
	Fax                     string    `json:"fax"`
	BillTo                  string    `json:"bill_to"`
	Relationship            string    `json:"relationship"`
	ResponsiblePartyAddress string    `json:"responsible_party_address"`
	ResponsiblePartyPhone   string    `json:"responsible_party_phone"`
	CityStateZip            string    `json:"city_state_zip"`
	Consent                 bool      `json:"consent"`
	PhotoURL                string    `json:"photo_url"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// FieldChange is the before and after value of one field.
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// ChangeEntry is one audited profile update.
type ChangeEntry struct {
	ID        uuid.UUID              `json:"id"`
	UserID    uuid.UUID              `json:"user_id"`
	Changes   map[string]FieldChange `json:"changes"`
	ChangedAt time.Time              `json:"changed_at"`
}

type field struct {
	name  string
	value interface{}
}

// fields lists the editable fields under their JSON names.
func (p *Profile) fields() []field {
	return []field{
		{"first_name", p.FirstName},
		{"last_name", p.LastName},
		{"middle_initial", p.MiddleInitial},
		{"dob", p.DOB},
		{"gender", p.Gender},
		{"race", p.Race},
		{"address", p.Address},
		{"city", p.City},
		{"state", p.State},
		{"zip", p.Zip},
		{"email", p.Email},
		{"phone", p.Phone},
		{"primary_care", p.PrimaryCare},
		{"current_medications", p.CurrentMedications},
		{"allergies", p.Allergies},
		{"pharmacy", p.Pharmacy},
		{"fax", p.Fax},
		{"bill_to", p.BillTo},
		{"relationship", p.Relationship},
		{"responsible_party_address", p.ResponsiblePartyAddress},
		{"responsible_party_phone", p.ResponsiblePartyPhone},
		{"city_state_zip", p.CityStateZip},
		{"consent", p.Consent},
		{"photo_url", p.PhotoURL},
	}
}

// Diff returns the fields whose values differ between old and updated.
// Lists are compared element by element. An empty map means no change.
func Diff(old, updated *Profile) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	before := old.fields()
	after := updated.fields()
	for i := range before {
		if !equalValue(before[i].value, after[i].value) {
			changes[before[i].name] = FieldChange{Old: before[i].value, New: after[i].value}
		}
	}
	return changes
}

func equalValue(a, b interface{}) bool {
	la, aIsList := a.([]string)
	lb, bIsList := b.([]string)
	if aIsList || bIsList {
		if len(la) != len(lb) {
			return false
		}
		for i := range la {
			if la[i] != lb[i] {
				return false
			}
		}
		return true
	}
	return a == b
}
