package visit

import (
	"time"

	"github.com/google/uuid"
)

// Record is the immutable outcome of a finalized visit. It copies every
// value it shows and never refers back to the live profile.
type Record struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	UserID               uuid.UUID `db:"user_id" json:"user_id"`
	ExposureType         string    `db:"exposure_type" json:"exposure_type"`
	Reason               string    `db:"reason" json:"reason"`
	Diagnosis            string    `db:"diagnosis" json:"diagnosis"`
	MedicationName       string    `db:"medication_name" json:"medication_name"`
	MedicationDirections string    `db:"medication_directions" json:"medication_directions"`
	MedicationQty        string    `db:"medication_qty" json:"medication_qty"`
	Instruction          string    `db:"instruction" json:"instruction"`
	PharmacySent         string    `db:"pharmacy_sent" json:"pharmacy_sent"`
	FirstName            string    `db:"first_name" json:"first_name"`
	LastName             string    `db:"last_name" json:"last_name"`
	DOB                  string    `db:"dob" json:"dob"`
	Email                string    `db:"email" json:"email"`
	DateOfService        string    `db:"date_of_service" json:"date_of_service"`
	DocumentKey          string    `db:"document_key" json:"document_key,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// NewRecord snapshots a summary. The record takes the session's id, so a
// retried finalize writes the same document key.
func NewRecord(s Session, sum *Summary) *Record {
	return &Record{
		ID:                   s.ID,
		UserID:               s.UserID,
		ExposureType:         sum.ExposureType,
		Reason:               sum.Reason,
		Diagnosis:            sum.Diagnosis,
		MedicationName:       sum.Plan.MedicationName,
		MedicationDirections: sum.Plan.Directions,
		MedicationQty:        sum.Plan.Quantity,
		Instruction:          sum.Plan.Instruction,
		PharmacySent:         sum.Pharmacy,
		FirstName:            sum.Patient.FirstName,
		LastName:             sum.Patient.LastName,
		DOB:                  sum.Patient.DOB,
		Email:                sum.Patient.Email,
		DateOfService:        sum.DateOfService,
	}
}

// ReceiptData is the template data for the visit receipt email. It carries
// every field of the record so the email matches what was archived.
// created_at and document_key are empty when the visit was not archived.
func (r *Record) ReceiptData(summaryText string) map[string]string {
	createdAt := ""
	if !r.CreatedAt.IsZero() {
		createdAt = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return map[string]string{
		"id":                    r.ID.String(),
		"user_id":               r.UserID.String(),
		"exposure_type":         r.ExposureType,
		"reason":                r.Reason,
		"diagnosis":             r.Diagnosis,
		"medication_name":       r.MedicationName,
		"medication_directions": r.MedicationDirections,
		"medication_qty":        r.MedicationQty,
		"instruction":           r.Instruction,
		"pharmacy_sent":         r.PharmacySent,
		"first_name":            r.FirstName,
		"last_name":             r.LastName,
		"dob":                   r.DOB,
		"email":                 r.Email,
		"date_of_service":       r.DateOfService,
		"document_key":          r.DocumentKey,
		"created_at":            createdAt,
		"summary":               summaryText,
	}
}
