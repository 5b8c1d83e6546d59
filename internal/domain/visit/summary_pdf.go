package visit

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfFont       = "Helvetica"
	pdfLineHeight = 6.0
)

// RenderPDF lays the summary out on a single Letter page using the core
// Helvetica font, so no font files are needed at runtime. createdAt is
// written as the document creation date.
func RenderPDF(s *Summary, createdAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetTitle("Clinical Visit Summary", false)
	pdf.SetAuthor(s.Provider, false)
	pdf.SetCreationDate(createdAt)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(pdfFont, "B", 16)
	pdf.CellFormat(0, 10, "Clinical Visit Summary", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(pdfFont, "", 11)
	for _, kv := range [][2]string{
		{"Patient", s.Patient.FirstName + " " + s.Patient.LastName},
		{"Date of Service", s.DateOfService},
		{"DOB", s.Patient.DOB},
		{"Visit Type", s.VisitType},
		{"Provider", s.Provider},
	} {
		pdf.SetFont(pdfFont, "B", 11)
		pdf.CellFormat(40, pdfLineHeight, kv[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont(pdfFont, "", 11)
		pdf.CellFormat(0, pdfLineHeight, tr(kv[1]), "", 1, "L", false, 0, "")
	}

	section := func(title string, lines ...string) {
		pdf.Ln(4)
		pdf.SetFont(pdfFont, "B", 12)
		pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
		pdf.Ln(1)
		pdf.SetFont(pdfFont, "", 11)
		for _, line := range lines {
			pdf.MultiCell(0, pdfLineHeight, tr(line), "", "L", false)
		}
	}

	section("Reason for Visit", s.Reason)
	section("Diagnosis", s.Diagnosis)
	section("Treatment Provided",
		"Medication: "+s.MedicationLine(),
		"Quantity: "+s.Plan.Quantity,
		"Sent to pharmacy: "+s.Pharmacy,
	)
	bullets := make([]string, len(s.Instructions))
	for i, line := range s.Instructions {
		bullets[i] = "- " + line
	}
	section("Instructions", bullets...)
	section("Follow-up", s.FollowUp)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render summary pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write summary pdf: %w", err)
	}
	return buf.Bytes(), nil
}
