// Package export renders cases as PDF reports and XLSX spreadsheets.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/and161185/clinical-insight/internal/model"
)

const disclaimer = "This report was generated with AI assistance and does not replace professional medical judgment."

// CasePDF writes a one-case report. doctorName may be empty.
func CasePDF(w io.Writer, c model.ClinicalCase, doctorName string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Clinical Case Report", true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	r := &report{pdf: pdf, tr: tr}

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Clinical Case Report", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	r.heading("Case information")
	r.field("Case ID", c.ID.String())
	r.field("Created", c.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	if doctorName == "" {
		doctorName = c.DoctorName
	}
	if doctorName != "" {
		r.field("Doctor", doctorName)
	}
	if c.ConfidenceScore != nil {
		r.field("Confidence", strconv.FormatFloat(*c.ConfidenceScore, 'f', 0, 64)+"%")
	}

	if p := c.Patient; p != (model.Patient{}) {
		r.heading("Patient")
		r.field("Patient ID", p.PatientID)
		r.field("Name", p.PatientName)
		if p.PatientAge != nil {
			r.field("Age", strconv.Itoa(*p.PatientAge))
		}
		r.field("Gender", p.PatientGender)
		r.field("Date of birth", p.PatientDOB)
		r.field("Address", p.PatientAddress)
		r.field("Emergency contact", p.EmergencyContact)
	}

	r.heading("Patient summary")
	r.text(c.PatientSummary)

	if len(c.UploadedFiles) > 0 {
		r.heading("Uploaded files")
		for _, f := range c.UploadedFiles {
			r.bullet(fmt.Sprintf("%s (%s, %d bytes)", f.OriginalName, f.MimeType, f.FileSize))
		}
	}

	if a := c.AnalysisResult; a != nil {
		r.heading("SOAP note")
		r.field("Subjective", a.SOAPNote.Subjective)
		r.field("Objective", a.SOAPNote.Objective)
		r.field("Assessment", a.SOAPNote.Assessment)
		r.field("Plan", a.SOAPNote.Plan)

		if len(a.DifferentialDiagnoses) > 0 {
			r.heading("Differential diagnoses")
			for _, d := range a.DifferentialDiagnoses {
				r.bullet(fmt.Sprintf("%s (%.0f%%): %s", d.Diagnosis, d.Likelihood, d.Rationale))
			}
		}
		r.list("Treatment recommendations", a.TreatmentRecommendations)
		r.list("Investigation suggestions", a.InvestigationSuggestions)
		if len(a.FileInterpretations) > 0 {
			r.heading("File interpretations")
			for _, fi := range a.FileInterpretations {
				r.bullet(fi.FileName + ": " + fi.Interpretation)
			}
		}
		r.heading("Overall assessment")
		r.text(a.OverallAssessment)
	} else {
		r.heading("Analysis")
		r.text("No analysis has been run for this case.")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.MultiCell(0, 4, tr(disclaimer), "", "L", false)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

type report struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (r *report) heading(s string) {
	r.pdf.Ln(3)
	r.pdf.SetFont("Helvetica", "B", 12)
	r.pdf.CellFormat(0, 7, r.tr(s), "B", 1, "L", false, 0, "")
	r.pdf.Ln(1)
}

func (r *report) field(label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	r.pdf.SetFont("Helvetica", "B", 10)
	r.pdf.CellFormat(40, 5, r.tr(label+":"), "", 0, "L", false, 0, "")
	r.pdf.SetFont("Helvetica", "", 10)
	r.pdf.MultiCell(0, 5, r.tr(value), "", "L", false)
}

func (r *report) text(s string) {
	r.pdf.SetFont("Helvetica", "", 10)
	r.pdf.MultiCell(0, 5, r.tr(s), "", "L", false)
}

func (r *report) bullet(s string) {
	r.pdf.SetFont("Helvetica", "", 10)
	r.pdf.CellFormat(5, 5, "-", "", 0, "L", false, 0, "")
	r.pdf.MultiCell(0, 5, r.tr(s), "", "L", false)
}

func (r *report) list(title string, items []string) {
	if len(items) == 0 {
		return
	}
	r.heading(title)
	for _, it := range items {
		r.bullet(it)
	}
}
