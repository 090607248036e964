package model

import "time"

// TimeFormat is the ISO-8601 layout used for every timestamp leaving the service.
const TimeFormat = time.RFC3339Nano

// FileView is FileMeta with its timestamp rendered as a string.
type FileView struct {
	ID           string `json:"id"`
	OriginalName string `json:"original_name"`
	SavedName    string `json:"saved_name"`
	FilePath     string `json:"file_path"`
	FileSize     int64  `json:"file_size"`
	MimeType     string `json:"mime_type"`
	UploadedAt   string `json:"uploaded_at"`
}

// CaseView is the transport form of a case: no storage internals, string timestamps.
type CaseView struct {
	ID             string `json:"id"`
	DoctorID       string `json:"doctor_id"`
	DoctorName     string `json:"doctor_name,omitempty"`
	PatientSummary string `json:"patient_summary"`
	Patient
	UploadedFiles   []FileView      `json:"uploaded_files"`
	AnalysisResult  *AnalysisResult `json:"analysis_result"`
	ConfidenceScore *float64        `json:"confidence_score"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

// FormatTime renders t in UTC using TimeFormat.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeFormat) }

// NewFileView renders file metadata for transport.
func NewFileView(f FileMeta) FileView {
	return FileView{
		ID:           f.ID,
		OriginalName: f.OriginalName,
		SavedName:    f.SavedName,
		FilePath:     f.FilePath,
		FileSize:     f.FileSize,
		MimeType:     f.MimeType,
		UploadedAt:   FormatTime(f.UploadedAt),
	}
}

// NewCaseView sanitizes a case for transport.
func NewCaseView(c ClinicalCase) CaseView {
	files := make([]FileView, 0, len(c.UploadedFiles))
	for _, f := range c.UploadedFiles {
		files = append(files, NewFileView(f))
	}
	return CaseView{
		ID:              c.ID.String(),
		DoctorID:        c.DoctorID.String(),
		DoctorName:      c.DoctorName,
		PatientSummary:  c.PatientSummary,
		Patient:         c.Patient,
		UploadedFiles:   files,
		AnalysisResult:  c.AnalysisResult,
		ConfidenceScore: c.ConfidenceScore,
		CreatedAt:       FormatTime(c.CreatedAt),
		UpdatedAt:       FormatTime(c.UpdatedAt),
	}
}

// NewCaseViews sanitizes a slice of cases; the result is never nil.
func NewCaseViews(cs []ClinicalCase) []CaseView {
	out := make([]CaseView, 0, len(cs))
	for _, c := range cs {
		out = append(out, NewCaseView(c))
	}
	return out
}
