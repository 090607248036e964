package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Patient holds optional demographics attached to a case.
type Patient struct {
	PatientID        string `json:"patient_id,omitempty"`
	PatientName      string `json:"patient_name,omitempty"`
	PatientAge       *int   `json:"patient_age,omitempty"`
	PatientGender    string `json:"patient_gender,omitempty"`
	PatientDOB       string `json:"patient_dob,omitempty"`
	PatientAddress   string `json:"patient_address,omitempty"`
	EmergencyContact string `json:"emergency_contact,omitempty"`
}

// FileMeta describes one uploaded file as returned by the file store.
type FileMeta struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	SavedName    string    `json:"saved_name"`
	FilePath     string    `json:"file_path"`
	FileSize     int64     `json:"file_size"`
	MimeType     string    `json:"mime_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// SOAPNote is the Subjective/Objective/Assessment/Plan clinical note.
type SOAPNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// Diagnosis is one entry of the differential.
type Diagnosis struct {
	Diagnosis  string  `json:"diagnosis"`
	Likelihood float64 `json:"likelihood"`
	Rationale  string  `json:"rationale"`
}

// FileInterpretation is the model's reading of an uploaded file.
type FileInterpretation struct {
	FileName       string `json:"file_name"`
	Interpretation string `json:"interpretation"`
}

// AnalysisResult is the structured LLM output stored on a case.
type AnalysisResult struct {
	SOAPNote                 SOAPNote             `json:"soap_note"`
	DifferentialDiagnoses    []Diagnosis          `json:"differential_diagnoses"`
	TreatmentRecommendations []string             `json:"treatment_recommendations"`
	InvestigationSuggestions []string             `json:"investigation_suggestions"`
	FileInterpretations      []FileInterpretation `json:"file_interpretations"`
	ConfidenceScore          float64              `json:"confidence_score"`
	OverallAssessment        string               `json:"overall_assessment"`
}

// ClinicalCase is a patient case owned by a doctor.
type ClinicalCase struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	DoctorName     string
	PatientSummary string
	Patient
	UploadedFiles   []FileMeta
	AnalysisResult  *AnalysisResult
	ConfidenceScore *float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SearchFilters narrows the structured case search.
type SearchFilters struct {
	DateFrom      *time.Time // inclusive, start of day
	DateTo        *time.Time // inclusive, end of day
	ConfidenceMin *float64
	HasFiles      *bool
	SearchText    string
}

// Feedback types.
const (
	FeedbackPositive = "positive"
	FeedbackNegative = "negative"
)

// Feedback is a doctor's rating of a case analysis.
type Feedback struct {
	ID           uuid.UUID
	CaseID       uuid.UUID
	DoctorID     uuid.UUID
	FeedbackType string
	FeedbackText string
	CreatedAt    time.Time
}

// FeedbackStats aggregates feedback for one doctor.
type FeedbackStats struct {
	Total    int
	Positive int
	Negative int
}

// SatisfactionRate returns positive share in percent, 0 when there is no feedback.
func (s FeedbackStats) SatisfactionRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Positive) / float64(s.Total) * 100
}
