package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/clinical-insight/internal/metrics"
	"github.com/and161185/clinical-insight/internal/model"
)

const systemPrompt = `You are a clinical AI assistant specialized in analyzing medical data including text reports, lab results, and medical images.
Your task is to:
1. Generate comprehensive SOAP notes (Subjective, Objective, Assessment, Plan)
2. Provide differential diagnoses with likelihood rankings
3. Recommend treatment plans with evidence-based rationale
4. Suggest additional investigations if needed
5. Interpret uploaded medical files (lab reports, images, etc.)
6. Provide an overall confidence score (0-100)

Always respond in JSON format with the following structure:
{
  "soap_note": {
    "subjective": "Patient's reported symptoms and history",
    "objective": "Observable findings and measurements",
    "assessment": "Clinical diagnosis and reasoning",
    "plan": "Treatment and follow-up plan"
  },
  "differential_diagnoses": [
    {"diagnosis": "Primary diagnosis", "likelihood": 85, "rationale": "Supporting evidence"}
  ],
  "treatment_recommendations": ["Recommendation 1"],
  "investigation_suggestions": ["Test 1"],
  "file_interpretations": [{"file_name": "filename", "interpretation": "detailed analysis"}],
  "confidence_score": 85,
  "overall_assessment": "Comprehensive clinical summary"
}

Important: This is an AI assistant tool and should not replace professional medical judgment.`

const promptTemplate = `PATIENT CASE SUMMARY:
%s

UPLOADED FILES: %d files attached for analysis

Please analyze this patient's complete medical data including the case summary and all uploaded files.
Generate a comprehensive clinical analysis with:
1) SOAP notes
2) Differential diagnoses with likelihood rankings
3) Treatment recommendations with rationale
4) Investigation suggestions
5) Interpretation of each uploaded file
6) Overall confidence score (0-100)
7) Comprehensive clinical assessment

Respond in the specified JSON format.`

// Outcome classifies how an analysis was obtained.
type Outcome string

const (
	OutcomeParsed   Outcome = "parsed"
	OutcomeUnparsed Outcome = "unparsed"
	OutcomeFailed   Outcome = "failed"
)

// FileLoader returns the bytes of a stored file.
type FileLoader interface {
	Load(ctx context.Context, f model.FileMeta) ([]byte, error)
}

// Analyzer turns a case into an AnalysisResult. It never returns an error:
// model failures become degraded results with low confidence.
type Analyzer struct {
	gen       Generator
	files     FileLoader
	maxPrompt int
	log       *zap.Logger
}

// NewAnalyzer constructs an Analyzer. maxPromptTokens bounds the case summary.
func NewAnalyzer(gen Generator, files FileLoader, maxPromptTokens int, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{gen: gen, files: files, maxPrompt: maxPromptTokens, log: log}
}

// Analyze runs the model over summary and every readable attached file.
func (a *Analyzer) Analyze(ctx context.Context, summary string, files []model.FileMeta) (*model.AnalysisResult, Outcome) {
	inline := make([]InlineFile, 0, len(files))
	for _, f := range files {
		if a.files == nil {
			break
		}
		data, err := a.files.Load(ctx, f)
		if err != nil {
			a.log.Warn("skip unreadable case file", zap.String("file_id", f.ID), zap.Error(err))
			continue
		}
		inline = append(inline, InlineFile{Name: f.OriginalName, MimeType: f.MimeType, Data: data})
	}

	prompt := fmt.Sprintf(promptTemplate, TruncateTokens(summary, a.maxPrompt), len(inline))
	metrics.PromptTokens.Observe(float64(CountTokens(systemPrompt) + CountTokens(prompt)))
	text, err := a.gen.Generate(ctx, Request{System: systemPrompt, Prompt: prompt, Files: inline})
	if err != nil {
		a.log.Error("clinical analysis failed", zap.Error(err))
		return failedAnalysis(err), OutcomeFailed
	}

	res, ok := parseAnalysis(text)
	if !ok {
		return basicAnalysis(text, len(inline)), OutcomeUnparsed
	}
	return res, OutcomeParsed
}

type rawAnalysis struct {
	SOAPNote                 *model.SOAPNote            `json:"soap_note"`
	DifferentialDiagnoses    []model.Diagnosis          `json:"differential_diagnoses"`
	TreatmentRecommendations []string                   `json:"treatment_recommendations"`
	InvestigationSuggestions []string                   `json:"investigation_suggestions"`
	FileInterpretations      []model.FileInterpretation `json:"file_interpretations"`
	ConfidenceScore          *float64                   `json:"confidence_score"`
	OverallAssessment        *string                    `json:"overall_assessment"`
}

// parseAnalysis decodes the model's JSON, tolerating a markdown code fence.
func parseAnalysis(text string) (*model.AnalysisResult, bool) {
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(stripFence(text)), &raw); err != nil {
		return nil, false
	}
	res := &model.AnalysisResult{
		SOAPNote: model.SOAPNote{
			Subjective: "No subjective data provided",
			Objective:  "No objective data provided",
			Assessment: "Unable to assess",
			Plan:       "No plan available",
		},
		DifferentialDiagnoses:    nonNil(raw.DifferentialDiagnoses),
		TreatmentRecommendations: nonNil(raw.TreatmentRecommendations),
		InvestigationSuggestions: nonNil(raw.InvestigationSuggestions),
		FileInterpretations:      nonNil(raw.FileInterpretations),
		OverallAssessment:        prefixRunes(text, 500),
	}
	if raw.SOAPNote != nil {
		res.SOAPNote = *raw.SOAPNote
	}
	if raw.ConfidenceScore != nil {
		res.ConfidenceScore = *raw.ConfidenceScore
	}
	if raw.OverallAssessment != nil {
		res.OverallAssessment = *raw.OverallAssessment
	}
	return res, true
}

func basicAnalysis(text string, nFiles int) *model.AnalysisResult {
	return &model.AnalysisResult{
		SOAPNote: model.SOAPNote{
			Subjective: "Analysis based on provided case summary",
			Objective:  fmt.Sprintf("Files analyzed: %d files", nFiles),
			Assessment: "AI-generated clinical assessment",
			Plan:       "See treatment recommendations",
		},
		DifferentialDiagnoses: []model.Diagnosis{{
			Diagnosis:  "Requires further evaluation",
			Likelihood: 50,
			Rationale:  "Insufficient data for definitive diagnosis",
		}},
		TreatmentRecommendations: []string{"Consult with specialist", "Additional diagnostic tests"},
		InvestigationSuggestions: []string{"Complete history and physical", "Relevant laboratory tests"},
		FileInterpretations:      []model.FileInterpretation{{FileName: "all_files", Interpretation: prefixRunes(text, 200)}},
		ConfidenceScore:          50,
		OverallAssessment:        prefixRunes(text, 500),
	}
}

func failedAnalysis(err error) *model.AnalysisResult {
	msg := err.Error()
	return &model.AnalysisResult{
		SOAPNote: model.SOAPNote{
			Subjective: "Error in analysis",
			Objective:  "Technical issue occurred",
			Assessment: "Unable to complete analysis",
			Plan:       "Please retry analysis",
		},
		DifferentialDiagnoses:    []model.Diagnosis{{Diagnosis: "Analysis failed", Likelihood: 0, Rationale: msg}},
		TreatmentRecommendations: []string{"Retry analysis", "Consult healthcare provider"},
		InvestigationSuggestions: []string{"Technical review required"},
		FileInterpretations:      []model.FileInterpretation{{FileName: "error", Interpretation: "Analysis failed: " + msg}},
		ConfidenceScore:          0,
		OverallAssessment:        "Analysis failed due to technical error: " + msg,
	}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop language tag
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func prefixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
