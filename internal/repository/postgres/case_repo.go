package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/query"
	"github.com/and161185/clinical-insight/internal/repository"
)

// CaseRepo implements CaseRepository on the clinical_cases table. Patient
// demographics, uploaded files and the analysis are JSONB documents.
type CaseRepo struct{ db *DB }

var _ repository.CaseRepository = (*CaseRepo)(nil)

// NewCaseRepo constructs a case repository.
func NewCaseRepo(db *DB) *CaseRepo { return &CaseRepo{db: db} }

const caseColumns = `id, doctor_id, doctor_name, patient_summary, patient, uploaded_files,
analysis_result, confidence_score, created_at, updated_at`

// fieldExpr maps a searchable field to its SQL expression.
var fieldExpr = map[query.Field]string{
	query.FieldPatientSummary:           `patient_summary`,
	query.FieldInvestigationSuggestions: `(analysis_result->>'investigation_suggestions')`,
	query.FieldOverallAssessment:        `(analysis_result->>'overall_assessment')`,
	query.FieldSOAPSubjective:           `(analysis_result->'soap_note'->>'subjective')`,
	query.FieldSOAPAssessment:           `(analysis_result->'soap_note'->>'assessment')`,
}

var searchTextFields = []query.Field{
	query.FieldPatientSummary,
	query.FieldOverallAssessment,
	query.FieldSOAPSubjective,
	query.FieldSOAPAssessment,
}

// Create inserts a new case.
func (r *CaseRepo) Create(ctx context.Context, c *model.ClinicalCase) error {
	patient, err := json.Marshal(c.Patient)
	if err != nil {
		return fmt.Errorf("encode patient: %w", err)
	}
	files, err := encodeFiles(c.UploadedFiles)
	if err != nil {
		return err
	}
	analysis, err := encodeAnalysis(c.AnalysisResult)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO clinical_cases (id, doctor_id, doctor_name, patient_summary, patient, uploaded_files,
  analysis_result, confidence_score, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.db.Pool.Exec(ctx, q, c.ID, c.DoctorID, c.DoctorName, c.PatientSummary,
		patient, files, analysis, c.ConfidenceScore, c.CreatedAt, c.UpdatedAt)
	if _, ok := uniqueViolation(err); ok {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get loads a case owned by doctorID.
func (r *CaseRepo) Get(ctx context.Context, doctorID, caseID uuid.UUID) (*model.ClinicalCase, error) {
	q := `SELECT ` + caseColumns + ` FROM clinical_cases WHERE id=$1 AND doctor_id=$2`
	c, err := scanCase(r.db.Pool.QueryRow(ctx, q, caseID, doctorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListByDoctor returns the doctor's newest cases.
func (r *CaseRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit int) ([]model.ClinicalCase, error) {
	q := `SELECT ` + caseColumns + ` FROM clinical_cases WHERE doctor_id=$1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, q, doctorID, limit)
}

// AppendFiles concatenates files to uploaded_files, keeping upload order.
func (r *CaseRepo) AppendFiles(ctx context.Context, doctorID, caseID uuid.UUID, files []model.FileMeta, at time.Time) error {
	raw, err := encodeFiles(files)
	if err != nil {
		return err
	}
	const q = `
UPDATE clinical_cases
SET uploaded_files = uploaded_files || $3::jsonb, updated_at=$4
WHERE id=$1 AND doctor_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, caseID, doctorID, raw, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetAnalysis stores the analysis document and its confidence score.
func (r *CaseRepo) SetAnalysis(ctx context.Context, doctorID, caseID uuid.UUID, a *model.AnalysisResult, at time.Time) error {
	raw, err := encodeAnalysis(a)
	if err != nil {
		return err
	}
	var score *float64
	if a != nil {
		s := a.ConfidenceScore
		score = &s
	}
	const q = `
UPDATE clinical_cases
SET analysis_result=$3, confidence_score=$4, updated_at=$5
WHERE id=$1 AND doctor_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, caseID, doctorID, raw, score, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Find translates a resolved query filter to SQL. No ORDER BY is applied so
// the result keeps the table's natural order.
func (r *CaseRepo) Find(ctx context.Context, f query.Filter) ([]model.ClinicalCase, error) {
	if f.MatchNothing {
		return nil, nil
	}
	w := newWhere(f.DoctorID)
	if f.CreatedFrom != nil {
		w.add("created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		w.add("created_at <= $%d", *f.CreatedTo)
	}
	if f.Pattern != "" {
		if err := w.anyMatches(f.Fields, f.Pattern); err != nil {
			return nil, err
		}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = query.MaxResults
	}
	q := `SELECT ` + caseColumns + ` FROM clinical_cases WHERE ` + w.sql() + fmt.Sprintf(` LIMIT $%d`, w.next())
	return r.list(ctx, q, append(w.args, limit)...)
}

// Search applies the structured filters of the case browser.
func (r *CaseRepo) Search(ctx context.Context, doctorID uuid.UUID, f model.SearchFilters, limit int) ([]model.ClinicalCase, error) {
	w := newWhere(doctorID)
	if f.DateFrom != nil {
		w.add("created_at >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		w.add("created_at <= $%d", *f.DateTo)
	}
	if f.ConfidenceMin != nil {
		w.add("confidence_score >= $%d", *f.ConfidenceMin)
	}
	if f.HasFiles != nil {
		if *f.HasFiles {
			w.conds = append(w.conds, "jsonb_array_length(uploaded_files) > 0")
		} else {
			w.conds = append(w.conds, "jsonb_array_length(uploaded_files) = 0")
		}
	}
	if text := strings.TrimSpace(f.SearchText); text != "" {
		if err := w.anyMatches(searchTextFields, regexp.QuoteMeta(text)); err != nil {
			return nil, err
		}
	}
	q := `SELECT ` + caseColumns + ` FROM clinical_cases WHERE ` + w.sql() +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, w.next())
	return r.list(ctx, q, append(w.args, limit)...)
}

func (r *CaseRepo) list(ctx context.Context, q string, args ...any) ([]model.ClinicalCase, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ClinicalCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCase(row pgx.Row) (*model.ClinicalCase, error) {
	var (
		c                        model.ClinicalCase
		patient, files, analysis []byte
	)
	err := row.Scan(&c.ID, &c.DoctorID, &c.DoctorName, &c.PatientSummary, &patient, &files,
		&analysis, &c.ConfidenceScore, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(patient) > 0 {
		if err := json.Unmarshal(patient, &c.Patient); err != nil {
			return nil, fmt.Errorf("decode patient of case %s: %w", c.ID, err)
		}
	}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &c.UploadedFiles); err != nil {
			return nil, fmt.Errorf("decode files of case %s: %w", c.ID, err)
		}
	}
	if len(analysis) > 0 && string(analysis) != "null" {
		var a model.AnalysisResult
		if err := json.Unmarshal(analysis, &a); err != nil {
			return nil, fmt.Errorf("decode analysis of case %s: %w", c.ID, err)
		}
		c.AnalysisResult = &a
	}
	return &c, nil
}

func encodeFiles(files []model.FileMeta) ([]byte, error) {
	if files == nil {
		files = []model.FileMeta{}
	}
	raw, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("encode files: %w", err)
	}
	return raw, nil
}

// encodeAnalysis returns nil for a missing analysis so the column stays NULL.
func encodeAnalysis(a *model.AnalysisResult) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	return raw, nil
}

// where accumulates AND-ed conditions with positional arguments; $1 is
// always the owning doctor.
type where struct {
	conds []string
	args  []any
}

func newWhere(doctorID uuid.UUID) *where {
	return &where{conds: []string{"doctor_id = $1"}, args: []any{doctorID}}
}

func (w *where) next() int { return len(w.args) + 1 }

func (w *where) add(format string, arg any) {
	w.conds = append(w.conds, fmt.Sprintf(format, w.next()))
	w.args = append(w.args, arg)
}

// anyMatches adds "(f1 ~* $n OR f2 ~* $n ...)" sharing one argument.
func (w *where) anyMatches(fields []query.Field, pattern string) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: pattern without fields", errs.ErrValidation)
	}
	n := w.next()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		expr, ok := fieldExpr[f]
		if !ok {
			return fmt.Errorf("%w: unknown field %d", errs.ErrValidation, f)
		}
		parts = append(parts, fmt.Sprintf("%s ~* $%d", expr, n))
	}
	w.conds = append(w.conds, "("+strings.Join(parts, " OR ")+")")
	w.args = append(w.args, pattern)
	return nil
}

func (w *where) sql() string { return strings.Join(w.conds, " AND ") }
