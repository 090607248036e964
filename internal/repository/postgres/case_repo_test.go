package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/query"
)

var caseCols = []string{
	"id", "doctor_id", "doctor_name", "patient_summary", "patient", "uploaded_files",
	"analysis_result", "confidence_score", "created_at", "updated_at",
}

func caseRow(rows *pgxmock.Rows, c model.ClinicalCase) *pgxmock.Rows {
	patient, _ := json.Marshal(c.Patient)
	files, _ := json.Marshal(c.UploadedFiles)
	var analysis []byte
	if c.AnalysisResult != nil {
		analysis, _ = json.Marshal(c.AnalysisResult)
	}
	return rows.AddRow(c.ID, c.DoctorID, c.DoctorName, c.PatientSummary, patient, files,
		analysis, c.ConfidenceScore, c.CreatedAt, c.UpdatedAt)
}

func sampleCase(doctor uuid.UUID) model.ClinicalCase {
	age := 54
	ts := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	return model.ClinicalCase{
		ID:             uuid.Must(uuid.NewV4()),
		DoctorID:       doctor,
		PatientSummary: "54M with chest pain, CBC pending",
		Patient:        model.Patient{PatientID: "P-1", PatientAge: &age},
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
}

func TestCaseRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	r := NewCaseRepo(db)
	c := sampleCase(uuid.Must(uuid.NewV4()))

	mock.ExpectExec(`INSERT INTO clinical_cases`).
		WithArgs(c.ID, c.DoctorID, c.DoctorName, c.PatientSummary,
			pgxmock.AnyArg(), []byte("[]"), pgxmock.AnyArg(), c.ConfidenceScore, c.CreatedAt, c.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(context.Background(), &c))
}

func TestCaseRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	r := NewCaseRepo(db)
	ctx := context.Background()
	doc := uuid.Must(uuid.NewV4())
	c := sampleCase(doc)
	score := 80.0
	c.ConfidenceScore = &score
	c.AnalysisResult = &model.AnalysisResult{OverallAssessment: "stable", ConfidenceScore: 80}
	c.UploadedFiles = []model.FileMeta{{ID: "f1", OriginalName: "ecg.png", UploadedAt: c.CreatedAt}}

	mock.ExpectQuery(`FROM clinical_cases WHERE id=\$1 AND doctor_id=\$2`).
		WithArgs(c.ID, doc).
		WillReturnRows(caseRow(pgxmock.NewRows(caseCols), c))
	got, err := r.Get(ctx, doc, c.ID)
	require.NoError(t, err)
	require.Equal(t, "P-1", got.PatientID)
	require.Equal(t, 54, *got.PatientAge)
	require.Len(t, got.UploadedFiles, 1)
	require.Equal(t, "ecg.png", got.UploadedFiles[0].OriginalName)
	require.NotNil(t, got.AnalysisResult)
	require.Equal(t, "stable", got.AnalysisResult.OverallAssessment)
	require.Equal(t, 80.0, *got.ConfidenceScore)

	mock.ExpectQuery(`FROM clinical_cases WHERE id=\$1 AND doctor_id=\$2`).
		WithArgs(c.ID, doc).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, doc, c.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCaseRepo_ListByDoctor(t *testing.T) {
	db, mock := newDB(t)
	r := NewCaseRepo(db)
	doc := uuid.Must(uuid.NewV4())
	a, b := sampleCase(doc), sampleCase(doc)

	rows := pgxmock.NewRows(caseCols)
	caseRow(rows, a)
	caseRow(rows, b)
	mock.ExpectQuery(`WHERE doctor_id=\$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(doc, 100).
		WillReturnRows(rows)

	got, err := r.ListByDoctor(context.Background(), doc, 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Nil(t, got[0].AnalysisResult)
}

func TestCaseRepo_AppendFiles(t *testing.T) {
	db, mock := newDB(t)
	r := NewCaseRepo(db)
	doc, id := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	at := time.Now().UTC()
	files := []model.FileMeta{{ID: "f1", OriginalName: "x.pdf", UploadedAt: at}}
	raw, err := json.Marshal(files)
	require.NoError(t, err)

	mock.ExpectExec(`SET uploaded_files = uploaded_files \|\| \$3::jsonb`).
		WithArgs(id, doc, raw, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.AppendFiles(context.Background(), doc, id, files, at))

	mock.ExpectExec(`SET uploaded_files`).
		WithArgs(id, doc, raw, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.AppendFiles(context.Background(), doc, id, files, at), errs.ErrNotFound)
}

func TestCaseRepo_SetAnalysis(t *testing.T) {
	db, mock := newDB(t)
	r := NewCaseRepo(db)
	doc, id := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	at := time.Now().UTC()
	a := &model.AnalysisResult{ConfidenceScore: 72.5}
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	score := 72.5

	mock.ExpectExec(`SET analysis_result=\$3, confidence_score=\$4`).
		WithArgs(id, doc, raw, &score, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetAnalysis(context.Background(), doc, id, a, at))
}

func TestCaseRepo_Find_Yesterday(t *testing.T) {
	db, mock := newDB(t)
	r := NewCaseRepo(db)
	doc := uuid.Must(uuid.NewV4())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	in := query.Resolve("cases from yesterday", doc, now)

	c := sampleCase(doc)
	mock.ExpectQuery(`WHERE doctor_id = \$1 AND created_at >= \$2 AND created_at <= \$3 LIMIT \$4$`).
		WithArgs(doc, *in.Filter.CreatedFrom, *in.Filter.CreatedTo, query.MaxResults).
		WillReturnRows(caseRow(pgxmock.NewRows(caseCols), c))

	got, err := r.Find(context.Background(), in.Filter)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestCaseRepo_Find_LabPattern(t *testing.T) {
	db, mock := newDB(t)
	r := NewCaseRepo(db)
	doc := uuid.Must(uuid.NewV4())
	in := query.Resolve("lab test", doc, time.Now())

	mock.ExpectQuery(`WHERE doctor_id = \$1 AND \(patient_summary ~\* \$2 OR \(analysis_result->>'investigation_suggestions'\) ~\* \$2\) LIMIT \$3`).
		WithArgs(doc, "lab|blood|cbc|test", query.MaxResults).
		WillReturnRows(pgxmock.NewRows(caseCols))

	got, err := r.Find(context.Background(), in.Filter)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCaseRepo_Find_GeneralEscapesPattern(t *testing.T) {
	db, mock := newDB(t)
	r := NewCaseRepo(db)
	doc := uuid.Must(uuid.NewV4())
	in := query.Resolve("pain (severe)", doc, time.Now())

	mock.ExpectQuery(`soap_note'->>'assessment'\) ~\* \$2\) LIMIT \$3`).
		WithArgs(doc, `pain \(severe\)`, query.MaxResults).
		WillReturnRows(pgxmock.NewRows(caseCols))

	_, err := r.Find(context.Background(), in.Filter)
	require.NoError(t, err)
}

func TestCaseRepo_Find_MatchNothingSkipsQuery(t *testing.T) {
	db, _ := newDB(t)
	r := NewCaseRepo(db)
	in := query.Resolve("patient in bed 4", uuid.Must(uuid.NewV4()), time.Now())

	got, err := r.Find(context.Background(), in.Filter)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCaseRepo_Search(t *testing.T) {
	db, mock := newDB(t)
	r := NewCaseRepo(db)
	doc := uuid.Must(uuid.NewV4())
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	minScore := 60.0
	hasFiles := true

	mock.ExpectQuery(`WHERE doctor_id = \$1 AND created_at >= \$2 AND confidence_score >= \$3 AND jsonb_array_length\(uploaded_files\) > 0 AND \(patient_summary ~\* \$4 .*\) ORDER BY created_at DESC LIMIT \$5`).
		WithArgs(doc, from, minScore, "chest pain", 50).
		WillReturnRows(pgxmock.NewRows(caseCols))

	_, err := r.Search(context.Background(), doc, model.SearchFilters{
		DateFrom:      &from,
		ConfidenceMin: &minScore,
		HasFiles:      &hasFiles,
		SearchText:    " chest pain ",
	}, 50)
	require.NoError(t, err)
}
