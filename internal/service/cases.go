package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/export"
	"github.com/and161185/clinical-insight/internal/llm"
	"github.com/and161185/clinical-insight/internal/metrics"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/repository"
	"github.com/and161185/clinical-insight/internal/storage"
)

// Case list bounds.
const (
	MaxListedCases   = 100
	MaxExportedCases = 1000
)

// CaseInput is a new clinical case.
type CaseInput struct {
	PatientSummary string
	DoctorName     string // defaults to the doctor's full name
	model.Patient
}

// Upload is one file received for a case.
type Upload struct {
	Name     string
	MimeType string
	Body     io.Reader
}

// Analyzer produces the clinical analysis of a case.
type Analyzer interface {
	Analyze(ctx context.Context, summary string, files []model.FileMeta) (*model.AnalysisResult, llm.Outcome)
}

var _ Analyzer = (*llm.Analyzer)(nil)

// LinkSigner issues and checks signed file download links.
type LinkSigner interface {
	Sign(caseID string, f model.FileMeta) (string, time.Time, error)
	Verify(token, fileID string) (*storage.LinkClaims, error)
}

var _ LinkSigner = (*storage.Links)(nil)

// CaseService manages a doctor's clinical cases. A case owned by another
// doctor is reported as errs.ErrNotFound.
type CaseService interface {
	Create(ctx context.Context, doctor *model.User, in CaseInput) (*model.ClinicalCase, error)
	List(ctx context.Context, doctorID uuid.UUID) ([]model.ClinicalCase, error)
	Get(ctx context.Context, doctorID, caseID uuid.UUID) (*model.ClinicalCase, error)
	Upload(ctx context.Context, doctorID, caseID uuid.UUID, files []Upload) ([]model.FileMeta, error)
	Analyze(ctx context.Context, doctorID, caseID uuid.UUID) (*model.AnalysisResult, error)
	Search(ctx context.Context, doctorID uuid.UUID, f model.SearchFilters) ([]model.ClinicalCase, error)
	// ExportPDF renders one case and returns the report with a suggested file name.
	ExportPDF(ctx context.Context, doctor *model.User, caseID uuid.UUID) ([]byte, string, error)
	ExportXLSX(ctx context.Context, doctorID uuid.UUID) ([]byte, error)
	// FileLink signs a short-lived download token for one attached file.
	FileLink(ctx context.Context, doctorID, caseID uuid.UUID, fileID string) (string, time.Time, error)
	// OpenFile checks a download token and opens the file it names.
	OpenFile(ctx context.Context, fileID, token string) (io.ReadCloser, *storage.LinkClaims, error)
}

type CaseServiceImpl struct {
	cases    repository.CaseRepository
	files    storage.Store
	links    LinkSigner
	analyzer Analyzer
	audit    AuditService
	log      *zap.Logger
	now      func() time.Time
}

var _ CaseService = (*CaseServiceImpl)(nil)

// NewCaseService constructs CaseService.
func NewCaseService(
	cases repository.CaseRepository,
	files storage.Store,
	links LinkSigner,
	analyzer Analyzer,
	audit AuditService,
	log *zap.Logger,
) *CaseServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &CaseServiceImpl{
		cases:    cases,
		files:    files,
		links:    links,
		analyzer: analyzer,
		audit:    audit,
		log:      log,
		now:      time.Now,
	}
}

func (s *CaseServiceImpl) Create(ctx context.Context, doctor *model.User, in CaseInput) (*model.ClinicalCase, error) {
	if doctor == nil {
		return nil, errs.ErrUnauthorized
	}
	if strings.TrimSpace(in.PatientSummary) == "" {
		return nil, fmt.Errorf("%w: patient_summary is required", errs.ErrValidation)
	}
	if in.PatientAge != nil && *in.PatientAge < 0 {
		return nil, fmt.Errorf("%w: patient_age must not be negative", errs.ErrValidation)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	name := in.DoctorName
	if name == "" {
		name = doctor.FullName
	}
	now := s.now().UTC()
	c := &model.ClinicalCase{
		ID:             id,
		DoctorID:       doctor.ID,
		DoctorName:     name,
		PatientSummary: in.PatientSummary,
		Patient:        in.Patient,
		UploadedFiles:  []model.FileMeta{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, doctor.ID, model.ActionCaseCreated, id.String(), "")
	return c, nil
}

func (s *CaseServiceImpl) List(ctx context.Context, doctorID uuid.UUID) ([]model.ClinicalCase, error) {
	return s.cases.ListByDoctor(ctx, doctorID, MaxListedCases)
}

func (s *CaseServiceImpl) Get(ctx context.Context, doctorID, caseID uuid.UUID) (*model.ClinicalCase, error) {
	return s.cases.Get(ctx, doctorID, caseID)
}

// Upload stores every file, then appends their metadata in one update.
// Either all files are attached or the ones already stored are removed again.
func (s *CaseServiceImpl) Upload(ctx context.Context, doctorID, caseID uuid.UUID, files []Upload) ([]model.FileMeta, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", errs.ErrValidation)
	}
	if _, err := s.cases.Get(ctx, doctorID, caseID); err != nil {
		return nil, err
	}

	metas := make([]model.FileMeta, 0, len(files))
	for _, f := range files {
		m, err := s.files.Save(ctx, f.Name, f.MimeType, f.Body)
		if err != nil {
			s.discard(ctx, metas)
			return nil, fmt.Errorf("save %q: %w", f.Name, err)
		}
		metas = append(metas, m)
	}
	if err := s.cases.AppendFiles(ctx, doctorID, caseID, metas, s.now().UTC()); err != nil {
		s.discard(ctx, metas)
		return nil, err
	}
	s.audit.Record(ctx, doctorID, model.ActionFilesUploaded, caseID.String(), fmt.Sprintf("%d files", len(metas)))
	return metas, nil
}

// discard removes stored files that no case points to. Failures are logged only.
func (s *CaseServiceImpl) discard(ctx context.Context, metas []model.FileMeta) {
	ctx = context.WithoutCancel(ctx)
	for _, m := range metas {
		if err := s.files.Delete(ctx, m.FilePath); err != nil {
			s.log.Warn("remove orphaned file", zap.String("path", m.FilePath), zap.Error(err))
		}
	}
}

// Analyze runs the model and stores the result. Model failures are not
// errors: they are stored as a degraded analysis.
func (s *CaseServiceImpl) Analyze(ctx context.Context, doctorID, caseID uuid.UUID) (*model.AnalysisResult, error) {
	c, err := s.cases.Get(ctx, doctorID, caseID)
	if err != nil {
		return nil, err
	}
	res, outcome := s.analyzer.Analyze(ctx, c.PatientSummary, c.UploadedFiles)
	metrics.AnalysesTotal.WithLabelValues(string(outcome)).Inc()
	if outcome != llm.OutcomeParsed {
		s.log.Warn("degraded analysis", zap.String("case_id", caseID.String()), zap.String("outcome", string(outcome)))
	}
	if err := s.cases.SetAnalysis(ctx, doctorID, caseID, res, s.now().UTC()); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, doctorID, model.ActionCaseAnalyzed, caseID.String(), string(outcome))
	return res, nil
}

func (s *CaseServiceImpl) Search(ctx context.Context, doctorID uuid.UUID, f model.SearchFilters) ([]model.ClinicalCase, error) {
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return nil, fmt.Errorf("%w: date_to is before date_from", errs.ErrValidation)
	}
	return s.cases.Search(ctx, doctorID, f, MaxListedCases)
}

func (s *CaseServiceImpl) ExportPDF(ctx context.Context, doctor *model.User, caseID uuid.UUID) ([]byte, string, error) {
	if doctor == nil {
		return nil, "", errs.ErrUnauthorized
	}
	c, err := s.cases.Get(ctx, doctor.ID, caseID)
	if err != nil {
		return nil, "", err
	}
	name := c.DoctorName
	if name == "" {
		name = doctor.FullName
	}
	var buf bytes.Buffer
	if err := export.CasePDF(&buf, *c, name); err != nil {
		return nil, "", err
	}
	s.audit.Record(ctx, doctor.ID, model.ActionCaseExported, caseID.String(), "pdf")
	return buf.Bytes(), fmt.Sprintf("case_%s.pdf", caseID), nil
}

func (s *CaseServiceImpl) ExportXLSX(ctx context.Context, doctorID uuid.UUID) ([]byte, error) {
	cases, err := s.cases.ListByDoctor(ctx, doctorID, MaxExportedCases)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := export.CasesXLSX(&buf, cases); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, doctorID, model.ActionCaseExported, "", "xlsx")
	return buf.Bytes(), nil
}

func (s *CaseServiceImpl) FileLink(ctx context.Context, doctorID, caseID uuid.UUID, fileID string) (string, time.Time, error) {
	c, err := s.cases.Get(ctx, doctorID, caseID)
	if err != nil {
		return "", time.Time{}, err
	}
	for _, f := range c.UploadedFiles {
		if f.ID == fileID {
			return s.links.Sign(caseID.String(), f)
		}
	}
	return "", time.Time{}, fmt.Errorf("%s: %w", fileID, errs.ErrFileNotFound)
}

func (s *CaseServiceImpl) OpenFile(ctx context.Context, fileID, token string) (io.ReadCloser, *storage.LinkClaims, error) {
	claims, err := s.links.Verify(token, fileID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.files.Open(ctx, claims.Path)
	if err != nil {
		return nil, nil, err
	}
	return rc, claims, nil
}
