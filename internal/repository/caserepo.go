package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/query"
)

// CaseRepository provides access to clinical cases. Every read is scoped to
// the owning doctor; a case of another doctor behaves as absent.
type CaseRepository interface {
	// Create inserts a new case.
	Create(ctx context.Context, c *model.ClinicalCase) error

	// Get returns one case or errs.ErrNotFound.
	Get(ctx context.Context, doctorID, caseID uuid.UUID) (*model.ClinicalCase, error)

	// ListByDoctor returns the newest cases first.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit int) ([]model.ClinicalCase, error)

	// AppendFiles adds file metadata to the end of uploaded_files.
	AppendFiles(ctx context.Context, doctorID, caseID uuid.UUID, files []model.FileMeta, at time.Time) error

	// SetAnalysis stores the analysis and its confidence score.
	SetAnalysis(ctx context.Context, doctorID, caseID uuid.UUID, a *model.AnalysisResult, at time.Time) error

	// Find returns cases selected by a resolved query, in storage order.
	Find(ctx context.Context, f query.Filter) ([]model.ClinicalCase, error)

	// Search applies structured filters, newest first.
	Search(ctx context.Context, doctorID uuid.UUID, f model.SearchFilters, limit int) ([]model.ClinicalCase, error)
}
