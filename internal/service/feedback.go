package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/repository"
)

// FeedbackService records doctors' ratings of case analyses.
type FeedbackService interface {
	Submit(ctx context.Context, doctorID, caseID uuid.UUID, feedbackType, text string) (*model.Feedback, error)
	Stats(ctx context.Context, doctorID uuid.UUID) (model.FeedbackStats, error)
}

type FeedbackServiceImpl struct {
	feedback repository.FeedbackRepository
	cases    repository.CaseRepository
	audit    AuditService
	now      func() time.Time
}

var _ FeedbackService = (*FeedbackServiceImpl)(nil)

// NewFeedbackService constructs FeedbackService.
func NewFeedbackService(feedback repository.FeedbackRepository, cases repository.CaseRepository, audit AuditService) *FeedbackServiceImpl {
	return &FeedbackServiceImpl{feedback: feedback, cases: cases, audit: audit, now: time.Now}
}

// Submit stores feedback for one of the doctor's own cases.
func (s *FeedbackServiceImpl) Submit(ctx context.Context, doctorID, caseID uuid.UUID, feedbackType, text string) (*model.Feedback, error) {
	if feedbackType != model.FeedbackPositive && feedbackType != model.FeedbackNegative {
		return nil, fmt.Errorf("%w: feedback_type must be %q or %q", errs.ErrValidation, model.FeedbackPositive, model.FeedbackNegative)
	}
	if _, err := s.cases.Get(ctx, doctorID, caseID); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	f := &model.Feedback{
		ID:           id,
		CaseID:       caseID,
		DoctorID:     doctorID,
		FeedbackType: feedbackType,
		FeedbackText: text,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.feedback.Create(ctx, f); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, doctorID, model.ActionFeedbackGiven, caseID.String(), feedbackType)
	return f, nil
}

func (s *FeedbackServiceImpl) Stats(ctx context.Context, doctorID uuid.UUID) (model.FeedbackStats, error) {
	return s.feedback.Stats(ctx, doctorID)
}
