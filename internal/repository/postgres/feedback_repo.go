package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/repository"
)

// FeedbackRepo implements FeedbackRepository.
type FeedbackRepo struct{ db *DB }

var _ repository.FeedbackRepository = (*FeedbackRepo)(nil)

// NewFeedbackRepo constructs a feedback repository.
func NewFeedbackRepo(db *DB) *FeedbackRepo { return &FeedbackRepo{db: db} }

// Create inserts one rating.
func (r *FeedbackRepo) Create(ctx context.Context, f *model.Feedback) error {
	const q = `
INSERT INTO feedback (id, case_id, doctor_id, feedback_type, feedback_text, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, f.ID, f.CaseID, f.DoctorID, f.FeedbackType, f.FeedbackText, f.CreatedAt)
	return err
}

// Stats counts the doctor's ratings by type.
func (r *FeedbackRepo) Stats(ctx context.Context, doctorID uuid.UUID) (model.FeedbackStats, error) {
	const q = `
SELECT count(*),
       count(*) FILTER (WHERE feedback_type = 'positive'),
       count(*) FILTER (WHERE feedback_type = 'negative')
FROM feedback
WHERE doctor_id=$1`
	var s model.FeedbackStats
	if err := r.db.Pool.QueryRow(ctx, q, doctorID).Scan(&s.Total, &s.Positive, &s.Negative); err != nil {
		return model.FeedbackStats{}, err
	}
	return s, nil
}
