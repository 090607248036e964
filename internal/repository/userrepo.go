// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clinical-insight/internal/model"
)

// UserRepository provides access to registered doctors.
type UserRepository interface {
	// Create inserts a new user. Duplicate username or email map to
	// errs.ErrUsernameTaken / errs.ErrEmailTaken.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// UpdateLastLogin stamps a successful login.
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	// UpdateProfile overwrites the editable profile fields.
	UpdateProfile(ctx context.Context, id uuid.UUID, p model.Profile) error
}

// AuditRepository stores the append-only audit trail.
type AuditRepository interface {
	Append(ctx context.Context, e *model.AuditLogEntry) error
	// ListByUser returns the newest entries first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.AuditLogEntry, error)
}

// FeedbackRepository stores ratings of case analyses.
type FeedbackRepository interface {
	Create(ctx context.Context, f *model.Feedback) error
	Stats(ctx context.Context, doctorID uuid.UUID) (model.FeedbackStats, error)
}
