package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/repository"
)

// ProfileService reads and edits a doctor's profile.
type ProfileService interface {
	Get(ctx context.Context, userID uuid.UUID) (*model.User, error)
	// Update applies the set fields of patch and returns their names.
	Update(ctx context.Context, userID uuid.UUID, patch model.ProfilePatch) ([]string, error)
}

type ProfileServiceImpl struct {
	users repository.UserRepository
	audit AuditService
}

var _ ProfileService = (*ProfileServiceImpl)(nil)

// NewProfileService constructs ProfileService.
func NewProfileService(users repository.UserRepository, audit AuditService) *ProfileServiceImpl {
	return &ProfileServiceImpl{users: users, audit: audit}
}

func (s *ProfileServiceImpl) Get(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *ProfileServiceImpl) Update(ctx context.Context, userID uuid.UUID, patch model.ProfilePatch) ([]string, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no valid fields to update", errs.ErrValidation)
	}
	if y := patch.YearsOfExperience; y != nil && *y < 0 {
		return nil, fmt.Errorf("%w: years_of_experience must not be negative", errs.ErrValidation)
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := u.Profile
	patch.Apply(&p)
	if err := s.users.UpdateProfile(ctx, userID, p); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, userID, model.ActionProfileUpdated, userID.String(), strings.Join(fields, ","))
	return fields, nil
}
