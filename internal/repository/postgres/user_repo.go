package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/repository"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

var _ repository.UserRepository = (*UserRepo)(nil)

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, username, email, pwd_hash, salt_auth, full_name, medical_license,
specialization, years_of_experience, hospital_affiliation, phone_number, bio, created_at, last_login`

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, email, pwd_hash, salt_auth, full_name, medical_license,
  specialization, years_of_experience, hospital_affiliation, phone_number, bio, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.Pool.Exec(ctx, q,
		u.ID, u.Username, u.Email, u.PwdHash, u.SaltAuth,
		u.FullName, u.MedicalLicense, u.Specialization, u.YearsOfExperience,
		u.HospitalAffiliation, u.PhoneNumber, u.Bio, u.CreatedAt)
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case "users_username_key":
			return errs.ErrUsernameTaken
		case "users_email_key":
			return errs.ErrEmailTaken
		}
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	row := r.db.Pool.QueryRow(ctx, q, arg)
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PwdHash, &u.SaltAuth,
		&u.FullName, &u.MedicalLicense, &u.Specialization, &u.YearsOfExperience,
		&u.HospitalAffiliation, &u.PhoneNumber, &u.Bio, &u.CreatedAt, &u.LastLogin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpdateLastLogin sets last_login.
func (r *UserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE users SET last_login=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateProfile overwrites the editable profile columns.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, p model.Profile) error {
	const q = `
UPDATE users
SET full_name=$2, medical_license=$3, specialization=$4, years_of_experience=$5,
    hospital_affiliation=$6, phone_number=$7, bio=$8
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, p.FullName, p.MedicalLicense, p.Specialization,
		p.YearsOfExperience, p.HospitalAffiliation, p.PhoneNumber, p.Bio)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
