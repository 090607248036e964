// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User represents a registered doctor. Credentials are never stored in plaintext.
type User struct {
	ID       uuid.UUID // PK
	Username string    // unique
	Email    string    // unique
	PwdHash  []byte    // Argon2id(password, SaltAuth)
	SaltAuth []byte    // per-user auth salt

	Profile

	CreatedAt time.Time
	LastLogin *time.Time
}

// Profile holds the editable, non-credential part of a user record.
type Profile struct {
	FullName            string
	MedicalLicense      string
	Specialization      string
	YearsOfExperience   *int
	HospitalAffiliation string
	PhoneNumber         string
	Bio                 string
}

// ProfilePatch is a partial profile update; nil fields are left untouched.
type ProfilePatch struct {
	FullName            *string
	MedicalLicense      *string
	Specialization      *string
	YearsOfExperience   *int
	HospitalAffiliation *string
	PhoneNumber         *string
	Bio                 *string
}

// Fields lists the JSON names of the fields set in the patch, in declaration order.
func (p ProfilePatch) Fields() []string {
	var out []string
	if p.FullName != nil {
		out = append(out, "full_name")
	}
	if p.MedicalLicense != nil {
		out = append(out, "medical_license")
	}
	if p.Specialization != nil {
		out = append(out, "specialization")
	}
	if p.YearsOfExperience != nil {
		out = append(out, "years_of_experience")
	}
	if p.HospitalAffiliation != nil {
		out = append(out, "hospital_affiliation")
	}
	if p.PhoneNumber != nil {
		out = append(out, "phone_number")
	}
	if p.Bio != nil {
		out = append(out, "bio")
	}
	return out
}

// Apply copies set fields of the patch onto the profile.
func (p ProfilePatch) Apply(dst *Profile) {
	if p.FullName != nil {
		dst.FullName = *p.FullName
	}
	if p.MedicalLicense != nil {
		dst.MedicalLicense = *p.MedicalLicense
	}
	if p.Specialization != nil {
		dst.Specialization = *p.Specialization
	}
	if p.YearsOfExperience != nil {
		v := *p.YearsOfExperience
		dst.YearsOfExperience = &v
	}
	if p.HospitalAffiliation != nil {
		dst.HospitalAffiliation = *p.HospitalAffiliation
	}
	if p.PhoneNumber != nil {
		dst.PhoneNumber = *p.PhoneNumber
	}
	if p.Bio != nil {
		dst.Bio = *p.Bio
	}
}

// Session is an in-store record behind an opaque bearer token.
type Session struct {
	Token     string    `json:"-"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"` // denormalized at login time
	CreatedAt time.Time `json:"created_at"`
}

// Audit actions.
const (
	ActionLogin          = "login"
	ActionLogout         = "logout"
	ActionRegister       = "register"
	ActionCaseCreated    = "case_created"
	ActionFilesUploaded  = "files_uploaded"
	ActionCaseAnalyzed   = "case_analyzed"
	ActionCaseExported   = "case_exported"
	ActionProfileUpdated = "profile_updated"
	ActionFeedbackGiven  = "feedback_submitted"
)

// AuditLogEntry is an append-only record of a user action.
type AuditLogEntry struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Action     string
	ResourceID string // optional
	Details    string // optional
	Timestamp  time.Time
	IPAddress  string // optional
}
