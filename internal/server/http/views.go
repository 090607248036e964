package httpserver

import "github.com/and161185/clinical-insight/internal/model"

// userView is the public user record: never the hash or salt.
type userView struct {
	ID                  string  `json:"id"`
	Username            string  `json:"username"`
	Email               string  `json:"email"`
	FullName            string  `json:"full_name"`
	MedicalLicense      string  `json:"medical_license"`
	Specialization      string  `json:"specialization"`
	YearsOfExperience   *int    `json:"years_of_experience"`
	HospitalAffiliation string  `json:"hospital_affiliation"`
	PhoneNumber         string  `json:"phone_number"`
	Bio                 string  `json:"bio"`
	CreatedAt           string  `json:"created_at"`
	LastLogin           *string `json:"last_login"`
}

func newUserView(u *model.User) userView {
	v := userView{
		ID:                  u.ID.String(),
		Username:            u.Username,
		Email:               u.Email,
		FullName:            u.FullName,
		MedicalLicense:      u.MedicalLicense,
		Specialization:      u.Specialization,
		YearsOfExperience:   u.YearsOfExperience,
		HospitalAffiliation: u.HospitalAffiliation,
		PhoneNumber:         u.PhoneNumber,
		Bio:                 u.Bio,
		CreatedAt:           model.FormatTime(u.CreatedAt),
	}
	if u.LastLogin != nil {
		s := model.FormatTime(*u.LastLogin)
		v.LastLogin = &s
	}
	return v
}

type profileFields struct {
	FullName            string `json:"full_name"`
	MedicalLicense      string `json:"medical_license"`
	Specialization      string `json:"specialization"`
	YearsOfExperience   *int   `json:"years_of_experience"`
	HospitalAffiliation string `json:"hospital_affiliation"`
	PhoneNumber         string `json:"phone_number"`
	Bio                 string `json:"bio"`
}

func (p profileFields) profile() model.Profile {
	return model.Profile{
		FullName:            p.FullName,
		MedicalLicense:      p.MedicalLicense,
		Specialization:      p.Specialization,
		YearsOfExperience:   p.YearsOfExperience,
		HospitalAffiliation: p.HospitalAffiliation,
		PhoneNumber:         p.PhoneNumber,
		Bio:                 p.Bio,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	profileFields
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionToken string   `json:"session_token"`
	User         userView `json:"user"`
}

type verifyResponse struct {
	Valid bool     `json:"valid"`
	User  userView `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type profilePatchRequest struct {
	FullName            *string `json:"full_name"`
	MedicalLicense      *string `json:"medical_license"`
	Specialization      *string `json:"specialization"`
	YearsOfExperience   *int    `json:"years_of_experience"`
	HospitalAffiliation *string `json:"hospital_affiliation"`
	PhoneNumber         *string `json:"phone_number"`
	Bio                 *string `json:"bio"`
}

func (p profilePatchRequest) patch() model.ProfilePatch {
	return model.ProfilePatch(p)
}

type profileUpdateResponse struct {
	Message       string   `json:"message"`
	UpdatedFields []string `json:"updated_fields"`
}

type createCaseRequest struct {
	PatientSummary string `json:"patient_summary"`
	DoctorName     string `json:"doctor_name"`
	model.Patient
}

type uploadResponse struct {
	Message string           `json:"message"`
	Files   []model.FileView `json:"files"`
}

type searchRequest struct {
	DateFrom      string   `json:"date_from"`
	DateTo        string   `json:"date_to"`
	ConfidenceMin *float64 `json:"confidence_min"`
	HasFiles      *bool    `json:"has_files"`
	SearchText    string   `json:"search_text"`
}

type searchResponse struct {
	Cases []model.CaseView `json:"cases"`
	Total int              `json:"total"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type feedbackRequest struct {
	FeedbackType string `json:"feedback_type"`
	FeedbackText string `json:"feedback_text"`
}

type feedbackResponse struct {
	Message    string `json:"message"`
	FeedbackID string `json:"feedback_id"`
}

type feedbackStatsResponse struct {
	TotalFeedback    int     `json:"total_feedback"`
	PositiveFeedback int     `json:"positive_feedback"`
	NegativeFeedback int     `json:"negative_feedback"`
	SatisfactionRate float64 `json:"satisfaction_rate"`
}

type auditEntryView struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Action     string `json:"action"`
	ResourceID string `json:"resource_id,omitempty"`
	Details    string `json:"details,omitempty"`
	Timestamp  string `json:"timestamp"`
	IPAddress  string `json:"ip_address,omitempty"`
}

type auditLogsResponse struct {
	Logs []auditEntryView `json:"logs"`
}

func newAuditViews(entries []model.AuditLogEntry) []auditEntryView {
	out := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryView{
			ID:         e.ID.String(),
			UserID:     e.UserID.String(),
			Action:     e.Action,
			ResourceID: e.ResourceID,
			Details:    e.Details,
			Timestamp:  model.FormatTime(e.Timestamp),
			IPAddress:  e.IPAddress,
		})
	}
	return out
}

type fileLinkResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}
