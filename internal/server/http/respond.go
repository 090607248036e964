package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/clinical-insight/internal/errs"
)

// Error details with a fixed wire text.
const (
	detailInvalidSession = "Invalid or expired session"
	detailLogoutSession  = "Invalid session"
	detailBadCredentials = "Invalid username or password"
	detailUserNotFound   = "User not found"
	detailCaseNotFound   = "Case not found"
	detailFileNotFound   = "File not found"
	detailInternal       = "Internal server error"
	detailRateLimited    = "Too many failed login attempts, try again later"
	detailInvalidJSON    = "Invalid JSON body"
	detailInvalidLink    = "Invalid or expired link"
	detailUsernameTaken  = "Username already exists"
	detailEmailTaken     = "Email already exists"
	detailAlreadyExists  = "Already exists"
	detailInvalidCaseID  = "Invalid case id"
	detailUnauthorized   = "Not authenticated"
)

type detailBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailBody{Detail: detail})
}

// statusFor maps service errors to a status code and detail text.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrUsernameTaken):
		return http.StatusBadRequest, detailUsernameTaken
	case errors.Is(err, errs.ErrEmailTaken):
		return http.StatusBadRequest, detailEmailTaken
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusBadRequest, detailAlreadyExists
	case errors.Is(err, errs.ErrValidation):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, errs.ErrInvalidSession), errors.Is(err, errs.ErrUserNotFound):
		return http.StatusUnauthorized, detailInvalidSession
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, detailUnauthorized
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, detailRateLimited
	}
	return http.StatusInternalServerError, detailInternal
}

// fail writes err as a {"detail"} body. Unexpected errors are logged and
// reported without their text.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, detail := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeDetail(w, code, detail)
}

// failCase is fail with the case-specific not-found text.
func (s *Server) failCase(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errs.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, detailCaseNotFound)
		return
	}
	s.fail(w, r, err)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}
