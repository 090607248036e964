package httpserver

import (
	"errors"
	"net/http"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/service"
)

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, detailInvalidJSON)
		return
	}
	u, err := s.auth.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Profile:  req.profile(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, detailInvalidJSON)
		return
	}
	tok, u, err := s.auth.LoginWithIP(r.Context(), req.Username, req.Password, remoteIP(r))
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			writeDetail(w, http.StatusUnauthorized, detailBadCredentials)
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{SessionToken: tok, User: newUserView(u)})
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.Verify(r.Context(), sessionToken(r))
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			writeDetail(w, http.StatusNotFound, detailUserNotFound)
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Valid: true, User: newUserView(u)})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), sessionToken(r)); err != nil {
		if errors.Is(err, errs.ErrInvalidSession) {
			writeDetail(w, http.StatusUnauthorized, detailLogoutSession)
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logout successful"})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	me, _ := UserFromCtx(r.Context())
	u, err := s.profile.Get(r.Context(), me.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	me, _ := UserFromCtx(r.Context())
	var req profilePatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, detailInvalidJSON)
		return
	}
	fields, err := s.profile.Update(r.Context(), me.ID, req.patch())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileUpdateResponse{Message: "Profile updated successfully", UpdatedFields: fields})
}
