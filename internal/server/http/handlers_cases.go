package httpserver

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/service"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dateLayout      = "2006-01-02"
	uploadField     = "files"
)

// caseID parses the {id} path segment. A malformed id cannot name an
// existing case, so it is reported as not found.
func caseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(mux.Vars(r)["id"])
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailCaseNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) createCase(w http.ResponseWriter, r *http.Request) {
	me, _ := UserFromCtx(r.Context())
	var req createCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, detailInvalidJSON)
		return
	}
	c, err := s.cases.Create(r.Context(), me, service.CaseInput{
		PatientSummary: req.PatientSummary,
		DoctorName:     req.DoctorName,
		Patient:        req.Patient,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewCaseView(*c))
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	me, _ := UserFromCtx(r.Context())
	cs, err := s.cases.List(r.Context(), me.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewCaseViews(cs))
}

func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	me, _ := UserFromCtx(r.Context())
	c, err := s.cases.Get(r.Context(), me.ID, id)
	if err != nil {
		s.failCase(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewCaseView(*c))
}

func (s *Server) uploadFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	me, _ := UserFromCtx(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		writeDetail(w, http.StatusUnprocessableEntity, "Expected multipart form with files")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[uploadField]
	uploads := make([]service.Upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			s.fail(w, r, fmt.Errorf("open part %q: %w", h.Filename, err))
			return
		}
		defer f.Close()
		uploads = append(uploads, service.Upload{Name: h.Filename, MimeType: partType(h), Body: f})
	}

	metas, err := s.cases.Upload(r.Context(), me.ID, id, uploads)
	if err != nil {
		s.failCase(w, r, err)
		return
	}
	views := make([]model.FileView, 0, len(metas))
	for _, m := range metas {
		views = append(views, model.NewFileView(m))
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Message: fmt.Sprintf("Uploaded %d files successfully", len(metas)),
		Files:   views,
	})
}

func partType(h *multipart.FileHeader) string {
	if ct := h.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *Server) analyzeCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	me, _ := UserFromCtx(r.Context())
	res, err := s.cases.Analyze(r.Context(), me.ID, id)
	if err != nil {
		s.failCase(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) searchCases(w http.ResponseWriter, r *http.Request) {
	me, _ := UserFromCtx(r.Context())
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, detailInvalidJSON)
		return
	}
	f, err := req.filters()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cs, err := s.cases.Search(r.Context(), me.ID, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Cases: model.NewCaseViews(cs), Total: len(cs)})
}

// filters turns calendar dates into an inclusive UTC day range.
func (req searchRequest) filters() (model.SearchFilters, error) {
	f := model.SearchFilters{
		ConfidenceMin: req.ConfidenceMin,
		HasFiles:      req.HasFiles,
		SearchText:    req.SearchText,
	}
	if req.DateFrom != "" {
		d, err := time.Parse(dateLayout, req.DateFrom)
		if err != nil {
			return f, fmt.Errorf("%w: date_from must be YYYY-MM-DD", errs.ErrValidation)
		}
		f.DateFrom = &d
	}
	if req.DateTo != "" {
		d, err := time.Parse(dateLayout, req.DateTo)
		if err != nil {
			return f, fmt.Errorf("%w: date_to must be YYYY-MM-DD", errs.ErrValidation)
		}
		end := d.Add(24*time.Hour - time.Nanosecond)
		f.DateTo = &end
	}
	return f, nil
}

func (s *Server) exportPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	me, _ := UserFromCtx(r.Context())
	body, name, err := s.cases.ExportPDF(r.Context(), me, id)
	if err != nil {
		s.failCase(w, r, err)
		return
	}
	writeAttachment(w, contentTypePDF, name, body)
}

func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request) {
	me, _ := UserFromCtx(r.Context())
	body, err := s.cases.ExportXLSX(r.Context(), me.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, contentTypeXLSX, "cases.xlsx", body)
}

func writeAttachment(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) submitFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	me, _ := UserFromCtx(r.Context())
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, detailInvalidJSON)
		return
	}
	fb, err := s.feedback.Submit(r.Context(), me.ID, id, req.FeedbackType, req.FeedbackText)
	if err != nil {
		s.failCase(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Message: "Feedback submitted successfully", FeedbackID: fb.ID.String()})
}

func (s *Server) fileLink(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	me, _ := UserFromCtx(r.Context())
	fileID := mux.Vars(r)["file_id"]
	token, exp, err := s.cases.FileLink(r.Context(), me.ID, id, fileID)
	if err != nil {
		if errors.Is(err, errs.ErrFileNotFound) {
			writeDetail(w, http.StatusNotFound, detailFileNotFound)
			return
		}
		s.failCase(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileLinkResponse{
		URL:       "/api/files/" + url.PathEscape(fileID) + "?token=" + url.QueryEscape(token),
		ExpiresAt: model.FormatTime(exp),
	})
}

// inlineTypes may be rendered by the browser. The stored type is whatever the
// uploader declared, so anything else is sent as an attachment.
var inlineTypes = map[string]bool{
	contentTypePDF: true,
	"image/png":    true,
	"image/jpeg":   true,
	"image/gif":    true,
	"image/webp":   true,
}

func inlineSafe(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && inlineTypes[mt]
}

// downloadFile serves a file named by a signed link. The link is the only
// credential.
func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["file_id"]
	rc, claims, err := s.cases.OpenFile(r.Context(), fileID, r.URL.Query().Get("token"))
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrUnauthorized):
			writeDetail(w, http.StatusUnauthorized, detailInvalidLink)
		case errors.Is(err, errs.ErrNotFound):
			writeDetail(w, http.StatusNotFound, detailFileNotFound)
		default:
			s.fail(w, r, err)
		}
		return
	}
	defer rc.Close()

	disposition := "attachment"
	if inlineSafe(claims.MimeType) {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", claims.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, claims.Name))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn("file download interrupted", zap.String("file_id", fileID), zap.Error(err))
	}
}
