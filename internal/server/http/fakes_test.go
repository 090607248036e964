package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/query"
	"github.com/and161185/clinical-insight/internal/service"
	"github.com/and161185/clinical-insight/internal/storage"
)

const goodToken = "tok-1"

type fakeAuth struct {
	user      *model.User
	loginIP   string
	revoked   bool
	verifyErr error
}

func (f *fakeAuth) Register(_ context.Context, in service.RegisterInput) (*model.User, error) {
	if in.Username == "taken" {
		return nil, errs.ErrUsernameTaken
	}
	return &model.User{ID: f.user.ID, Username: in.Username, Email: in.Email, Profile: in.Profile, CreatedAt: f.user.CreatedAt}, nil
}

func (f *fakeAuth) LoginWithIP(_ context.Context, username, password, ip string) (string, *model.User, error) {
	f.loginIP = ip
	switch {
	case username == "locked":
		return "", nil, errs.ErrRateLimited
	case username != f.user.Username || password != "secret":
		return "", nil, errs.ErrUnauthorized
	}
	return goodToken, f.user, nil
}

func (f *fakeAuth) Verify(_ context.Context, token string) (*model.User, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if token != goodToken || f.revoked {
		return nil, errs.ErrInvalidSession
	}
	return f.user, nil
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	if token != goodToken || f.revoked {
		return errs.ErrInvalidSession
	}
	f.revoked = true
	return nil
}

type fakeProfile struct {
	user  *model.User
	patch model.ProfilePatch
}

func (f *fakeProfile) Get(context.Context, uuid.UUID) (*model.User, error) { return f.user, nil }

func (f *fakeProfile) Update(_ context.Context, _ uuid.UUID, p model.ProfilePatch) ([]string, error) {
	f.patch = p
	var fields []string
	if p.FullName != nil {
		fields = append(fields, "full_name")
	}
	if p.YearsOfExperience != nil {
		fields = append(fields, "years_of_experience")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no valid fields to update", errs.ErrValidation)
	}
	return fields, nil
}

type fakeCases struct {
	cases    map[uuid.UUID]*model.ClinicalCase
	uploaded []string
	search   model.SearchFilters
	content  map[string]string
}

func (f *fakeCases) get(doctorID, caseID uuid.UUID) (*model.ClinicalCase, error) {
	c, ok := f.cases[caseID]
	if !ok || c.DoctorID != doctorID {
		return nil, errs.ErrNotFound
	}
	return c, nil
}

func (f *fakeCases) Create(_ context.Context, doctor *model.User, in service.CaseInput) (*model.ClinicalCase, error) {
	if strings.TrimSpace(in.PatientSummary) == "" {
		return nil, fmt.Errorf("%w: patient_summary is required", errs.ErrValidation)
	}
	c := &model.ClinicalCase{
		ID:             uuid.Must(uuid.NewV4()),
		DoctorID:       doctor.ID,
		DoctorName:     in.DoctorName,
		PatientSummary: in.PatientSummary,
		Patient:        in.Patient,
	}
	f.cases[c.ID] = c
	return c, nil
}

func (f *fakeCases) List(_ context.Context, doctorID uuid.UUID) ([]model.ClinicalCase, error) {
	var out []model.ClinicalCase
	for _, c := range f.cases {
		if c.DoctorID == doctorID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCases) Get(_ context.Context, doctorID, caseID uuid.UUID) (*model.ClinicalCase, error) {
	return f.get(doctorID, caseID)
}

func (f *fakeCases) Upload(_ context.Context, doctorID, caseID uuid.UUID, files []service.Upload) ([]model.FileMeta, error) {
	if _, err := f.get(doctorID, caseID); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", errs.ErrValidation)
	}
	metas := make([]model.FileMeta, 0, len(files))
	for _, u := range files {
		b, _ := io.ReadAll(u.Body)
		f.uploaded = append(f.uploaded, u.Name+"="+string(b))
		metas = append(metas, model.FileMeta{ID: "f-" + u.Name, OriginalName: u.Name, MimeType: u.MimeType, FileSize: int64(len(b))})
	}
	return metas, nil
}

func (f *fakeCases) Analyze(_ context.Context, doctorID, caseID uuid.UUID) (*model.AnalysisResult, error) {
	if _, err := f.get(doctorID, caseID); err != nil {
		return nil, err
	}
	return &model.AnalysisResult{ConfidenceScore: 70, OverallAssessment: "ok"}, nil
}

func (f *fakeCases) Search(ctx context.Context, doctorID uuid.UUID, flt model.SearchFilters) ([]model.ClinicalCase, error) {
	f.search = flt
	return f.List(ctx, doctorID)
}

func (f *fakeCases) ExportPDF(_ context.Context, doctor *model.User, caseID uuid.UUID) ([]byte, string, error) {
	if _, err := f.get(doctor.ID, caseID); err != nil {
		return nil, "", err
	}
	return []byte("%PDF-1.3 fake"), "case_" + caseID.String() + ".pdf", nil
}

func (f *fakeCases) ExportXLSX(context.Context, uuid.UUID) ([]byte, error) {
	return []byte("PK fake"), nil
}

func (f *fakeCases) FileLink(_ context.Context, doctorID, caseID uuid.UUID, fileID string) (string, time.Time, error) {
	if _, err := f.get(doctorID, caseID); err != nil {
		return "", time.Time{}, err
	}
	if _, ok := f.content[fileID]; !ok {
		return "", time.Time{}, errs.ErrFileNotFound
	}
	return "link-" + fileID, time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC), nil
}

func (f *fakeCases) OpenFile(_ context.Context, fileID, token string) (io.ReadCloser, *storage.LinkClaims, error) {
	if token != "link-"+fileID {
		return nil, nil, errs.ErrUnauthorized
	}
	body, ok := f.content[fileID]
	if !ok {
		return nil, nil, errs.ErrFileNotFound
	}
	mt, ok := fakeFileTypes[fileID]
	if !ok {
		mt = "text/plain"
	}
	return io.NopCloser(strings.NewReader(body)), &storage.LinkClaims{Name: fileID + ".txt", MimeType: mt}, nil
}

var fakeFileTypes = map[string]string{"scan": "application/pdf", "xss": "image/svg+xml"}

type fakeQueries struct{ got string }

func (f *fakeQueries) Ask(_ context.Context, _ uuid.UUID, text string) query.Answer {
	f.got = text
	return query.Answer{Response: "No cases found.", Cases: []model.CaseView{}}
}

type fakeFeedback struct{}

func (fakeFeedback) Submit(_ context.Context, _, _ uuid.UUID, feedbackType, _ string) (*model.Feedback, error) {
	if feedbackType != model.FeedbackPositive && feedbackType != model.FeedbackNegative {
		return nil, fmt.Errorf("%w: feedback_type must be positive or negative", errs.ErrValidation)
	}
	return &model.Feedback{ID: uuid.Must(uuid.NewV4())}, nil
}

func (fakeFeedback) Stats(context.Context, uuid.UUID) (model.FeedbackStats, error) {
	return model.FeedbackStats{Total: 4, Positive: 3, Negative: 1}, nil
}

type fakeAudit struct{ limit int }

func (*fakeAudit) Record(context.Context, uuid.UUID, string, string, string) {}

func (f *fakeAudit) List(_ context.Context, userID uuid.UUID, limit int) ([]model.AuditLogEntry, error) {
	f.limit = limit
	return []model.AuditLogEntry{{ID: uuid.Must(uuid.NewV4()), UserID: userID, Action: model.ActionLogin, IPAddress: "10.0.0.1"}}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type harness struct {
	t       *testing.T
	srv     *httptest.Server
	doctor  *model.User
	auth    *fakeAuth
	profile *fakeProfile
	cases   *fakeCases
	queries *fakeQueries
	audit   *fakeAudit
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	doctor := &model.User{
		ID:        uuid.Must(uuid.NewV4()),
		Username:  "house",
		Email:     "house@ppth.org",
		Profile:   model.Profile{FullName: "Gregory House"},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	h := &harness{
		t:       t,
		doctor:  doctor,
		auth:    &fakeAuth{user: doctor},
		profile: &fakeProfile{user: doctor},
		cases: &fakeCases{
			cases:   map[uuid.UUID]*model.ClinicalCase{},
			content: map[string]string{"f1": "hello", "scan": "%PDF-1.4", "xss": "<svg onload=alert(1)/>"},
		},
		queries: &fakeQueries{},
		audit:   &fakeAudit{},
	}
	s := New(Services{
		Auth:     h.auth,
		Profile:  h.profile,
		Cases:    h.cases,
		Queries:  h.queries,
		Feedback: fakeFeedback{},
		Audit:    h.audit,
	}, Options{MaxUploadBytes: 1 << 10}, nil)
	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(h.srv.Close)
	return h
}

// addCase stores a case owned by owner and returns its id.
func (h *harness) addCase(owner uuid.UUID) uuid.UUID {
	c := &model.ClinicalCase{ID: uuid.Must(uuid.NewV4()), DoctorID: owner, PatientSummary: "cough",
		UploadedFiles: []model.FileMeta{{ID: "f1", OriginalName: "f1.txt"}}}
	h.cases.cases[c.ID] = c
	return c.ID
}

func (h *harness) do(method, path, token string, body any) *http.Response {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.srv.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	h.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func wantStatus(t *testing.T, resp *http.Response, code int) {
	t.Helper()
	if resp.StatusCode != code {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d; body=%s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, code, b)
	}
}

func wantDetail(t *testing.T, resp *http.Response, code int, detail string) {
	t.Helper()
	wantStatus(t, resp, code)
	got := decode[detailBody](t, resp)
	if got.Detail != detail {
		t.Fatalf("detail=%q, want %q", got.Detail, detail)
	}
}
