package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/limiter"
	"github.com/and161185/clinical-insight/internal/llm"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/query"
	"github.com/and161185/clinical-insight/internal/repository"
	"github.com/and161185/clinical-insight/internal/storage"
)

type fakeUsers struct {
	mu     sync.Mutex
	byName map[string]*model.User

	createErr    error
	getErr       error
	lastLoginErr error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.byName == nil {
		f.byName = map[string]*model.User{}
	}
	if _, exists := f.byName[u.Username]; exists {
		return errs.ErrUsernameTaken
	}
	for _, other := range f.byName {
		if other.Email == u.Email {
			return errs.ErrEmailTaken
		}
	}
	cpy := *u
	f.byName[u.Username] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byName {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastLoginErr != nil {
		return f.lastLoginErr
	}
	for _, u := range f.byName {
		if u.ID == id {
			u.LastLogin = &at
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uuid.UUID, p model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byName {
		if u.ID == id {
			u.Profile = p
			return nil
		}
	}
	return errs.ErrNotFound
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []model.AuditLogEntry
	err     error
}

var _ repository.AuditRepository = (*fakeAudit)(nil)

func (a *fakeAudit) Append(_ context.Context, e *model.AuditLogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, *e)
	return nil
}

func (a *fakeAudit) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]model.AuditLogEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.AuditLogEntry
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if a.entries[i].UserID == userID {
			out = append(out, a.entries[i])
		}
	}
	return out, nil
}

func (a *fakeAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

// fakeCases keeps cases in insertion order, which stands in for storage order.
type fakeCases struct {
	mu    sync.Mutex
	cases []*model.ClinicalCase

	findErr   error
	appendErr error
}

var _ repository.CaseRepository = (*fakeCases)(nil)

func (f *fakeCases) Create(_ context.Context, c *model.ClinicalCase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cpy := *c
	f.cases = append(f.cases, &cpy)
	return nil
}

func (f *fakeCases) find(doctorID, caseID uuid.UUID) *model.ClinicalCase {
	for _, c := range f.cases {
		if c.ID == caseID && c.DoctorID == doctorID {
			return c
		}
	}
	return nil
}

func (f *fakeCases) Get(_ context.Context, doctorID, caseID uuid.UUID) (*model.ClinicalCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.find(doctorID, caseID)
	if c == nil {
		return nil, errs.ErrNotFound
	}
	cpy := *c
	return &cpy, nil
}

func (f *fakeCases) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit int) ([]model.ClinicalCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ClinicalCase
	for _, c := range f.cases {
		if c.DoctorID == doctorID {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCases) AppendFiles(_ context.Context, doctorID, caseID uuid.UUID, files []model.FileMeta, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	c := f.find(doctorID, caseID)
	if c == nil {
		return errs.ErrNotFound
	}
	c.UploadedFiles = append(c.UploadedFiles, files...)
	c.UpdatedAt = at
	return nil
}

func (f *fakeCases) SetAnalysis(_ context.Context, doctorID, caseID uuid.UUID, a *model.AnalysisResult, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.find(doctorID, caseID)
	if c == nil {
		return errs.ErrNotFound
	}
	score := a.ConfidenceScore
	c.AnalysisResult = a
	c.ConfidenceScore = &score
	c.UpdatedAt = at
	return nil
}

func (f *fakeCases) Find(_ context.Context, flt query.Filter) ([]model.ClinicalCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []model.ClinicalCase
	for _, c := range f.cases {
		if flt.Limit > 0 && len(out) == flt.Limit {
			break
		}
		if flt.Matches(*c) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCases) Search(_ context.Context, doctorID uuid.UUID, sf model.SearchFilters, limit int) ([]model.ClinicalCase, error) {
	all, _ := f.ListByDoctor(context.Background(), doctorID, limit)
	var out []model.ClinicalCase
	for _, c := range all {
		if sf.SearchText != "" && !strings.Contains(strings.ToLower(c.PatientSummary), strings.ToLower(sf.SearchText)) {
			continue
		}
		if sf.HasFiles != nil && (len(c.UploadedFiles) > 0) != *sf.HasFiles {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

type fakeFeedback struct {
	items []model.Feedback
}

var _ repository.FeedbackRepository = (*fakeFeedback)(nil)

func (f *fakeFeedback) Create(_ context.Context, fb *model.Feedback) error {
	f.items = append(f.items, *fb)
	return nil
}

func (f *fakeFeedback) Stats(_ context.Context, doctorID uuid.UUID) (model.FeedbackStats, error) {
	var s model.FeedbackStats
	for _, fb := range f.items {
		if fb.DoctorID != doctorID {
			continue
		}
		s.Total++
		if fb.FeedbackType == model.FeedbackPositive {
			s.Positive++
		} else {
			s.Negative++
		}
	}
	return s, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
	failOn  string // Save of this name fails with saveErr
}

var _ storage.Store = (*fakeStore)(nil)

func (s *fakeStore) Save(_ context.Context, name, mime string, r io.Reader) (model.FileMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil && (s.failOn == "" || s.failOn == name) {
		return model.FileMeta{}, s.saveErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return model.FileMeta{}, err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	id := uuid.Must(uuid.NewV4()).String()
	path := "mem/" + id
	s.objects[path] = b
	return model.FileMeta{
		ID:           id,
		OriginalName: name,
		SavedName:    id,
		FilePath:     path,
		FileSize:     int64(len(b)),
		MimeType:     mime,
		UploadedAt:   time.Now().UTC(),
	}, nil
}

func (s *fakeStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[path]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *fakeStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; !ok {
		return errs.ErrNotFound
	}
	delete(s.objects, path)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type fakeAnalyzer struct {
	res     *model.AnalysisResult
	outcome llm.Outcome
	calls   int
	gotSum  string
	gotN    int
}

func (a *fakeAnalyzer) Analyze(_ context.Context, summary string, files []model.FileMeta) (*model.AnalysisResult, llm.Outcome) {
	a.calls++
	a.gotSum, a.gotN = summary, len(files)
	return a.res, a.outcome
}

var errBoom = errors.New("boom")

func newID() uuid.UUID { return uuid.Must(uuid.NewV4()) }
