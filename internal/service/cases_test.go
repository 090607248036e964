package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/llm"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/storage"
)

type caseFixture struct {
	svc      *CaseServiceImpl
	cases    *fakeCases
	store    *fakeStore
	analyzer *fakeAnalyzer
	audit    *fakeAudit
	doctor   *model.User
}

func newCaseFixture(t *testing.T) *caseFixture {
	t.Helper()
	links, err := storage.NewLinks([]byte("link-key"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	f := &caseFixture{
		cases: &fakeCases{},
		store: &fakeStore{},
		analyzer: &fakeAnalyzer{
			res:     &model.AnalysisResult{ConfidenceScore: 72, OverallAssessment: "Likely CAP"},
			outcome: llm.OutcomeParsed,
		},
		audit:  &fakeAudit{},
		doctor: &model.User{ID: newID(), Username: "alice", Profile: model.Profile{FullName: "Dr. Alice"}},
	}
	log := zaptest.NewLogger(t)
	f.svc = NewCaseService(f.cases, f.store, links, f.analyzer, NewAuditService(f.audit, log), log)
	return f
}

func (f *caseFixture) create(t *testing.T, summary string) *model.ClinicalCase {
	t.Helper()
	c, err := f.svc.Create(context.Background(), f.doctor, CaseInput{PatientSummary: summary})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return c
}

func TestCases_Create(t *testing.T) {
	t.Parallel()
	f := newCaseFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.doctor, CaseInput{PatientSummary: "  "}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation for empty summary, got %v", err)
	}
	neg := -1
	if _, err := f.svc.Create(ctx, f.doctor, CaseInput{PatientSummary: "x", Patient: model.Patient{PatientAge: &neg}}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation for negative age, got %v", err)
	}

	age := 54
	c, err := f.svc.Create(ctx, f.doctor, CaseInput{
		PatientSummary: "54M cough",
		Patient:        model.Patient{PatientID: "P-1", PatientAge: &age},
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.DoctorID != f.doctor.ID || c.DoctorName != "Dr. Alice" || c.PatientID != "P-1" {
		t.Fatalf("bad case: %+v", c)
	}
	if c.UploadedFiles == nil || c.AnalysisResult != nil {
		t.Fatalf("new case must have empty files and no analysis: %+v", c)
	}

	c2, _ := f.svc.Create(ctx, f.doctor, CaseInput{PatientSummary: "y", DoctorName: "Dr. Locum"})
	if c2.DoctorName != "Dr. Locum" {
		t.Fatalf("explicit doctor name ignored: %q", c2.DoctorName)
	}
	if got := f.audit.actions(); len(got) != 2 || got[0] != model.ActionCaseCreated {
		t.Fatalf("audit = %v", got)
	}
}

func TestCases_OtherDoctorSeesNothing(t *testing.T) {
	t.Parallel()
	f := newCaseFixture(t)
	c := f.create(t, "private")
	other := newID()
	ctx := context.Background()

	if _, err := f.svc.Get(ctx, other, c.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Analyze(ctx, other, c.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	list, _ := f.svc.List(ctx, other)
	if len(list) != 0 {
		t.Fatalf("other doctor listed %d cases", len(list))
	}
}

func TestCases_Upload(t *testing.T) {
	t.Parallel()
	f := newCaseFixture(t)
	c := f.create(t, "s")
	ctx := context.Background()

	if _, err := f.svc.Upload(ctx, f.doctor.ID, c.ID, nil); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation for no files, got %v", err)
	}
	if _, err := f.svc.Upload(ctx, f.doctor.ID, newID(), []Upload{{Name: "a.txt", Body: strings.NewReader("a")}}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	metas, err := f.svc.Upload(ctx, f.doctor.ID, c.ID, []Upload{
		{Name: "cbc.pdf", MimeType: "application/pdf", Body: strings.NewReader("%PDF-1.4")},
		{Name: "xray.png", MimeType: "image/png", Body: bytes.NewReader([]byte{0x89, 'P', 'N', 'G'})},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 || metas[0].OriginalName != "cbc.pdf" {
		t.Fatalf("bad metas: %+v", metas)
	}
	got, _ := f.svc.Get(ctx, f.doctor.ID, c.ID)
	if len(got.UploadedFiles) != 2 {
		t.Fatalf("files not appended: %d", len(got.UploadedFiles))
	}

	f.store.saveErr = storage.ErrTooLarge
	_, err = f.svc.Upload(ctx, f.doctor.ID, c.ID, []Upload{{Name: "big.bin", Body: strings.NewReader("x")}})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want size error to be a validation error, got %v", err)
	}
}

func TestCases_UploadRemovesStoredFilesOnFailure(t *testing.T) {
	t.Parallel()
	f := newCaseFixture(t)
	c := f.create(t, "s")
	ctx := context.Background()

	f.store.saveErr, f.store.failOn = storage.ErrTooLarge, "big.bin"
	_, err := f.svc.Upload(ctx, f.doctor.ID, c.ID, []Upload{
		{Name: "a.txt", Body: strings.NewReader("a")},
		{Name: "big.bin", Body: strings.NewReader("b")},
	})
	if !errors.Is(err, storage.ErrTooLarge) {
		t.Fatalf("want ErrTooLarge, got %v", err)
	}
	if n := f.store.count(); n != 0 {
		t.Fatalf("files saved before the failure must be removed, %d left", n)
	}

	f.store.saveErr = nil
	f.cases.appendErr = errors.New("db down")
	_, err = f.svc.Upload(ctx, f.doctor.ID, c.ID, []Upload{
		{Name: "a.txt", Body: strings.NewReader("a")},
		{Name: "b.txt", Body: strings.NewReader("b")},
	})
	if err == nil {
		t.Fatal("want append error")
	}
	if n := f.store.count(); n != 0 {
		t.Fatalf("files not attached to the case must be removed, %d left", n)
	}
	got, _ := f.svc.Get(ctx, f.doctor.ID, c.ID)
	if len(got.UploadedFiles) != 0 {
		t.Fatalf("case must stay unchanged, files=%d", len(got.UploadedFiles))
	}
}

func TestCases_AnalyzeStoresResult(t *testing.T) {
	t.Parallel()
	f := newCaseFixture(t)
	c := f.create(t, "54M cough and fever")
	ctx := context.Background()
	_, _ = f.svc.Upload(ctx, f.doctor.ID, c.ID, []Upload{{Name: "a.txt", Body: strings.NewReader("a")}})

	res, err := f.svc.Analyze(ctx, f.doctor.ID, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.OverallAssessment != "Likely CAP" {
		t.Fatalf("bad result: %+v", res)
	}
	if f.analyzer.gotSum != "54M cough and fever" || f.analyzer.gotN != 1 {
		t.Fatalf("analyzer got %q with %d files", f.analyzer.gotSum, f.analyzer.gotN)
	}
	got, _ := f.svc.Get(ctx, f.doctor.ID, c.ID)
	if got.AnalysisResult == nil || got.ConfidenceScore == nil || *got.ConfidenceScore != 72 {
		t.Fatalf("analysis not stored: %+v", got)
	}
}

func TestCases_AnalyzeDegradedIsNotAnError(t *testing.T) {
	t.Parallel()
	f := newCaseFixture(t)
	c := f.create(t, "s")
	f.analyzer.res = &model.AnalysisResult{OverallAssessment: "Analysis failed due to technical error: quota"}
	f.analyzer.outcome = llm.OutcomeFailed

	res, err := f.svc.Analyze(context.Background(), f.doctor.ID, c.ID)
	if err != nil {
		t.Fatalf("degraded analysis must not fail: %v", err)
	}
	if res.ConfidenceScore != 0 {
		t.Fatalf("want zero confidence, got %v", res.ConfidenceScore)
	}
	last := f.audit.entries[len(f.audit.entries)-1]
	if last.Action != model.ActionCaseAnalyzed || last.Details != string(llm.OutcomeFailed) {
		t.Fatalf("bad audit entry: %+v", last)
	}
}

func TestCases_Search(t *testing.T) {
	t.Parallel()
	f := newCaseFixture(t)
	f.create(t, "chest pain")
	f.create(t, "headache")
	ctx := context.Background()

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, -1)
	if _, err := f.svc.Search(ctx, f.doctor.ID, model.SearchFilters{DateFrom: &from, DateTo: &to}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation for inverted range, got %v", err)
	}
	got, err := f.svc.Search(ctx, f.doctor.ID, model.SearchFilters{SearchText: "CHEST"})
	if err != nil || len(got) != 1 {
		t.Fatalf("search: %d %v", len(got), err)
	}
}

func TestCases_Exports(t *testing.T) {
	t.Parallel()
	f := newCaseFixture(t)
	c := f.create(t, "s")
	ctx := context.Background()

	pdf, name, err := f.svc.ExportPDF(ctx, f.doctor, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) || name != "case_"+c.ID.String()+".pdf" {
		t.Fatalf("bad pdf export %q", name)
	}
	if _, _, err := f.svc.ExportPDF(ctx, &model.User{ID: newID()}, c.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound for foreign case, got %v", err)
	}

	xlsx, err := f.svc.ExportXLSX(ctx, f.doctor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(xlsx, []byte("PK")) {
		t.Fatalf("xlsx is not a zip container")
	}
}

func TestCases_FileLinkRoundTrip(t *testing.T) {
	t.Parallel()
	f := newCaseFixture(t)
	c := f.create(t, "s")
	ctx := context.Background()
	metas, err := f.svc.Upload(ctx, f.doctor.ID, c.ID, []Upload{{Name: "note.txt", MimeType: "text/plain", Body: strings.NewReader("hello")}})
	if err != nil {
		t.Fatal(err)
	}
	fileID := metas[0].ID

	if _, _, err := f.svc.FileLink(ctx, f.doctor.ID, c.ID, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown file, got %v", err)
	}
	if _, _, err := f.svc.FileLink(ctx, newID(), c.ID, fileID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound for foreign case, got %v", err)
	}

	tok, exp, err := f.svc.FileLink(ctx, f.doctor.ID, c.ID, fileID)
	if err != nil || tok == "" || !exp.After(time.Now()) {
		t.Fatalf("FileLink: %q %v %v", tok, exp, err)
	}

	rc, claims, err := f.svc.OpenFile(ctx, fileID, tok)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "hello" || claims.Name != "note.txt" || claims.CaseID != c.ID.String() {
		t.Fatalf("bad file: %q %+v", body, claims)
	}

	if _, _, err := f.svc.OpenFile(ctx, uuid.Must(uuid.NewV4()).String(), tok); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for token of another file, got %v", err)
	}
}
