// Package query classifies free-text case queries into structured filters.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clinical-insight/internal/model"
)

// Kind names the classified purpose of a query.
type Kind string

const (
	KindYesterday Kind = "temporal-yesterday"
	KindToday     Kind = "temporal-today"
	KindLab       Kind = "lab"
	KindPatientID Kind = "patient-id"
	KindGeneral   Kind = "general"
)

// MaxResults caps every query result set.
const MaxResults = 10

const labPattern = "lab|blood|cbc|test"

var (
	labMarkers = []string{"cbc", "blood", "lab", "test"}
	patientRe  = regexp.MustCompile(`patient\s*(\d+)`)
)

// Field is a searchable text location inside a stored case.
type Field int

const (
	FieldPatientSummary Field = iota + 1
	FieldInvestigationSuggestions
	FieldOverallAssessment
	FieldSOAPSubjective
	FieldSOAPAssessment
)

// Filter selects the cases an intent refers to. All conditions are ANDed;
// Pattern is matched case-insensitively against any of Fields.
type Filter struct {
	DoctorID     uuid.UUID
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Pattern      string
	Fields       []Field
	MatchNothing bool
	Limit        int
}

// Matches reports whether c satisfies f. Repositories without a query
// language of their own filter with it.
func (f Filter) Matches(c model.ClinicalCase) bool {
	if f.MatchNothing || c.DoctorID != f.DoctorID {
		return false
	}
	if f.CreatedFrom != nil && c.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && c.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.Pattern == "" {
		return true
	}
	re, err := regexp.Compile("(?i)" + f.Pattern)
	if err != nil {
		return false
	}
	for _, fld := range f.Fields {
		for _, v := range fieldValues(c, fld) {
			if re.MatchString(v) {
				return true
			}
		}
	}
	return false
}

func fieldValues(c model.ClinicalCase, f Field) []string {
	if f == FieldPatientSummary {
		return []string{c.PatientSummary}
	}
	a := c.AnalysisResult
	if a == nil {
		return nil
	}
	switch f {
	case FieldInvestigationSuggestions:
		return a.InvestigationSuggestions
	case FieldOverallAssessment:
		return []string{a.OverallAssessment}
	case FieldSOAPSubjective:
		return []string{a.SOAPNote.Subjective}
	case FieldSOAPAssessment:
		return []string{a.SOAPNote.Assessment}
	}
	return nil
}

// Intent is the resolved form of one query.
type Intent struct {
	Kind      Kind
	PatientID string
	Filter    Filter

	// label completes "Found N cases ..." for this intent.
	label string
}

// Prefix renders the response preamble for n matched cases.
func (i Intent) Prefix(n int) string {
	if i.label == "" {
		return ""
	}
	return fmt.Sprintf("Found %d %s", n, i.label)
}

type rule struct {
	kind  Kind
	match func(lower string) bool
	build func(raw, lower string, base Filter, now time.Time) Intent
}

// rules are evaluated in order, the first match wins. Categories overlap
// ("lab results from today"), so order is part of the behaviour.
var rules = []rule{
	{
		kind:  KindYesterday,
		match: func(q string) bool { return strings.Contains(q, "yesterday") },
		build: func(_, _ string, f Filter, now time.Time) Intent {
			today := startOfDay(now)
			from := today.AddDate(0, 0, -1)
			to := today.Add(-time.Nanosecond)
			f.CreatedFrom, f.CreatedTo = &from, &to
			return Intent{Kind: KindYesterday, Filter: f, label: "cases from yesterday"}
		},
	},
	{
		kind:  KindToday,
		match: func(q string) bool { return strings.Contains(q, "today") },
		build: func(_, _ string, f Filter, now time.Time) Intent {
			from := startOfDay(now)
			f.CreatedFrom = &from
			return Intent{Kind: KindToday, Filter: f, label: "cases from today"}
		},
	},
	{
		kind: KindLab,
		match: func(q string) bool {
			for _, m := range labMarkers {
				if strings.Contains(q, m) {
					return true
				}
			}
			return false
		},
		build: func(_, _ string, f Filter, _ time.Time) Intent {
			f.Pattern = labPattern
			f.Fields = []Field{FieldPatientSummary, FieldInvestigationSuggestions}
			return Intent{Kind: KindLab, Filter: f, label: "cases with lab/blood work"}
		},
	},
	{
		kind: KindPatientID,
		match: func(q string) bool {
			return strings.Contains(q, "patient") && strings.IndexFunc(q, unicode.IsDigit) >= 0
		},
		build: func(_, lower string, f Filter, _ time.Time) Intent {
			m := patientRe.FindStringSubmatch(lower)
			if m == nil {
				// digit present but not after "patient": nothing is searched
				f.MatchNothing = true
				return Intent{Kind: KindPatientID, Filter: f}
			}
			f.Pattern = m[1]
			f.Fields = []Field{FieldPatientSummary}
			return Intent{Kind: KindPatientID, PatientID: m[1], Filter: f, label: "cases for patient " + m[1]}
		},
	},
	{
		kind:  KindGeneral,
		match: func(string) bool { return true },
		build: func(raw, lower string, f Filter, _ time.Time) Intent {
			f.Pattern = regexp.QuoteMeta(lower)
			f.Fields = []Field{FieldPatientSummary, FieldOverallAssessment, FieldSOAPSubjective, FieldSOAPAssessment}
			return Intent{Kind: KindGeneral, Filter: f, label: "matching cases for: " + raw}
		},
	},
}

// Resolve classifies text on behalf of doctorID. now anchors the temporal
// rules and is converted to UTC.
func Resolve(text string, doctorID uuid.UUID, now time.Time) Intent {
	lower := strings.ToLower(text)
	base := Filter{DoctorID: doctorID, Limit: MaxResults}
	for _, r := range rules {
		if r.match(lower) {
			return r.build(text, lower, base, now.UTC())
		}
	}
	// unreachable: the general rule always matches
	return Intent{Kind: KindGeneral, Filter: Filter{DoctorID: doctorID, MatchNothing: true, Limit: MaxResults}}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
