package query

import (
	"strings"
	"time"

	"github.com/and161185/clinical-insight/internal/model"
)

// NoMatches is the reply for an empty result set.
const NoMatches = "No matching cases found for your query."

const (
	previewCases = 3
	previewRunes = 100
)

// Answer is the chat-style reply to a query.
type Answer struct {
	Response string           `json:"response"`
	Cases    []model.CaseView `json:"cases"`
	Analysis Analysis         `json:"query_analysis"`
}

// Analysis describes how the query was understood.
type Analysis struct {
	QueryType Kind   `json:"query_type"`
	PatientID string `json:"patient_id,omitempty"`
}

// BuildAnswer renders the reply for cases found under in.
func BuildAnswer(in Intent, cases []model.ClinicalCase) Answer {
	views := model.NewCaseViews(cases)
	ans := Answer{
		Cases:    views,
		Analysis: Analysis{QueryType: in.Kind, PatientID: in.PatientID},
	}
	if len(views) == 0 {
		ans.Response = NoMatches
		return ans
	}

	var b strings.Builder
	b.WriteString(in.Prefix(len(views)))
	b.WriteString(":\n")
	for i, v := range views {
		if i == previewCases {
			break
		}
		b.WriteString("- Case from ")
		b.WriteString(caseDate(v.CreatedAt))
		b.WriteString(": ")
		b.WriteString(truncateRunes(v.PatientSummary, previewRunes))
		b.WriteString("...\n")
	}
	ans.Response = b.String()
	return ans
}

func caseDate(iso string) string {
	if strings.HasSuffix(iso, "Z") {
		iso = strings.TrimSuffix(iso, "Z") + "+00:00"
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, iso); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	if len(iso) > 10 {
		return iso[:10]
	}
	return iso
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
