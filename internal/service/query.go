package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/clinical-insight/internal/metrics"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/query"
	"github.com/and161185/clinical-insight/internal/repository"
)

// QueryErrorPrefix starts the reply when a query could not be resolved.
const QueryErrorPrefix = "Error processing query: "

// QueryService answers free-text questions about a doctor's cases.
type QueryService interface {
	// Ask never fails: resolution errors become an explanatory reply.
	Ask(ctx context.Context, doctorID uuid.UUID, text string) query.Answer
}

type QueryServiceImpl struct {
	cases repository.CaseRepository
	log   *zap.Logger
	now   func() time.Time
}

var _ QueryService = (*QueryServiceImpl)(nil)

// NewQueryService constructs QueryService.
func NewQueryService(cases repository.CaseRepository, log *zap.Logger) *QueryServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &QueryServiceImpl{cases: cases, log: log, now: time.Now}
}

func (s *QueryServiceImpl) Ask(ctx context.Context, doctorID uuid.UUID, text string) query.Answer {
	in := query.Resolve(text, doctorID, s.now())
	metrics.QueriesTotal.WithLabelValues(string(in.Kind)).Inc()

	cases, err := s.cases.Find(ctx, in.Filter)
	if err != nil {
		metrics.QueryErrorsTotal.Inc()
		s.log.Error("query resolution failed",
			zap.String("doctor_id", doctorID.String()),
			zap.String("kind", string(in.Kind)),
			zap.Error(err),
		)
		return query.Answer{
			Response: QueryErrorPrefix + err.Error(),
			Cases:    []model.CaseView{},
			Analysis: query.Analysis{QueryType: in.Kind, PatientID: in.PatientID},
		}
	}
	if len(cases) > query.MaxResults {
		cases = cases[:query.MaxResults]
	}
	return query.BuildAnswer(in, cases)
}
