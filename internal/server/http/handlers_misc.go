package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/and161185/clinical-insight/internal/errs"
)

// query answers 200 for any signed-in doctor; resolution errors are part of
// the reply. Without a valid session RequireSession answers 401 first.
func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	me, _ := UserFromCtx(r.Context())
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, detailInvalidJSON)
		return
	}
	writeJSON(w, http.StatusOK, s.queries.Ask(r.Context(), me.ID, req.Query))
}

func (s *Server) feedbackStats(w http.ResponseWriter, r *http.Request) {
	me, _ := UserFromCtx(r.Context())
	st, err := s.feedback.Stats(r.Context(), me.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedbackStatsResponse{
		TotalFeedback:    st.Total,
		PositiveFeedback: st.Positive,
		NegativeFeedback: st.Negative,
		SatisfactionRate: st.SatisfactionRate(),
	})
}

func (s *Server) auditLogs(w http.ResponseWriter, r *http.Request) {
	me, _ := UserFromCtx(r.Context())
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: limit must be an integer", errs.ErrValidation))
			return
		}
		limit = n
	}
	entries, err := s.audit.List(r.Context(), me.ID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auditLogsResponse{Logs: newAuditViews(entries)})
}
