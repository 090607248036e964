package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/repository"
)

// Audit list bounds.
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 100
)

type ctxKey string

const clientIPKey ctxKey = "ci.clientIP"

// WithClientIP stores the caller's address for audit entries and login throttling.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the address stored by WithClientIP, or "".
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// AuditService writes and reads the per-user audit trail.
type AuditService interface {
	// Record appends an entry. Failures are logged, never returned.
	Record(ctx context.Context, userID uuid.UUID, action, resourceID, details string)
	// List returns the user's newest entries first.
	List(ctx context.Context, userID uuid.UUID, limit int) ([]model.AuditLogEntry, error)
}

type AuditServiceImpl struct {
	repo repository.AuditRepository
	log  *zap.Logger
	now  func() time.Time
}

var _ AuditService = (*AuditServiceImpl)(nil)

// NewAuditService constructs AuditService.
func NewAuditService(repo repository.AuditRepository, log *zap.Logger) *AuditServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditServiceImpl{repo: repo, log: log, now: time.Now}
}

func (s *AuditServiceImpl) Record(ctx context.Context, userID uuid.UUID, action, resourceID, details string) {
	id, err := uuid.NewV4()
	if err != nil {
		s.log.Warn("audit id", zap.Error(err))
		return
	}
	e := &model.AuditLogEntry{
		ID:         id,
		UserID:     userID,
		Action:     action,
		ResourceID: resourceID,
		Details:    details,
		Timestamp:  s.now().UTC(),
		IPAddress:  ClientIP(ctx),
	}
	if err := s.repo.Append(ctx, e); err != nil {
		s.log.Warn("audit append failed",
			zap.String("action", action),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

func (s *AuditServiceImpl) List(ctx context.Context, userID uuid.UUID, limit int) ([]model.AuditLogEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultAuditLimit
	case limit > MaxAuditLimit:
		limit = MaxAuditLimit
	}
	return s.repo.ListByUser(ctx, userID, limit)
}
