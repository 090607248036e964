package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/repository"
)

// AuditRepo implements AuditRepository. Rows are never updated or deleted.
type AuditRepo struct{ db *DB }

var _ repository.AuditRepository = (*AuditRepo)(nil)

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Append inserts one entry.
func (r *AuditRepo) Append(ctx context.Context, e *model.AuditLogEntry) error {
	const q = `
INSERT INTO audit_logs (id, user_id, action, resource_id, details, ip_address, ts)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, e.ID, e.UserID, e.Action, e.ResourceID, e.Details, e.IPAddress, e.Timestamp)
	return err
}

// ListByUser returns the user's entries, newest first.
func (r *AuditRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.AuditLogEntry, error) {
	const q = `
SELECT id, user_id, action, resource_id, details, ip_address, ts
FROM audit_logs
WHERE user_id=$1
ORDER BY ts DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceID, &e.Details, &e.IPAddress, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
