// Package session maps opaque bearer tokens to authenticated users.
package session

import (
	"context"

	"github.com/and161185/clinical-insight/internal/model"
)

// Store persists session records keyed by token.
type Store interface {
	// Put stores s under s.Token, replacing any previous record.
	Put(ctx context.Context, s model.Session) error
	// Get returns the record for token or errs.ErrInvalidSession.
	Get(ctx context.Context, token string) (model.Session, error)
	// Delete removes the record for token; an absent token yields errs.ErrInvalidSession.
	Delete(ctx context.Context, token string) error
}
