package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/and161185/clinical-insight/internal/crypto"
	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/model"
)

// UserGetter loads the live user record behind a session.
type UserGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Manager issues, verifies and revokes session tokens.
type Manager struct {
	store    Store
	users    UserGetter
	now      func() time.Time
	newToken func() (string, error)
}

// NewManager constructs a Manager over the given store.
func NewManager(store Store, users UserGetter) *Manager {
	return &Manager{store: store, users: users, now: time.Now, newToken: pkgcrypto.NewToken}
}

// Issue creates a new session for u and returns its token. Earlier sessions of
// the same user stay valid.
func (m *Manager) Issue(ctx context.Context, u *model.User) (string, error) {
	if u == nil || u.ID == uuid.Nil {
		return "", fmt.Errorf("%w: empty user", errs.ErrValidation)
	}
	tok, err := m.newToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	sess := model.Session{
		Token:     tok,
		UserID:    u.ID,
		Username:  u.Username,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return tok, nil
}

// Verify resolves token to the current user record.
// Returns errs.ErrInvalidSession for unknown tokens and errs.ErrUserNotFound
// when the owning user no longer exists.
func (m *Manager) Verify(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, errs.ErrInvalidSession
	}
	sess, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	u, err := m.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// Revoke removes token. Revoking an unknown or already revoked token returns
// errs.ErrInvalidSession.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return errs.ErrInvalidSession
	}
	return m.store.Delete(ctx, token)
}
