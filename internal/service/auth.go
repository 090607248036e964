// Package service contains application services for doctors, cases, queries
// and the audit trail.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/clinical-insight/internal/crypto"
	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/limiter"
	"github.com/and161185/clinical-insight/internal/metrics"
	"github.com/and161185/clinical-insight/internal/model"
	"github.com/and161185/clinical-insight/internal/repository"
	"github.com/and161185/clinical-insight/internal/session"
)

// Sessions issues and checks bearer tokens.
type Sessions interface {
	Issue(ctx context.Context, u *model.User) (string, error)
	Verify(ctx context.Context, token string) (*model.User, error)
	Revoke(ctx context.Context, token string) error
}

var _ Sessions = (*session.Manager)(nil)

// RegisterInput is a new doctor account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	model.Profile
}

// AuthService defines registration and session operations.
type AuthService interface {
	// Register creates a new user with secure password hashing.
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	// LoginWithIP applies rate-limiting, authenticates the user and opens a session.
	LoginWithIP(ctx context.Context, username, password, ip string) (token string, user *model.User, err error)
	// Verify resolves a session token to the live user.
	Verify(ctx context.Context, token string) (*model.User, error)
	// Logout revokes a session token; a second call with the same token fails.
	Logout(ctx context.Context, token string) error
}

type AuthServiceImpl struct {
	users    repository.UserRepository
	sessions Sessions
	lim      limiter.Limiter
	audit    AuditService
	log      *zap.Logger
	now      func() time.Time
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, sessions Sessions, lim limiter.Limiter, audit AuditService, log *zap.Logger) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{users: users, sessions: sessions, lim: lim, audit: audit, log: log, now: time.Now}
}

// Register creates a new user record with a per-user salt.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	var missing []string
	if in.Username == "" {
		missing = append(missing, "username")
	}
	if in.Email == "" {
		missing = append(missing, "email")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", errs.ErrValidation, strings.Join(missing, ", "))
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	saltAuth, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		ID:        uid,
		Username:  in.Username,
		Email:     in.Email,
		PwdHash:   pkgcrypto.HashPassword([]byte(in.Password), saltAuth),
		SaltAuth:  saltAuth,
		Profile:   in.Profile,
		CreatedAt: s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, u.ID, model.ActionRegister, u.ID.String(), "")
	return u, nil
}

// LoginWithIP authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (string, *model.User, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return "", nil, err
	}
	if !allowed {
		metrics.LoginFailuresTotal.WithLabelValues("rate_limited").Inc()
		return "", nil, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return "", nil, err
	}
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			metrics.LoginFailuresTotal.WithLabelValues("rate_limited").Inc()
			return "", nil, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		metrics.LoginFailuresTotal.WithLabelValues("bad_credentials").Inc()
		return "", nil, errs.ErrUnauthorized
	}

	if err := s.lim.Success(ctx, username, ipHash); err != nil {
		s.log.Warn("limiter reset", zap.Error(err))
	}

	at := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, u.ID, at); err != nil {
		return "", nil, fmt.Errorf("update last login: %w", err)
	}
	u.LastLogin = &at

	token, err := s.sessions.Issue(ctx, u)
	if err != nil {
		return "", nil, err
	}
	metrics.SessionsActive.Inc()
	s.audit.Record(WithClientIP(ctx, ip), u.ID, model.ActionLogin, "", "")
	return token, u, nil
}

func (s *AuthServiceImpl) Verify(ctx context.Context, token string) (*model.User, error) {
	return s.sessions.Verify(ctx, token)
}

func (s *AuthServiceImpl) Logout(ctx context.Context, token string) error {
	// resolve the owner first, Revoke does not report it
	u, _ := s.sessions.Verify(ctx, token)
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return err
	}
	metrics.SessionsActive.Dec()
	if u != nil {
		s.audit.Record(ctx, u.ID, model.ActionLogout, "", "")
	}
	return nil
}
