package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/model"
)

// LinkClaims travel inside a signed download link.
type LinkClaims struct {
	CaseID   string `json:"case_id"`
	Path     string `json:"path"`
	Name     string `json:"name"`
	MimeType string `json:"mime"`
	jwt.RegisteredClaims
}

// Links signs and verifies short-lived download tokens (HS256).
type Links struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewLinks constructs a signer; ttl defaults to 15 minutes.
func NewLinks(key []byte, ttl time.Duration) (*Links, error) {
	if len(key) == 0 {
		return nil, errors.New("link signer: empty key")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Links{key: key, ttl: ttl, now: time.Now}, nil
}

// Sign issues a token for one file of a case. Subject is the file id.
func (l *Links) Sign(caseID string, f model.FileMeta) (string, time.Time, error) {
	now := l.now()
	exp := now.Add(l.ttl)
	claims := LinkClaims{
		CaseID:   caseID,
		Path:     f.FilePath,
		Name:     f.OriginalName,
		MimeType: f.MimeType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   f.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.key)
	return signed, exp, err
}

// Verify checks signature, expiry and that the token was issued for fileID.
func (l *Links) Verify(token, fileID string) (*LinkClaims, error) {
	var claims LinkClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return l.key, nil
	}, jwt.WithTimeFunc(l.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: download link", errs.ErrUnauthorized)
	}
	if claims.Subject != fileID {
		return nil, fmt.Errorf("%w: link issued for another file", errs.ErrUnauthorized)
	}
	return &claims, nil
}
