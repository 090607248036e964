// Package limiter throttles repeated failed logins per (username, client IP).
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter tracks failed logins and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login attempt may proceed and, if not, how long to wait.
	Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
	// Success clears the failure counter.
	Success(ctx context.Context, username string, ipHash []byte) error
	// Failure records a failed attempt and reports whether it triggered a lockout.
	Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
}

// Settings are the lockout parameters.
type Settings struct {
	Window   time.Duration // failures older than this restart the count
	MaxFails int
	BlockFor time.Duration
}

// HashIP returns a stable digest of a client address so raw IPs are not stored.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Nop never throttles. Used when the limiter is disabled.
type Nop struct{}

var _ Limiter = Nop{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) { return true, 0, nil }
func (Nop) Success(context.Context, string, []byte) error                      { return nil }
func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}
