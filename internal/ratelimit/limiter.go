// Package ratelimit throttles actions per client origin with fixed-window
// counters.
//
// Counters are keyed by action class and an origin fingerprint. The
// fingerprint is a keyed hash of the origin under a salt that rotates every
// UTC day, so raw addresses are never stored and one day's keys cannot be
// correlated with the next day's.
package ratelimit

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// Class names a throttled action.
type Class string

const (
	ClassGuestRequest Class = "guest_request"
	ClassDefault      Class = "default"
)

// Rule is a window length and the number of requests it admits.
type Rule struct {
	Window time.Duration
	Max    int
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Counter increments fixed-window counters.
type Counter interface {
	// Hit increments key, starting a window of the given length when the key
	// is new, and returns the new count with the window's remaining time.
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// SaltSource returns the fingerprint salt for the UTC day containing t.
type SaltSource interface {
	Salt(ctx context.Context, t time.Time) ([]byte, error)
}

// Limiter applies per-class rules to origin fingerprints.
type Limiter struct {
	counter  Counter
	salts    SaltSource
	rules    map[Class]Rule
	fallback Rule
	now      func() time.Time
}

// DefaultRules mirrors the server defaults: three guest requests a minute and
// ten of anything else.
func DefaultRules() map[Class]Rule {
	return map[Class]Rule{
		ClassGuestRequest: {Window: time.Minute, Max: 3},
		ClassDefault:      {Window: time.Minute, Max: 10},
	}
}

// NewLimiter builds a limiter. Classes without a rule use ClassDefault's rule.
func NewLimiter(counter Counter, salts SaltSource, rules map[Class]Rule, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	if rules == nil {
		rules = DefaultRules()
	}
	fallback, ok := rules[ClassDefault]
	if !ok {
		fallback = DefaultRules()[ClassDefault]
	}
	return &Limiter{counter: counter, salts: salts, rules: rules, fallback: fallback, now: now}
}

// Fingerprint hashes origin under today's salt.
func (l *Limiter) Fingerprint(ctx context.Context, origin string) (string, error) {
	salt, err := l.salts.Salt(ctx, l.now())
	if err != nil {
		return "", fmt.Errorf("ratelimit: load salt: %w", err)
	}
	return fingerprint(salt, origin)
}

func fingerprint(salt []byte, origin string) (string, error) {
	var key [32]byte
	if len(salt) != len(key) {
		sum := blake3.Sum256(salt)
		key = sum
	} else {
		copy(key[:], salt)
	}
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		return "", fmt.Errorf("ratelimit: keyed hash: %w", err)
	}
	_, _ = hasher.Write([]byte(origin))
	return hex.EncodeToString(hasher.Sum(nil)[:16]), nil
}

// Allow counts one request for fingerprint under class.
func (l *Limiter) Allow(ctx context.Context, class Class, fingerprint string) (Decision, error) {
	rule, ok := l.rules[class]
	if !ok {
		rule = l.fallback
	}

	count, ttl, err := l.counter.Hit(ctx, Key(class, fingerprint), rule.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: count %s: %w", class, err)
	}
	if ttl <= 0 || ttl > rule.Window {
		ttl = rule.Window
	}

	decision := Decision{
		Allowed:   count <= int64(rule.Max),
		Remaining: max(rule.Max-int(count), 0),
		ResetAt:   l.now().Add(ttl),
	}
	if !decision.Allowed {
		decision.RetryAfter = ttl
	}
	return decision, nil
}

// Key is the counter key for class and fingerprint.
func Key(class Class, fingerprint string) string {
	return "ratelimit:" + string(class) + ":" + fingerprint
}
