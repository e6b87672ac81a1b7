package ratelimit

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/hkdf"
)

const (
	saltBytes = 32
	saltTTL   = 48 * time.Hour
	dayLayout = "2006-01-02"
)

// DerivedSalt derives each day's salt from a fixed secret with HKDF-SHA256.
// Processes sharing the secret agree on the salt without shared storage.
type DerivedSalt struct {
	secret []byte
}

// NewDerivedSalt returns a salt source keyed by secret.
func NewDerivedSalt(secret []byte) (*DerivedSalt, error) {
	if len(secret) == 0 {
		return nil, errors.New("ratelimit: derived salt requires a secret")
	}
	return &DerivedSalt{secret: append([]byte(nil), secret...)}, nil
}

// Salt returns the salt for t's UTC day.
func (d *DerivedSalt) Salt(_ context.Context, t time.Time) ([]byte, error) {
	info := []byte("meetgrid origin fingerprint " + t.UTC().Format(dayLayout))
	out := make([]byte, saltBytes)
	if _, err := io.ReadFull(hkdf.New(sha256.New, d.secret, nil, info), out); err != nil {
		return nil, fmt.Errorf("ratelimit: derive salt: %w", err)
	}
	return out, nil
}

// RedisSalt stores one random salt per UTC day in Redis. The first process to
// ask for a day creates it; the key expires on its own after two days.
type RedisSalt struct {
	client redis.UniversalClient
	random io.Reader

	mu     sync.Mutex
	day    string
	cached []byte
}

// NewRedisSalt returns a salt source backed by client.
func NewRedisSalt(client redis.UniversalClient) *RedisSalt {
	return &RedisSalt{client: client, random: rand.Reader}
}

// Salt returns the salt for t's UTC day.
func (s *RedisSalt) Salt(ctx context.Context, t time.Time) ([]byte, error) {
	day := t.UTC().Format(dayLayout)

	s.mu.Lock()
	if s.day == day {
		cached := s.cached
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	candidate := make([]byte, saltBytes)
	if _, err := io.ReadFull(s.random, candidate); err != nil {
		return nil, fmt.Errorf("ratelimit: generate salt: %w", err)
	}
	key := "ratelimit:salt:" + day
	if err := s.client.SetNX(ctx, key, hex.EncodeToString(candidate), saltTTL).Err(); err != nil {
		return nil, err
	}
	stored, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: decode stored salt: %w", err)
	}

	s.mu.Lock()
	s.day, s.cached = day, salt
	s.mu.Unlock()
	return salt, nil
}
