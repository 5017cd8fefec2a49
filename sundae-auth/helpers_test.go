package sundaeauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tj/assert"
)

type testKey struct {
	kid  string
	priv *rsa.PrivateKey
}

func newTestKey(t *testing.T, kid string) testKey {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)
	return testKey{kid: kid, priv: priv}
}

func (k testKey) jwk() map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": k.kid,
		"n":   base64.RawURLEncoding.EncodeToString(k.priv.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.priv.E)).Bytes()),
	}
}

func keySet(t *testing.T, keys ...testKey) json.RawMessage {
	var set struct {
		Keys []map[string]string `json:"keys"`
	}
	for _, k := range keys {
		set.Keys = append(set.Keys, k.jwk())
	}
	raw, err := json.Marshal(set)
	assert.NoError(t, err)
	return raw
}

func (k testKey) sign(t *testing.T, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.kid
	signed, err := token.SignedString(k.priv)
	assert.NoError(t, err)
	return signed
}

// countingSource is a KeySource that records fetches and can be blocked or failed.
type countingSource struct {
	mu      sync.Mutex
	keys    json.RawMessage
	err     error
	release chan struct{}
	calls   int64
}

func (s *countingSource) Fetch(ctx context.Context) (json.RawMessage, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys, s.err
}

func (s *countingSource) set(keys json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

func (s *countingSource) count() int64 {
	return atomic.LoadInt64(&s.calls)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func claimsFor(clock *fakeClock, subject string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": subject,
		"iss": "https://idp.example.com/",
		"iat": clock.Now().Unix(),
		"exp": clock.Now().Add(time.Hour).Unix(),
	}
}
