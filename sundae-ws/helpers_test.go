package sundaews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sundaeauth "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-auth"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/messagedao"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

// clock advances a millisecond on every read so message ordering is stable.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeTransport records sends and closes. Connections in gone report ErrGone,
// connections in broken fail with a transient error.
type fakeTransport struct {
	mu     sync.Mutex
	sent   map[string][][]byte
	closed []string
	gone   map[string]bool
	broken map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:   map[string][][]byte{},
		gone:   map[string]bool{},
		broken: map[string]bool{},
	}
}

func (f *fakeTransport) Send(_ context.Context, connectionID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.gone[connectionID]:
		return fmt.Errorf("%w: %v", ErrGone, connectionID)
	case f.broken[connectionID]:
		return errors.New("throttled")
	}
	f.sent[connectionID] = append(f.sent[connectionID], data)
	return nil
}

func (f *fakeTransport) Close(_ context.Context, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, connectionID)
	return nil
}

func (f *fakeTransport) setGone(connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone[connectionID] = true
}

func (f *fakeTransport) setBroken(connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broken[connectionID] = true
}

func (f *fakeTransport) count(connectionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[connectionID])
}

// events decodes everything sent to connectionID.
func (f *fakeTransport) events(t *testing.T, connectionID string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	var evs []Event
	for _, data := range f.sent[connectionID] {
		var ev Event
		assert.NoError(t, json.Unmarshal(data, &ev))
		evs = append(evs, ev)
	}
	return evs
}

func (f *fakeTransport) last(t *testing.T, connectionID string) Event {
	evs := f.events(t, connectionID)
	if len(evs) == 0 {
		t.Fatalf("nothing sent to %v", connectionID)
	}
	return evs[len(evs)-1]
}

// tokenVerifier resolves tokens from a fixed table.
type tokenVerifier map[string]error

func (v tokenVerifier) Verify(_ context.Context, token string) (sundaeauth.Identity, error) {
	if err, ok := v[token]; ok {
		return sundaeauth.Identity{}, err
	}
	if subject, ok := strings.CutSuffix(token, "-token"); ok && subject != "" {
		return sundaeauth.Identity{Subject: subject, Issuer: "https://idp.example.com/"}, nil
	}
	return sundaeauth.Identity{}, sundaeauth.ErrVerificationFailed
}

// failingRegistry wraps a registry and fails selected operations.
type failingRegistry struct {
	Registry
	addErr    error
	removeErr error
	mu        sync.Mutex
	removed   []string
}

func (r *failingRegistry) Add(ctx context.Context, conn connectiondao.Connection) error {
	if r.addErr != nil {
		return r.addErr
	}
	return r.Registry.Add(ctx, conn)
}

func (r *failingRegistry) Remove(ctx context.Context, connectionID string) error {
	r.mu.Lock()
	r.removed = append(r.removed, connectionID)
	r.mu.Unlock()
	if r.removeErr != nil {
		return r.removeErr
	}
	return r.Registry.Remove(ctx, connectionID)
}

type failingMessages struct {
	err error
}

func (f failingMessages) Put(context.Context, messagedao.Message) error { return f.err }
func (f failingMessages) BySession(context.Context, string, int) ([]messagedao.Message, error) {
	return nil, f.err
}

type fixture struct {
	clock      *clock
	registry   *connectiondao.Memory
	messages   *messagedao.Memory
	transport  *fakeTransport
	relay      *Relay
	dispatcher *Dispatcher
	controller *Controller
}

func newFixture(t *testing.T) *fixture {
	var (
		c         = newClock()
		registry  = connectiondao.NewMemory(connectiondao.WithClock(c.Now))
		messages  = messagedao.NewMemory(messagedao.WithClock(c.Now))
		transport = newFakeTransport()
		logger    = zerolog.Nop()
	)

	relay := &Relay{
		Registry:  registry,
		Messages:  messages,
		Transport: transport,
		Logger:    logger,
		Now:       c.Now,
	}
	dispatcher := &Dispatcher{
		Registry: registry,
		Relay:    relay,
		Logger:   logger,
	}
	controller := &Controller{
		Gate: &sundaeauth.Gate{
			Verifier: tokenVerifier{
				"expired-jwt": fmt.Errorf("%w: token is expired", sundaeauth.ErrTokenExpired),
			},
			Remover: registry,
			Logger:  logger,
		},
		Registry:    registry,
		Relay:       relay,
		Broadcaster: dispatcher,
		Logger:      logger,
		Now:         c.Now,
	}

	return &fixture{
		clock:      c,
		registry:   registry,
		messages:   messages,
		transport:  transport,
		relay:      relay,
		dispatcher: dispatcher,
		controller: controller,
	}
}

// connect opens connectionID for subject, optionally bound to sessionID.
func (f *fixture) connect(t *testing.T, connectionID, subject, sessionID string) *Session {
	req := ConnectRequest{
		ConnectionID: connectionID,
		Headers:      map[string]string{"Cookie": "theme=dark; access_token=" + subject + "-token"},
	}
	if sessionID != "" {
		req.Query = map[string]string{"sessionId": sessionID}
	}
	s, err := f.controller.Connect(context.Background(), req)
	assert.NoError(t, err)
	return s
}
