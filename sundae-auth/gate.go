package sundaeauth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultCookieName      = "access_token"
	DefaultRequestIDHeader = "x-request-id"
)

// TokenVerifier verifies a raw bearer credential.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Remover deletes connection records. The gate uses it to clean up after a failed
// handshake in stateless mode.
type Remover interface {
	Remove(ctx context.Context, connectionID string) error
}

// Gate authenticates incoming connections.
type Gate struct {
	Verifier        TokenVerifier
	CookieName      string
	RequestIDHeader string
	Remover         Remover
	Logger          zerolog.Logger
}

type Request struct {
	ConnectionID string
	Headers      map[string]string
	// Stateless marks a request/response transport where a failed handshake must
	// not leave a connection record behind.
	Stateless bool
}

type Result struct {
	Identity  Identity
	RequestID string
}

// Authenticate resolves the request id, extracts the credential and verifies it.
// The returned Result always carries the request id, even on failure. Errors are
// *sundaeerr.Error values.
func (g *Gate) Authenticate(ctx context.Context, req Request) (Result, error) {
	result := Result{RequestID: g.requestID(req.Headers)}
	logger := g.Logger.With().
		Str("connection_id", req.ConnectionID).
		Str("request_id", result.RequestID).
		Logger()

	identity, err := g.authenticate(ctx, req)
	if err != nil {
		e := TranslateError(err).WithConnection(req.ConnectionID)
		logger.Info().Err(err).Str("code", e.Code).Msg("authentication rejected")
		if req.Stateless && g.Remover != nil {
			if rmErr := g.Remover.Remove(context.WithoutCancel(ctx), req.ConnectionID); rmErr != nil {
				logger.Warn().Err(rmErr).Msg("failed to remove connection after rejected handshake")
			}
		}
		return result, e
	}

	result.Identity = identity
	logger.Debug().Str("subject", identity.Subject).Msg("authenticated")
	return result, nil
}

func (g *Gate) authenticate(ctx context.Context, req Request) (Identity, error) {
	token := g.credential(req.Headers)
	if token == "" {
		return Identity{}, ErrMissingCredential
	}
	return g.Verifier.Verify(ctx, token)
}

func (g *Gate) credential(headers map[string]string) string {
	name := g.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	if token := ParseCookies(Header(headers, "Cookie"))[name]; token != "" {
		return token
	}

	auth := Header(headers, "Authorization")
	if len(auth) > len("Bearer ") && strings.EqualFold(auth[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}

func (g *Gate) requestID(headers map[string]string) string {
	name := g.RequestIDHeader
	if name == "" {
		name = DefaultRequestIDHeader
	}
	if id := Header(headers, name); id != "" {
		return id
	}
	return uuid.NewString()
}
