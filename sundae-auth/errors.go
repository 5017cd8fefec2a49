package sundaeauth

import (
	"errors"
	"net/http"

	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
)

// Verification failures. Verifier wraps one of these with the underlying cause.
var (
	ErrMissingCredential    = errors.New("missing credential")
	ErrTokenExpired         = errors.New("token expired")
	ErrInvalidToken         = errors.New("invalid token")
	ErrKeyNotFound          = errors.New("signing key not found")
	ErrVerificationFailed   = errors.New("verification failed")
	ErrKeySourceUnavailable = errors.New("key source unavailable")
	ErrKeySourceRateLimited = errors.New("key source rate limited")
)

// TranslateError maps verifier and gate errors onto the client-facing taxonomy.
// Errors already classified pass through untouched.
func TranslateError(err error) *sundaeerr.Error {
	if err == nil {
		return nil
	}
	if e, ok := sundaeerr.As(err); ok {
		return e
	}

	switch {
	case errors.Is(err, ErrMissingCredential):
		return sundaeerr.Auth(sundaeerr.CodeMissingCredential, "missing credential").Wrap(err)
	case errors.Is(err, ErrTokenExpired):
		return sundaeerr.Auth(sundaeerr.CodeTokenExpired, "reconnect required").Wrap(err)
	case errors.Is(err, ErrKeySourceRateLimited):
		return sundaeerr.Auth(sundaeerr.CodeRateLimited, "backoff").
			WithStatus(http.StatusTooManyRequests).
			Wrap(err)
	case errors.Is(err, ErrKeySourceUnavailable):
		return sundaeerr.Connection(sundaeerr.CodeKeySourceUnavailable, "authentication temporarily unavailable").Wrap(err)
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrKeyNotFound), errors.Is(err, ErrVerificationFailed):
		return sundaeerr.Auth(sundaeerr.CodeUnauthorized, "unauthorized").Wrap(err)
	default:
		return sundaeerr.From(err)
	}
}
