package sundaeauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AllowedAlgorithms is the signing algorithm allow-list. Only asymmetric RSA
// signatures are accepted so a public key can never be used as an HMAC secret.
var AllowedAlgorithms = []string{"RS256", "RS384", "RS512"}

type VerifierConfig struct {
	Issuer   string        // required iss, if set
	Audience string        // required aud, if set
	Leeway   time.Duration // clock skew tolerance for exp/nbf/iat
	Now      func() time.Time
}

// Verifier checks bearer tokens against the identity provider's key set.
type Verifier struct {
	cache  *KeyCache
	parser *jwt.Parser
}

func NewVerifier(cache *KeyCache, cfg VerifierConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(AllowedAlgorithms),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{
		cache:  cache,
		parser: jwt.NewParser(opts...),
	}
}

// Verify validates token and returns its identity. Errors wrap one of
// ErrInvalidToken, ErrTokenExpired, ErrKeyNotFound, ErrVerificationFailed,
// ErrKeySourceUnavailable or ErrKeySourceRateLimited.
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	unverified, _, err := v.parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !allowedAlgorithm(unverified.Method.Alg()) {
		return Identity{}, fmt.Errorf("%w: signing algorithm %v not allowed", ErrInvalidToken, unverified.Method.Alg())
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return Identity{}, fmt.Errorf("%w: missing kid header", ErrInvalidToken)
	}

	key, err := v.lookupKey(ctx, unverified, kid)
	if err != nil {
		return Identity{}, err
	}

	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}); err != nil {
		return Identity{}, classify(err)
	}

	return identityFromClaims(claims)
}

func (v *Verifier) lookupKey(ctx context.Context, unverified *jwt.Token, kid string) (interface{}, error) {
	keys, fetched, err := v.cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	key, err := keys.Keyfunc(unverified)
	if errors.Is(err, keyfunc.ErrKIDNotFound) && !fetched && v.cache.ClaimRefresh() {
		// unknown kid on a cached set; the provider may have rotated keys
		keys, err = v.cache.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		key, err = keys.Keyfunc(unverified)
	}

	switch {
	case err == nil:
		return key, nil
	case errors.Is(err, keyfunc.ErrKIDNotFound):
		return nil, fmt.Errorf("%w: kid %v", ErrKeyNotFound, kid)
	default:
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	default:
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
}

func identityFromClaims(claims jwt.MapClaims) (Identity, error) {
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return Identity{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	issuer, _ := claims.GetIssuer()
	audience, _ := claims.GetAudience()

	identity := Identity{
		Subject:  subject,
		Issuer:   issuer,
		Audience: audience,
		Claims:   claims,
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		identity.ExpiresAt = exp.Time
	}
	return identity, nil
}

func allowedAlgorithm(alg string) bool {
	for _, a := range AllowedAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}
