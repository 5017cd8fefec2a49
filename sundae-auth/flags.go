package sundaeauth

import (
	"fmt"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	sundaesecret "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-secret"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var AuthOpts struct {
	JWKSURL      string
	Issuer       string
	Audience     string
	CookieName   string
	Secret       string
	KeyCacheTTL  time.Duration
	RefreshLimit time.Duration
	FetchTimeout time.Duration
	Leeway       time.Duration
}

var JWKSURLFlag = sundaecli.StringFlag("jwks-url", "JSON Web Key Set endpoint of the identity provider", &AuthOpts.JWKSURL)
var IssuerFlag = sundaecli.StringFlag("issuer", "required token issuer", &AuthOpts.Issuer)
var AudienceFlag = sundaecli.StringFlag("audience", "required token audience", &AuthOpts.Audience)
var CookieNameFlag = sundaecli.StringFlag("cookie-name", "cookie carrying the bearer credential", &AuthOpts.CookieName, DefaultCookieName)
var AuthSecretFlag = sundaecli.StringFlag("auth-secret", "secrets manager entry holding jwks-url, issuer and audience", &AuthOpts.Secret)
var KeyCacheTTLFlag = sundaecli.DurationFlag("key-cache-ttl", "how long a fetched key set is trusted", &AuthOpts.KeyCacheTTL, 10*time.Minute)
var RefreshLimitFlag = sundaecli.DurationFlag("jwks-refresh-limit", "minimum interval between key set refreshes caused by unknown kids", &AuthOpts.RefreshLimit, DefaultRefreshRateLimit)
var FetchTimeoutFlag = sundaecli.DurationFlag("jwks-timeout", "timeout for a key set fetch", &AuthOpts.FetchTimeout, 5*time.Second)
var LeewayFlag = sundaecli.DurationFlag("token-leeway", "clock skew tolerated on token time claims", &AuthOpts.Leeway, 30*time.Second)

var AuthFlags = []cli.Flag{
	JWKSURLFlag,
	IssuerFlag,
	AudienceFlag,
	CookieNameFlag,
	AuthSecretFlag,
	KeyCacheTTLFlag,
	RefreshLimitFlag,
	FetchTimeoutFlag,
	LeewayFlag,
}

// Secret is the secrets manager document overriding the auth flags.
type Secret struct {
	JWKSURL  string `json:"jwks_url"`
	Issuer   string `json:"issuer"`
	Audience string `json:"audience"`
}

// Build constructs a Gate from AuthOpts, loading AuthOpts.Secret first when set.
func Build(sess *session.Session, logger zerolog.Logger, remover Remover) (*Gate, error) {
	jwksURL, issuer, audience := AuthOpts.JWKSURL, AuthOpts.Issuer, AuthOpts.Audience
	if AuthOpts.Secret != "" {
		var secret Secret
		if err := sundaesecret.LoadSecret(sess, AuthOpts.Secret, &secret); err != nil {
			return nil, err
		}
		if secret.JWKSURL != "" {
			jwksURL = secret.JWKSURL
		}
		if secret.Issuer != "" {
			issuer = secret.Issuer
		}
		if secret.Audience != "" {
			audience = secret.Audience
		}
	}
	if jwksURL == "" {
		return nil, fmt.Errorf("no jwks url configured: set --%v or --%v", JWKSURLFlag.Name, AuthSecretFlag.Name)
	}

	cache := NewKeyCache(
		NewHTTPKeySource(jwksURL, AuthOpts.FetchTimeout),
		AuthOpts.KeyCacheTTL,
		WithRefreshRateLimit(AuthOpts.RefreshLimit),
	)
	verifier := NewVerifier(cache, VerifierConfig{
		Issuer:   issuer,
		Audience: audience,
		Leeway:   AuthOpts.Leeway,
	})

	return &Gate{
		Verifier:   verifier,
		CookieName: AuthOpts.CookieName,
		Remover:    remover,
		Logger:     logger.With().Str("component", "auth").Logger(),
	}, nil
}
