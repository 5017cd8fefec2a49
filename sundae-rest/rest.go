// Package sundaerest serves chi routes either as a local HTTP server in console
// mode or behind API Gateway in Lambda, with CORS and request logging.
package sundaerest

import (
	"fmt"
	"net/http"
	"strings"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/savaki/apigateway"
	"github.com/urfave/cli/v2"
)

var RestOpts struct {
	AllowedOrigins string
}

var AllowedOriginsFlag = sundaecli.StringFlag("allowed-origins", "comma separated origins allowed to call the api with credentials; unset allows same origin only, * allows any origin without credentials", &RestOpts.AllowedOrigins)

var RestFlags = []cli.Flag{
	AllowedOriginsFlag,
}

func Middlewares(service sundaecli.Service, routes chi.Router) chi.Router {
	routes.Use(
		withEmbedPolicyHeaders,
		withCORS(allowedOrigins()),
		withLogger(sundaecli.Logger(service)),
		middleware.Recoverer,
	)
	return routes
}

func Webserver(service sundaecli.Service, routes chi.Router) error {
	logger := sundaecli.Logger(service)

	if sundaecli.CommonOpts.Console {
		logger.Info().Int("port", sundaecli.CommonOpts.Port).Msg("starting http server")
		addr := fmt.Sprintf(":%v", sundaecli.CommonOpts.Port)
		return http.ListenAndServe(addr, routes)
	}

	lambda.Start(apigateway.Wrap(routes, sundaecli.CommonOpts.Env))
	return nil
}

func allowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(RestOpts.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// withEmbedPolicyHeaders sets cross-origin isolation headers on plain HTTP
// responses. Websocket upgrades are left alone.
func withEmbedPolicyHeaders(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
			handler.ServeHTTP(w, req)
			return
		}

		header := w.Header()
		header.Add("cross-origin-embedder-policy", "require-corp")
		header.Add("cross-origin-opener-policy", "same-origin")
		header.Add("cross-origin-resource-policy", "cross-origin")
		handler.ServeHTTP(w, req)
	})
}

// withCORS allows credentialed requests from the listed origins, since the bearer
// token travels in a cookie. A wildcard never carries credentials, and no origins
// means no cross-origin access at all.
func withCORS(origins []string) func(next http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	credentials := true
	for _, origin := range origins {
		if origin == "*" {
			credentials = false
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-Session-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: credentials,
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}
