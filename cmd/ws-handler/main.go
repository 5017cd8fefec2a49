package main

import (
	"context"
	"log"
	"os"
	"time"

	sundaeauth "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-auth"
	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	sundaeddb "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ddb"
	sundaerest "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-rest"
	sundaews "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"
)

var service = sundaecli.NewService("ws-handler")

const consoleSweepInterval = time.Minute

func main() {
	flags := append([]cli.Flag{}, sundaecli.CommonFlags...)
	flags = append(flags, sundaecli.PortFlag(8080))
	flags = append(flags, sundaeauth.AuthFlags...)
	flags = append(flags, sundaews.WSFlags...)
	flags = append(flags, sundaeddb.DDBFlags...)
	flags = append(flags, sundaerest.RestFlags...)

	app := sundaecli.App(service, action, flags...)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	logger := sundaecli.Logger(service)

	if sundaecli.CommonOpts.Console {
		return console(sess)
	}

	transport, err := sundaews.BuildGatewayTransport(sess, sundaews.WSOpts.CallbackURL)
	if err != nil {
		return err
	}
	metrics := sundaecli.NewMetrics(service, cloudwatch.New(sess))
	stack, err := sundaews.Build(sess, logger, metrics, transport, true)
	if err != nil {
		return err
	}

	lambda.Start(stack.Controller.HandleEvent)
	return nil
}

// console serves websockets from this process, with the history api on the
// same port.
func console(sess *session.Session) error {
	logger := sundaecli.Logger(service)
	sockets := sundaews.NewSocketTransport()

	stack, err := sundaews.Build(sess, logger, sundaecli.Metrics{}, sockets, false)
	if err != nil {
		return err
	}

	server := &sundaews.Server{
		Controller:   stack.Controller,
		Sockets:      sockets,
		Logger:       logger.With().Str("component", "server").Logger(),
		PingInterval: sundaews.WSOpts.PingInterval,
		PongWait:     sundaews.WSOpts.PongWait,
	}
	history := &sundaews.HistoryAPI{
		Gate:  stack.Gate,
		Relay: stack.Relay,
	}

	// local sockets keep their registry in memory, which needs sweeping
	go sweep(sundaews.NewSweeper(stack.Relay, sundaecli.Metrics{}, logger))

	routes := sundaerest.Middlewares(service, chi.NewRouter())
	server.Routes(routes)
	history.Routes(routes)
	return sundaerest.Webserver(service, routes)
}

func sweep(sweeper *sundaews.Sweeper) {
	ticker := time.NewTicker(consoleSweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		if err := sweeper.Run(context.Background()); err != nil {
			sweeper.Logger.Warn().Err(err).Msg("sweep failed")
		}
	}
}
