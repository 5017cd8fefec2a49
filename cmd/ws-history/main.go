package main

import (
	"log"
	"os"

	sundaeauth "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-auth"
	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	sundaeddb "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ddb"
	sundaerest "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-rest"
	sundaews "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"
)

var service = sundaecli.NewService("ws-history")

func main() {
	flags := append([]cli.Flag{}, sundaecli.CommonFlags...)
	flags = append(flags, sundaecli.PortFlag(8081))
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

	// reads only; nothing is ever delivered
	relay, err := sundaews.BuildRelay(sess, logger, sundaecli.Metrics{}, nil)
	if err != nil {
		return err
	}
	gate, err := sundaeauth.Build(sess, logger, nil)
	if err != nil {
		return err
	}

	history := &sundaews.HistoryAPI{
		Gate:  gate,
		Relay: relay,
	}
	routes := sundaerest.Middlewares(service, chi.NewRouter())
	history.Routes(routes)
	return sundaerest.Webserver(service, routes)
}
