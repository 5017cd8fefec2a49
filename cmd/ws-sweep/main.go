package main

import (
	"log"
	"os"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	sundaecron "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cron"
	sundaeddb "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ddb"
	sundaews "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/urfave/cli/v2"
)

var service = sundaecli.NewService("ws-sweep")

func main() {
	flags := append([]cli.Flag{}, sundaecli.CommonFlags...)
	flags = append(flags, sundaews.WSFlags...)
	flags = append(flags, sundaeddb.DDBFlags...)

	app := sundaecli.App(service, action, flags...)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	logger := sundaecli.Logger(service)

	transport, err := sundaews.BuildGatewayTransport(sess, sundaews.WSOpts.CallbackURL)
	if err != nil {
		return err
	}

	var metrics sundaecli.Metrics
	if !sundaecli.CommonOpts.Console {
		metrics = sundaecli.NewMetrics(service, cloudwatch.New(sess))
	}
	relay, err := sundaews.BuildRelay(sess, logger, metrics, transport)
	if err != nil {
		return err
	}
	sweeper := sundaews.NewSweeper(relay, metrics, logger)

	return sundaecron.NewHandler(service, sweeper.Run).Start()
}
