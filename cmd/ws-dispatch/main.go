package main

import (
	"log"
	"os"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	sundaeddb "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ddb"
	sundaekinesis "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-kinesis"
	sundaews "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/publish"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/urfave/cli/v2"
)

var service = sundaecli.NewService("ws-dispatch")

func main() {
	flags := append([]cli.Flag{}, sundaecli.CommonFlags...)
	flags = append(flags, sundaews.WSFlags...)
	flags = append(flags, sundaeddb.DDBFlags...)
	flags = append(flags, sundaekinesis.KinesisFlags...)

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
	dispatcher := sundaews.NewDispatcher(relay, metrics, logger)

	handler := sundaekinesis.NewGenericHandler(service, dispatcher.HandleRecord)
	handler.DefaultStream = publish.StreamName(sundaecli.CommonOpts.Env)
	if sundaews.WSOpts.BroadcastStream != "" {
		handler.DefaultStream = sundaews.WSOpts.BroadcastStream
	}
	return handler.Start()
}
