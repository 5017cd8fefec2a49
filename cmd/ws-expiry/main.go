package main

import (
	"log"
	"os"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	sundaeddb "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ddb"
	sundaews "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/urfave/cli/v2"
)

var service = sundaecli.NewService("ws-expiry")

func main() {
	flags := append([]cli.Flag{}, sundaecli.CommonFlags...)
	flags = append(flags, sundaews.CallbackURLFlag)
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

	if sundaeddb.DDBOpts.TableName == "" {
		sundaeddb.DDBOpts.TableName = connectiondao.TableName(sundaecli.CommonOpts.Env)
	}

	transport, err := sundaews.BuildGatewayTransport(sess, sundaews.WSOpts.CallbackURL)
	if err != nil {
		return err
	}
	expiry := &sundaews.Expiry{
		Transport: transport,
		Logger:    logger.With().Str("component", "expiry").Logger(),
	}

	handler := sundaeddb.NewHandler(service, nil, nil, expiry.OnRemove)
	return handler.Start()
}
