package sundaekinesis

import (
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	"github.com/urfave/cli/v2"
)

var KinesisOpts struct {
	StreamName string
	Replay     bool
	ReplayFrom cli.Timestamp
}

var StreamNameFlag = sundaecli.StringFlag("stream-name", "The stream name to read records from", &KinesisOpts.StreamName)
var ReplayFlag = sundaecli.BoolFlag("replay", "Whether to replay from the beginning, or start from the next message", &KinesisOpts.Replay)

var ReplayFromFlag = cli.TimestampFlag{
	Name:        "replay-from",
	Usage:       "Timestamp to replay from",
	Layout:      "2006-01-02 15:04:05",
	EnvVars:     []string{"REPLAY_FROM"},
	Destination: &KinesisOpts.ReplayFrom,
}

var KinesisFlags = []cli.Flag{
	StreamNameFlag,
	ReplayFlag,
	&ReplayFromFlag,
}

func replayFrom() *time.Time {
	return KinesisOpts.ReplayFrom.Value()
}
