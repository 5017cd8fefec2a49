package sundaews

import (
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/urfave/cli/v2"
)

var WSOpts struct {
	CallbackURL     string
	ConnectionTTL   time.Duration
	MessageTTL      time.Duration
	AuthTimeout     time.Duration
	PingInterval    time.Duration
	PongWait        time.Duration
	BroadcastStream string
	Concurrency     int
	SweepBatch      int
	InMemory        bool
}

var CallbackURLFlag = sundaecli.StringFlag("ws-callback-url", "API Gateway management endpoint, https://{api-id}.execute-api.{region}.amazonaws.com/{stage}", &WSOpts.CallbackURL)
var ConnectionTTLFlag = sundaecli.DurationFlag("connection-ttl", "lifetime of a connection row without activity", &WSOpts.ConnectionTTL, connectiondao.DefaultTTL)
var MessageTTLFlag = sundaecli.DurationFlag("message-ttl", "lifetime of a persisted message", &WSOpts.MessageTTL, DefaultMessageTTL)
var AuthTimeoutFlag = sundaecli.DurationFlag("auth-timeout", "deadline for authenticating and registering a connection", &WSOpts.AuthTimeout, DefaultAuthTimeout)
var PingIntervalFlag = sundaecli.DurationFlag("ping-interval", "websocket ping interval in console mode", &WSOpts.PingInterval, DefaultPingInterval)
var PongWaitFlag = sundaecli.DurationFlag("pong-wait", "how long to wait for a pong before dropping the socket", &WSOpts.PongWait, DefaultPongWait)
var BroadcastStreamFlag = sundaecli.StringFlag("broadcast-stream", "kinesis stream for room broadcasts; empty broadcasts in process", &WSOpts.BroadcastStream)
var ConcurrencyFlag = sundaecli.IntFlag("dispatch-concurrency", "max concurrent deliveries per broadcast", &WSOpts.Concurrency, defaultConcurrency)
var SweepBatchFlag = sundaecli.IntFlag("sweep-batch", "max expired connections removed per sweep", &WSOpts.SweepBatch, defaultSweepBatch)
var InMemoryFlag = sundaecli.BoolFlag("in-memory", "keep connections and messages in memory instead of DynamoDB", &WSOpts.InMemory)

var WSFlags = []cli.Flag{
	CallbackURLFlag,
	ConnectionTTLFlag,
	MessageTTLFlag,
	AuthTimeoutFlag,
	PingIntervalFlag,
	PongWaitFlag,
	BroadcastStreamFlag,
	ConcurrencyFlag,
	SweepBatchFlag,
	InMemoryFlag,
}
