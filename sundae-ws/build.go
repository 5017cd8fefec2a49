package sundaews

import (
	"fmt"

	sundaeauth "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-auth"
	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	sundaeddb "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ddb"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/messagedao"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/publish"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/rs/zerolog"
)

// Stack is the set of components a gateway binary runs.
type Stack struct {
	Relay      *Relay
	Gate       *sundaeauth.Gate
	Controller *Controller
	Dispatcher *Dispatcher
}

// BuildRelay creates the registry and message store from WSOpts and DDBOpts and
// a Relay delivering through transport. Sockets held by a SocketTransport are
// only reachable from this process, so their registry is always in memory.
func BuildRelay(sess *session.Session, logger zerolog.Logger, metrics sundaecli.Metrics, transport Transport) (*Relay, error) {
	var (
		registry Registry
		messages MessageStore
	)
	if WSOpts.InMemory || processLocal(transport) {
		registry = connectiondao.NewMemory(connectiondao.WithTTL(WSOpts.ConnectionTTL))
	}
	if WSOpts.InMemory {
		messages = messagedao.NewMemory()
	} else {
		api, err := sundaeddb.DynamoDBAPI(sess)
		if err != nil {
			return nil, fmt.Errorf("creating dynamodb client: %w", err)
		}
		if registry == nil {
			registry = connectiondao.Build(api, sundaecli.CommonOpts.Env, connectiondao.WithTTL(WSOpts.ConnectionTTL))
		}
		messages = messagedao.Build(api, sundaecli.CommonOpts.Env)
	}

	return &Relay{
		Registry:   registry,
		Messages:   messages,
		Transport:  transport,
		Metrics:    metrics,
		Logger:     logger.With().Str("component", "relay").Logger(),
		MessageTTL: WSOpts.MessageTTL,
	}, nil
}

func NewDispatcher(relay *Relay, metrics sundaecli.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Registry:    relay.Registry,
		Relay:       relay,
		Metrics:     metrics,
		Logger:      logger.With().Str("component", "dispatcher").Logger(),
		Concurrency: WSOpts.Concurrency,
	}
}

func NewSweeper(relay *Relay, metrics sundaecli.Metrics, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		Registry:  relay.Registry,
		Transport: relay.Transport,
		Metrics:   metrics,
		Logger:    logger.With().Str("component", "sweeper").Logger(),
		BatchSize: WSOpts.SweepBatch,
		Dry:       sundaecli.CommonOpts.Dry,
	}
}

// Build assembles the full stack from WSOpts, AuthOpts and DDBOpts. transport is
// created by the caller because it depends on how the binary is deployed.
func Build(sess *session.Session, logger zerolog.Logger, metrics sundaecli.Metrics, transport Transport, stateless bool) (*Stack, error) {
	relay, err := BuildRelay(sess, logger, metrics, transport)
	if err != nil {
		return nil, err
	}

	gate, err := sundaeauth.Build(sess, logger, relay.Registry)
	if err != nil {
		return nil, err
	}

	dispatcher := NewDispatcher(relay, metrics, logger)

	var broadcaster Broadcaster = dispatcher
	if WSOpts.BroadcastStream != "" && !processLocal(transport) {
		broadcaster = publish.Build(sess, sundaecli.CommonOpts.Env, WSOpts.BroadcastStream)
	}

	controller := &Controller{
		Gate:        gate,
		Registry:    relay.Registry,
		Relay:       relay,
		Broadcaster: broadcaster,
		Metrics:     metrics,
		Logger:      logger.With().Str("component", "controller").Logger(),
		AuthTimeout: WSOpts.AuthTimeout,
		Stateless:   stateless,
	}

	return &Stack{
		Relay:      relay,
		Gate:       gate,
		Controller: controller,
		Dispatcher: dispatcher,
	}, nil
}

func processLocal(transport Transport) bool {
	_, ok := transport.(*SocketTransport)
	return ok
}
