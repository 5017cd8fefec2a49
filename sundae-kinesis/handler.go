// Package sundaekinesis runs a Kinesis record callback either as a Lambda
// event source handler or, in console mode, as a long running stream consumer.
package sundaekinesis

import (
	"context"
	"fmt"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	consumer "github.com/harlow/kinesis-consumer"
	"github.com/rs/zerolog"
)

type HandleMessageCallback func(ctx context.Context, record events.KinesisEventRecord) error

type Handler struct {
	Service sundaecli.Service
	Logger  zerolog.Logger
	// DefaultStream is consumed in console mode when --stream-name is not set.
	DefaultStream string

	handleMessage HandleMessageCallback
}

func NewGenericHandler(
	service sundaecli.Service,
	handleMessage HandleMessageCallback,
) *Handler {
	return &Handler{
		Service:       service,
		Logger:        sundaecli.Logger(service),
		handleMessage: handleMessage,
	}
}

func (h *Handler) Start() error {
	if !sundaecli.CommonOpts.Console {
		lambda.Start(h.HandleKinesisEvent)
		return nil
	}
	return h.handleRealtime()
}

func (h *Handler) HandleKinesisEvent(ctx context.Context, event events.KinesisEvent) error {
	ctx = h.Logger.WithContext(ctx)
	for _, r := range event.Records {
		if err := h.handleSingleEvent(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

type KinesisSequenceNumberKeyType string

var KinesisSequenceNumberKey = KinesisSequenceNumberKeyType("kinesisSequenceNumber")

func (h *Handler) handleSingleEvent(ctx context.Context, r events.KinesisEventRecord) error {
	ctx = context.WithValue(ctx, KinesisSequenceNumberKey, r.Kinesis.SequenceNumber)
	return h.handleMessage(ctx, r)
}

func (h *Handler) handleRealtime() error {
	streamName := KinesisOpts.StreamName
	if streamName == "" {
		streamName = h.DefaultStream
	}
	if streamName == "" {
		return fmt.Errorf("no stream configured: set --%v", StreamNameFlag.Name)
	}

	var options []consumer.Option
	switch {
	case KinesisOpts.Replay && replayFrom() != nil:
		options = append(options, consumer.WithShardIteratorType("AT_TIMESTAMP"))
		options = append(options, consumer.WithTimestamp(*replayFrom()))
	case KinesisOpts.Replay:
		options = append(options, consumer.WithShardIteratorType("TRIM_HORIZON"))
	default:
		options = append(options, consumer.WithShardIteratorType("LATEST"))
	}
	c, err := consumer.New(streamName, options...)
	if err != nil {
		return err
	}

	ctx := h.Logger.WithContext(context.Background())
	callback := func(record *consumer.Record) error {
		er := events.KinesisEventRecord{
			EventID: aws.StringValue(record.SequenceNumber),
			Kinesis: events.KinesisRecord{
				Data:           record.Data,
				PartitionKey:   aws.StringValue(record.PartitionKey),
				SequenceNumber: aws.StringValue(record.SequenceNumber),
			},
		}
		return h.handleSingleEvent(ctx, er)
	}
	h.Logger.Info().Str("stream", streamName).Msg("listening")
	return c.Scan(ctx, callback)
}
