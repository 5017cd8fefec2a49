package sundaews

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/publish"
	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 50
	defaultRoomLimit   = 1000
)

// Dispatcher fans room broadcasts out to the room's members.
type Dispatcher struct {
	Registry    Registry
	Relay       *Relay
	Metrics     sundaecli.Metrics
	Logger      zerolog.Logger
	Concurrency int // max concurrent deliveries (default 50)
	RoomLimit   int // max members resolved per broadcast (default 1000)
}

// HandleKinesisEvent processes a batch of broadcast records.
func (d *Dispatcher) HandleKinesisEvent(ctx context.Context, event events.KinesisEvent) error {
	for _, record := range event.Records {
		if err := d.HandleRecord(ctx, record); err != nil {
			d.Logger.Error().Err(err).
				Str("event_id", record.EventID).
				Msg("failed to process kinesis record")
			// Continue processing other records rather than failing the whole batch
		}
	}
	return nil
}

func (d *Dispatcher) HandleRecord(ctx context.Context, record events.KinesisEventRecord) error {
	var envelope publish.Envelope
	if err := json.Unmarshal(record.Kinesis.Data, &envelope); err != nil {
		return fmt.Errorf("unmarshalling kinesis record: %w", err)
	}
	if envelope.Topic == "" {
		d.Logger.Warn().Msg("kinesis record has empty topic, skipping")
		return nil
	}
	_, err := d.dispatch(ctx, envelope)
	return err
}

// Broadcast delivers payload to the room in process.
func (d *Dispatcher) Broadcast(ctx context.Context, room, sender string, payload []byte) error {
	_, err := d.dispatch(ctx, publish.Envelope{Topic: room, Sender: sender, Payload: payload})
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, envelope publish.Envelope) (int64, error) {
	limit := d.RoomLimit
	if limit <= 0 {
		limit = defaultRoomLimit
	}
	members, err := d.Registry.FindByMetadata(ctx, connectiondao.MetaRoom, envelope.Topic, limit)
	if err != nil {
		return 0, fmt.Errorf("finding members of room %v: %w", envelope.Topic, err)
	}

	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var delivered int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, member := range members {
		if member.ConnectionID == envelope.Sender {
			continue
		}
		connectionID := member.ConnectionID
		g.Go(func() error {
			ok, err := d.Relay.Deliver(gctx, connectionID, envelope.Payload)
			if err != nil {
				// one slow or failing member must not cancel the rest
				d.Logger.Warn().Err(err).Str("connection_id", connectionID).Msg("broadcast delivery failed")
				return nil
			}
			if ok {
				atomic.AddInt64(&delivered, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return delivered, err
	}

	d.Metrics.Gauge(ctx, sundaecli.BroadcastMetric, float64(delivered))
	d.Logger.Debug().
		Str("room", envelope.Topic).
		Int("members", len(members)).
		Int64("delivered", delivered).
		Msg("dispatched broadcast")
	return delivered, nil
}
