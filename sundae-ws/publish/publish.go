// Package publish puts room broadcasts on the gateway's Kinesis stream so every
// dispatcher instance can fan them out.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
)

// Envelope is the record format on the broadcast stream. Topic is the room.
type Envelope struct {
	Topic   string          `json:"topic"`
	Sender  string          `json:"sender,omitempty"` // connection id excluded from fan-out
	Payload json.RawMessage `json:"payload"`
}

type Publisher struct {
	client     kinesisiface.KinesisAPI
	streamName string
}

func New(client kinesisiface.KinesisAPI, streamName string) *Publisher {
	return &Publisher{
		client:     client,
		streamName: streamName,
	}
}

// Build creates a Publisher for streamName, or the standard stream for env when
// streamName is empty.
func Build(sess *session.Session, env, streamName string) *Publisher {
	if streamName == "" {
		streamName = StreamName(env)
	}
	return New(kinesis.New(sess), streamName)
}

func StreamName(env string) string {
	return env + "-sundae-ws--broadcast"
}

// Broadcast publishes an already encoded event for a room.
func (p *Publisher) Broadcast(ctx context.Context, room, sender string, payload []byte) error {
	return p.put(ctx, Envelope{Topic: room, Sender: sender, Payload: payload})
}

func (p *Publisher) put(ctx context.Context, envelope Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshalling envelope: %w", err)
	}

	_, err = p.client.PutRecordWithContext(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(p.streamName),
		PartitionKey: aws.String(envelope.Topic),
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("publishing to kinesis stream %v: %w", p.streamName, err)
	}
	return nil
}
