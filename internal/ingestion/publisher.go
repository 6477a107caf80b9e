package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/core"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Publisher is the part of jetstream.JetStream the outbound publisher uses.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes committed commands for downstream consumers.
// It is fed by the persistence worker, so nothing is published before it
// is durable. Subjects follow vault.events.<type>.
type OutboundPublisher struct {
	js        Publisher
	inputChan <-chan core.CoreOutput
	logger    zerolog.Logger
}

// PublishableEvent is the outbound message body.
type PublishableEvent struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Partition      string          `json:"partition"`
	Rejection      string          `json:"rejection,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      string          `json:"state_hash"`
	Timestamp      time.Time       `json:"timestamp"`
	TotalSupply    *uint64         `json:"total_supply,omitempty"`
	TotalAssets    *uint64         `json:"total_assets,omitempty"`
}

func NewOutboundPublisher(js Publisher, inputChan <-chan core.CoreOutput, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{js: js, inputChan: inputChan, logger: logger}
}

// Run publishes until ctx is cancelled or the input is closed.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if out.Envelope == nil {
				continue
			}

			if err := op.publish(ctx, out); err != nil {
				// Downstream consumers can read the event log directly.
				op.logger.Warn().Err(err).Int64("seq", out.Envelope.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

// NewPublishableEvent builds the outbound body and subject for an output.
func NewPublishableEvent(out core.CoreOutput) (string, PublishableEvent) {
	env := out.Envelope
	evt := PublishableEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Partition:      env.Partition,
		Rejection:      env.Rejection,
		Payload:        env.Payload,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		Timestamp:      env.Timestamp,
	}
	if out.Stats != nil {
		evt.TotalSupply, evt.TotalAssets = &out.Stats.TotalSupply, &out.Stats.TotalAssets
	}
	return fmt.Sprintf("%s.%s", EventSubjectPrefix, SubjectToken(env.EventType)), evt
}

func (op *OutboundPublisher) publish(ctx context.Context, out core.CoreOutput) error {
	subject, evt := NewPublishableEvent(out)
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// The sequence doubles as the message id so a republish is deduplicated.
	_, err = op.js.Publish(ctx, subject, data, jetstream.WithMsgID(strconv.FormatInt(evt.Sequence, 10)))
	return err
}
